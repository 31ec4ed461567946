package splice

import (
	"fmt"

	"github.com/pboyd/patchwork/il"
)

// Kind is the shape of edit a transform makes.
type Kind int

const (
	KindBefore Kind = iota + 1
	KindAfter
	KindReplace
	KindSplice
)

var kindNames = map[Kind]string{
	KindBefore:  "before",
	KindAfter:   "after",
	KindReplace: "replace",
	KindSplice:  "splice",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown transform kind %q", s)
}

// Func edits a routine body in place. It must depend on nothing but the
// stream, so composing the same descriptors twice gives the same result.
type Func func(s *il.Stream) error

// Transform is one declared edit of a routine.
type Transform struct {
	Kind Kind
	Fn   Func
}

// Apply runs the transform against s.
func (t Transform) Apply(s *il.Stream) error {
	if t.Fn == nil {
		return fmt.Errorf("%s transform has no function", t.Kind)
	}
	return t.Fn(s)
}

// Slot and label names with a fixed meaning in hook code.
const (
	// AllowSlot decides whether the original body runs after a deniable
	// hook. It starts out true.
	AllowSlot = "allow"

	// ResultSlot holds the value returned when a deniable hook disallows
	// the call, and the about-to-be-returned value in After hooks.
	ResultSlot = "result"

	// DenyLabel marks the epilogue of a deniable hook. Hook code may jump
	// there directly.
	DenyLabel = "deny"
)

// Custom wraps an arbitrary edit function.
func Custom(kind Kind, fn Func) Transform {
	return Transform{Kind: kind, Fn: fn}
}

// Before inserts code at the routine's entry. Jumps to the first original
// instruction (loop heads) keep landing on it, not on the hook.
func Before(code ...il.Instruction) Transform {
	return Transform{Kind: KindBefore, Fn: func(s *il.Stream) error {
		names := il.NewNames(s)
		bound, err := names.Bind(code)
		if err != nil {
			return err
		}
		if err := s.InsertRange(0, bound, il.KeepLabels); err != nil {
			return err
		}
		return names.Check()
	}}
}

// DeniableBefore inserts code at the entry that may veto the call. The code
// sees $allow (true) and $result (nil); if $allow is false once it finishes,
// the rest of the original body is skipped and $result is returned.
func DeniableBefore(code ...il.Instruction) Transform {
	return Transform{Kind: KindBefore, Fn: func(s *il.Stream) error {
		names := il.NewNames(s)
		allow, err := names.Slot(AllowSlot, il.KindBool)
		if err != nil {
			return err
		}
		result, err := names.Slot(ResultSlot, il.KindAny)
		if err != nil {
			return err
		}
		deny := names.Label(DenyLabel)

		hook, err := names.Bind(code)
		if err != nil {
			return err
		}

		prologue := make([]il.Instruction, 0, len(hook)+6)
		prologue = append(prologue,
			il.Make(il.PUSH, il.Bool(true)),
			il.Make(il.STLOC, il.Slot(allow)),
			il.Make(il.PUSH, il.Nil()),
			il.Make(il.STLOC, il.Slot(result)),
		)
		prologue = append(prologue, hook...)
		prologue = append(prologue,
			il.Make(il.LDLOC, il.Slot(allow)),
			il.Make(il.JMPF, il.To(deny)),
		)
		if err := s.InsertRange(0, prologue, il.KeepLabels); err != nil {
			return err
		}

		epilogue := []il.Instruction{
			{Op: il.LDLOC, Operand: il.Slot(result), Labels: []*il.Label{deny}},
			il.Make(il.RET),
		}
		if err := s.Append(epilogue...); err != nil {
			return err
		}
		return names.Check()
	}}
}

// After inserts code in front of every return. The value being returned is
// in $result while the code runs and whatever $result holds afterwards is
// returned. Jumps to a return run the hook too.
func After(code ...il.Instruction) Transform {
	return Transform{Kind: KindAfter, Fn: func(s *il.Stream) error {
		rets, err := il.LocateAll(s, il.OpIs(il.RET))
		if err != nil {
			return fmt.Errorf("no return point: %w", err)
		}

		names := il.NewNames(s)
		result, err := names.Slot(ResultSlot, il.KindAny)
		if err != nil {
			return err
		}

		// Back to front so earlier indices stay valid.
		for i := len(rets) - 1; i >= 0; i-- {
			site := names.Fork()
			hook, err := site.Bind(code)
			if err != nil {
				return err
			}

			seq := make([]il.Instruction, 0, len(hook)+2)
			seq = append(seq, il.Make(il.STLOC, il.Slot(result)))
			seq = append(seq, hook...)
			seq = append(seq, il.Make(il.LDLOC, il.Slot(result)))
			if err := s.InsertRange(rets[i], seq, il.MoveLabels); err != nil {
				return err
			}
			if err := site.Check(); err != nil {
				return err
			}
		}
		return nil
	}}
}

// Replace discards the original instructions and uses code instead. The
// original locals stay reserved.
func Replace(code ...il.Instruction) Transform {
	return Transform{Kind: KindReplace, Fn: func(s *il.Stream) error {
		names := il.NewNames(s)
		bound, err := names.Bind(code)
		if err != nil {
			return err
		}
		if err := s.ReplaceAll(bound); err != nil {
			return err
		}
		return names.Check()
	}}
}

// Splice applies edits in order, each one located against the stream as
// the previous edits left it. Names are shared by all the edits, so one edit
// can jump to a label another one marked.
func Splice(edits ...Edit) Transform {
	return Transform{Kind: KindSplice, Fn: func(s *il.Stream) error {
		names := il.NewNames(s)
		for i, e := range edits {
			if err := e.apply(s, names); err != nil {
				return fmt.Errorf("edit %d: %w", i, err)
			}
		}
		return names.Check()
	}}
}
