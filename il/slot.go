package il

import "fmt"

// MaxLocals is the largest frame a routine may have, counting the routine's
// own locals and every reserved slot.
const MaxLocals = 256

// ValueKind is the kind of value a local slot is expected to hold. The VM
// does not enforce it; it documents intent and is checked by the verifier
// only for initial values.
type ValueKind uint8

const (
	KindAny ValueKind = iota
	KindInt
	KindBool
	KindString
	KindObject
)

var valueKindNames = [...]string{"any", "int", "bool", "string", "object"}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", k)
}

// ParseValueKind is the inverse of ValueKind.String.
func ParseValueKind(s string) (ValueKind, bool) {
	for i, name := range valueKindNames {
		if name == s {
			return ValueKind(i), true
		}
	}
	return KindAny, false
}

// LocalSlot is a per-invocation frame slot of one routine.
type LocalSlot struct {
	index int
	kind  ValueKind
}

// Local returns the handle for one of the routine's own locals.
func Local(index int) LocalSlot {
	return LocalSlot{index: index}
}

func (l LocalSlot) Index() int      { return l.index }
func (l LocalSlot) Kind() ValueKind { return l.kind }

// Reserve appends a new slot to the frame. Existing slots are never
// renumbered or handed out again.
func (s *Stream) Reserve(kind ValueKind) (LocalSlot, error) {
	if len(s.locals) >= MaxLocals {
		return LocalSlot{}, ErrSlotExhausted
	}
	slot := LocalSlot{index: len(s.locals), kind: kind}
	s.locals = append(s.locals, kind)
	return slot, nil
}

// NumLocals is the size of the frame, including reserved slots.
func (s *Stream) NumLocals() int {
	return len(s.locals)
}

// LocalKind returns the kind a slot was declared or reserved with.
func (s *Stream) LocalKind(index int) ValueKind {
	if index < 0 || index >= len(s.locals) {
		return KindAny
	}
	return s.locals[index]
}
