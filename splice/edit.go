package splice

import (
	"errors"
	"fmt"

	"github.com/pboyd/patchwork/il"
)

// Action is what an Edit does at its anchor.
type Action int

const (
	_ Action = iota

	// InsertBefore inserts Code in front of the anchor.
	InsertBefore

	// InsertAfter inserts Code behind the anchor. Placement applies to the
	// instruction that followed the anchor.
	InsertAfter

	// Remove deletes Count instructions starting at the anchor.
	Remove

	// ReplaceOperand swaps the anchor's operand for Operand.
	ReplaceOperand

	// MarkAnchor only attaches Mark to the anchor.
	MarkAnchor
)

var actionNames = map[Action]string{
	InsertBefore:   "insert-before",
	InsertAfter:    "insert-after",
	Remove:         "remove",
	ReplaceOperand: "replace-operand",
	MarkAnchor:     "mark",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction is the inverse of Action.String.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown edit action %q", s)
}

// Edit is one anchored change inside a Splice.
type Edit struct {
	// Anchor selects the instruction the edit applies to. Offset moves the
	// match; Direction picks first (Forward) or last (Backward) match.
	Anchor    il.Matcher
	Offset    int
	Direction il.Direction

	Action Action

	// Code is inserted by InsertBefore and InsertAfter. It may use named
	// labels and slots.
	Code []il.Instruction

	// Placement is required for inserts.
	Placement il.LabelPlacement

	// Count is the number of instructions Remove deletes. Zero means one.
	Count int

	// Operand is the new operand for ReplaceOperand. It may be a named
	// label or slot.
	Operand il.Operand

	// Mark, if set, names a label attached to the anchor once the action is
	// done. After Remove it lands on the instruction following the removed
	// range.
	Mark string
}

var errNoAnchor = errors.New("edit has no anchor")

func (e Edit) apply(s *il.Stream, names *il.Names) error {
	if e.Anchor == nil {
		return errNoAnchor
	}
	i, err := il.Locate(s, e.Anchor, e.Offset, e.Direction)
	if err != nil {
		return err
	}

	at := i
	switch e.Action {
	case InsertBefore, InsertAfter:
		code, err := names.Bind(e.Code)
		if err != nil {
			return err
		}
		if e.Action == InsertAfter {
			err = s.InsertRange(i+1, code, e.Placement)
		} else {
			err = s.InsertRange(i, code, e.Placement)
			at = i + len(code)
		}
		if err != nil {
			return err
		}
	case Remove:
		count := e.Count
		if count == 0 {
			count = 1
		}
		if err := s.RemoveRange(i, count); err != nil {
			return err
		}
	case ReplaceOperand:
		bound, err := names.Bind([]il.Instruction{{Op: s.At(i).Op, Operand: e.Operand}})
		if err != nil {
			return err
		}
		if err := s.ReplaceOperand(i, bound[0].Operand); err != nil {
			return err
		}
	case MarkAnchor:
		if e.Mark == "" {
			return errors.New("mark edit has no name")
		}
	default:
		return fmt.Errorf("unknown edit action %d", int(e.Action))
	}

	if e.Mark == "" {
		return nil
	}
	if at >= s.Len() {
		return fmt.Errorf("%w: nothing left to mark @%s on", il.ErrDanglingLabel, e.Mark)
	}
	if err := s.Attach(names.Label(e.Mark), at); err != nil {
		return fmt.Errorf("@%s: %w", e.Mark, err)
	}
	return nil
}
