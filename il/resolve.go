package il

import "fmt"

// Resolved is a stream with every label turned into an instruction index.
type Resolved struct {
	Arity  int
	Locals []ValueKind
	Code   []Instruction

	// Targets holds, for each instruction, the index a branch jumps to, or
	// NotFound for instructions that do not branch.
	Targets []int
}

// Resolve checks the stream's symbolic integrity and computes branch
// targets. Every label the stream created or references must be attached to
// exactly one instruction, and no symbolic name may be left unbound.
func Resolve(s *Stream) (*Resolved, error) {
	at := make(map[*Label]int, len(s.labels))
	for i, in := range s.code {
		if len(in.Marks) > 0 {
			return nil, fmt.Errorf("%w: label %q at %d", ErrUnboundName, in.Marks[0], i)
		}
		for _, l := range in.Labels {
			if _, dup := at[l]; dup {
				return nil, fmt.Errorf("%w: %s attached twice", ErrLabelAttached, l)
			}
			at[l] = i
		}
	}
	for _, l := range s.labels {
		if _, ok := at[l]; !ok {
			return nil, fmt.Errorf("%w: %s is not attached", ErrDanglingLabel, l)
		}
	}

	r := &Resolved{
		Arity:   s.arity,
		Locals:  append([]ValueKind(nil), s.locals...),
		Code:    make([]Instruction, len(s.code)),
		Targets: make([]int, len(s.code)),
	}
	for i, in := range s.code {
		r.Code[i] = in.copy()
		r.Targets[i] = NotFound

		switch in.Operand.Kind {
		case OperandLabelName, OperandSlotName:
			return nil, fmt.Errorf("%w: %s at %d", ErrUnboundName, in.Operand, i)
		case OperandLabel:
			target, ok := at[in.Operand.Label]
			if !ok {
				return nil, fmt.Errorf("%w: %s referenced at %d", ErrDanglingLabel, in.Operand.Label, i)
			}
			r.Targets[i] = target
		}
	}
	return r, nil
}
