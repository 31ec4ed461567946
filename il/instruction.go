package il

import (
	"fmt"
	"strings"
)

// Instruction is one element of a Stream.
type Instruction struct {
	Op      Opcode
	Operand Operand

	// Labels attached to this instruction.
	Labels []*Label

	// Marks are named label definitions ("skip:" in assembly text). A
	// Names binding turns them into labels when the instruction is inserted.
	Marks []string
}

// Make builds an instruction. It panics if given more than one operand.
func Make(op Opcode, operand ...Operand) Instruction {
	switch len(operand) {
	case 0:
		return Instruction{Op: op}
	case 1:
		return Instruction{Op: op, Operand: operand[0]}
	}
	panic("il.Make: more than one operand")
}

// Validate checks that the opcode is defined and the operand fits it.
func (i Instruction) Validate() error {
	if !i.Op.Valid() {
		return fmt.Errorf("unknown opcode %d", uint8(i.Op))
	}
	want := i.Op.Info().Operand
	if want == OperandNone {
		if i.Operand.Kind != OperandNone {
			return fmt.Errorf("%w: %s takes no operand, got %s", ErrBadOperand, i.Op, i.Operand.Kind)
		}
		return nil
	}
	if !i.Operand.fits(want) {
		return fmt.Errorf("%w: %s wants %s, got %s", ErrBadOperand, i.Op, want, i.Operand.Kind)
	}
	if i.Operand.Kind == OperandInt && (i.Op == LDARG || i.Op == STARG) && i.Operand.Int < 0 {
		return fmt.Errorf("%w: negative argument index %d", ErrBadOperand, i.Operand.Int)
	}
	return nil
}

// copy returns i with its own label and mark slices.
func (i Instruction) copy() Instruction {
	if i.Labels != nil {
		i.Labels = append([]*Label(nil), i.Labels...)
	}
	if i.Marks != nil {
		i.Marks = append([]string(nil), i.Marks...)
	}
	return i
}

func (i Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Op.String())
	if i.Operand.Kind != OperandNone {
		sb.WriteByte(' ')
		switch i.Op {
		case NEW, GETF, SETF:
			// Field and type names read better bare.
			sb.WriteString(i.Operand.Str)
		default:
			sb.WriteString(i.Operand.String())
		}
	}
	return sb.String()
}
