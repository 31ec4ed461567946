package vm

import (
	"fmt"

	"github.com/pboyd/patchwork/il"
)

// inst is an instruction with its operand decoded for the interpreter.
type inst struct {
	op il.Opcode

	// arg is the argument index, slot index, branch target or callee arity.
	arg int

	// val is the constant for push and the type or field name for objects.
	val Value

	callee *routine
}

type program struct {
	code        []inst
	numLocals   int
	maxStack    int
	fingerprint il.Fingerprint
}

// compile verifies s and decodes it for r. The caller must hold h.mu.
func (h *Host) compile(r *routine, s *il.Stream) (*program, error) {
	res, err := il.Resolve(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerify, err)
	}
	if len(res.Code) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrVerify)
	}

	fp, err := res.Fingerprint()
	if err != nil {
		return nil, err
	}

	p := &program{
		code:        make([]inst, len(res.Code)),
		numLocals:   len(res.Locals),
		fingerprint: fp,
	}
	for i, in := range res.Code {
		c := inst{op: in.Op, arg: -1}
		switch in.Op {
		case il.PUSH:
			c.val = constant(in.Operand)
		case il.LDARG, il.STARG:
			c.arg = int(in.Operand.Int)
			if c.arg >= r.arity {
				return nil, fmt.Errorf("%w: %d: argument %d of %d", ErrVerify, i, c.arg, r.arity)
			}
		case il.LDLOC, il.STLOC:
			c.arg = in.Operand.Slot.Index()
		case il.JMP, il.JMPT, il.JMPF:
			c.arg = res.Targets[i]
		case il.CALL:
			callee, ok := h.routines[in.Operand.Routine]
			if !ok {
				return nil, fmt.Errorf("%w: %d: %w: %s", ErrVerify, i, ErrUnknownRoutine, in.Operand.Routine)
			}
			c.callee = callee
			c.arg = callee.arity
		case il.NEW, il.GETF, il.SETF:
			c.val = in.Operand.Str
		}
		p.code[i] = c
	}

	p.maxStack, err = verifyStack(p.code)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func constant(op il.Operand) Value {
	switch op.Kind {
	case il.OperandInt:
		return op.Int
	case il.OperandString:
		return op.Str
	case il.OperandBool:
		return op.Bool
	}
	return nil
}

// verifyStack walks every path through code and checks that the stack never
// underflows, that paths meeting at an instruction agree on the stack depth,
// and that every path ends in a return. It returns the deepest stack seen.
func verifyStack(code []inst) (int, error) {
	depth := make([]int, len(code))
	for i := range depth {
		depth[i] = -1
	}
	depth[0] = 0
	work := []int{0}
	deepest := 0

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]

		c := code[i]
		info := c.op.Info()
		pop := info.Pop
		if pop == il.Variable {
			pop = c.arg
		}

		d := depth[i]
		if d < pop {
			return 0, fmt.Errorf("%w: stack underflow at %d: %s needs %d, has %d", ErrVerify, i, c.op, pop, d)
		}
		d += info.Push - pop
		if d > deepest {
			deepest = d
		}
		if info.Return {
			continue
		}

		next := []int{i + 1}
		if info.Branch {
			next = []int{c.arg}
			if info.Cond {
				next = append(next, i+1)
			}
		}
		for _, j := range next {
			if j >= len(code) {
				return 0, fmt.Errorf("%w: execution runs past the end after %d", ErrVerify, i)
			}
			switch depth[j] {
			case -1:
				depth[j] = d
				work = append(work, j)
			case d:
			default:
				return 0, fmt.Errorf("%w: stack depth at %d is %d on one path and %d on another", ErrVerify, j, depth[j], d)
			}
		}
	}
	return deepest, nil
}
