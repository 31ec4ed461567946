package vm

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/pboyd/patchwork/il"
)

type frame struct {
	args   []Value
	locals []Value
	stack  []Value
}

func (f *frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popInt() (int64, error) {
	switch v := f.pop().(type) {
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: want int, got %s", ErrType, Format(v))
	}
}

func (f *frame) popInts() (a, b int64, err error) {
	if b, err = f.popInt(); err != nil {
		return
	}
	a, err = f.popInt()
	return
}

func (f *frame) popBool() (bool, error) {
	switch v := f.pop().(type) {
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("%w: want bool, got %s", ErrType, Format(v))
	}
}

func (f *frame) popObject() (*Object, error) {
	switch v := f.pop().(type) {
	case *Object:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: want object, got %s", ErrType, Format(v))
	}
}

func (h *Host) call(r *routine, args []Value, depth int) (Value, error) {
	if limit := int(h.maxDepth.Load()); depth >= limit {
		return nil, fmt.Errorf("%w: %d calls deep in %s", ErrStackOverflow, depth, r.id)
	}
	if len(args) != r.arity {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, r.id, r.arity, len(args))
	}

	if r.native != nil {
		v, err := r.native(args)
		if err != nil {
			return nil, err
		}
		return normalize(v)
	}
	return h.run(r, r.program.Load(), args, depth)
}

func (h *Host) run(r *routine, p *program, args []Value, depth int) (Value, error) {
	f := &frame{
		args:   args,
		locals: make([]Value, p.numLocals),
		stack:  make([]Value, 0, p.maxStack),
	}

	pc := 0
	fail := func(err error) (Value, error) {
		var rt *RuntimeError
		if errors.As(err, &rt) || errors.Is(err, ErrStackOverflow) {
			return nil, err
		}
		return nil, &RuntimeError{Routine: string(r.id), PC: pc, Err: err}
	}

	for {
		c := &p.code[pc]
		next := pc + 1

		switch c.op {
		case il.NOP:

		case il.PUSH:
			f.push(c.val)

		case il.POP:
			f.pop()

		case il.DUP:
			f.push(f.stack[len(f.stack)-1])

		case il.SWAP:
			n := len(f.stack)
			f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

		case il.LDARG:
			f.push(f.args[c.arg])

		case il.STARG:
			f.args[c.arg] = f.pop()

		case il.LDLOC:
			f.push(f.locals[c.arg])

		case il.STLOC:
			f.locals[c.arg] = f.pop()

		case il.ADD:
			b := f.pop()
			a := f.pop()
			v, err := add(a, b)
			if err != nil {
				return fail(err)
			}
			f.push(v)

		case il.SUB, il.MUL, il.DIV:
			a, b, err := f.popInts()
			if err != nil {
				return fail(err)
			}
			switch c.op {
			case il.SUB:
				f.push(a - b)
			case il.MUL:
				f.push(a * b)
			case il.DIV:
				if b == 0 {
					return fail(ErrDivideByZero)
				}
				f.push(a / b)
			}

		case il.NEG:
			a, err := f.popInt()
			if err != nil {
				return fail(err)
			}
			f.push(-a)

		case il.EQ, il.NE:
			b := f.pop()
			a := f.pop()
			eq, err := equal(a, b)
			if err != nil {
				return fail(err)
			}
			f.push(eq == (c.op == il.EQ))

		case il.LT, il.LE, il.GT, il.GE:
			a, b, err := f.popInts()
			if err != nil {
				return fail(err)
			}
			var v bool
			switch c.op {
			case il.LT:
				v = a < b
			case il.LE:
				v = a <= b
			case il.GT:
				v = a > b
			case il.GE:
				v = a >= b
			}
			f.push(v)

		case il.NOT:
			v, err := f.popBool()
			if err != nil {
				return fail(err)
			}
			f.push(!v)

		case il.JMP:
			next = c.arg

		case il.JMPT, il.JMPF:
			v, err := f.popBool()
			if err != nil {
				return fail(err)
			}
			if v == (c.op == il.JMPT) {
				next = c.arg
			}

		case il.CALL:
			n := len(f.stack) - c.arg
			callArgs := make([]Value, c.arg)
			copy(callArgs, f.stack[n:])
			f.stack = f.stack[:n]

			v, err := h.call(c.callee, callArgs, depth+1)
			if err != nil {
				return fail(err)
			}
			f.push(v)

		case il.RET:
			return f.pop(), nil

		case il.NEW:
			f.push(NewObject(c.val.(string)))

		case il.GETF:
			o, err := f.popObject()
			if err != nil {
				return fail(err)
			}
			f.push(o.Get(c.val.(string)))

		case il.SETF:
			v := f.pop()
			o, err := f.popObject()
			if err != nil {
				return fail(err)
			}
			o.Set(c.val.(string), v)

		default:
			return fail(fmt.Errorf("unknown opcode %s", c.op))
		}

		pc = next
	}
}

func add(a, b Value) (Value, error) {
	switch a := a.(type) {
	case int64:
		if b, ok := b.(int64); ok {
			return a + b, nil
		}
	case string:
		if b, ok := b.(string); ok {
			return a + b, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot add %s and %s", ErrType, Format(a), Format(b))
}

// equal compares like ==, but fails instead of panicking on opaque values
// that cannot be compared.
func equal(a, b Value) (bool, error) {
	for _, v := range []Value{a, b} {
		if v != nil && !reflect.ValueOf(v).Comparable() {
			return false, fmt.Errorf("%w: %T is not comparable", ErrType, v)
		}
	}
	return a == b, nil
}
