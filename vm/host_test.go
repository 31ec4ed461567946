package vm

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/patchwork/il"
)

func define(t *testing.T, h *Host, id il.RoutineID, arity, locals int, text string) {
	t.Helper()
	s, err := il.Assemble(arity, locals, text)
	require.NoError(t, err)
	require.NoError(t, h.Define(id, s))
}

func TestCall(t *testing.T) {
	h := NewHost()
	define(t, h, "fact", 1, 0, `
		ldarg 0
		push 1
		le
		jmpf @rec
		push 1
		ret
	rec:
		ldarg 0
		ldarg 0
		push 1
		sub
		call fact
		mul
		ret
	`)
	define(t, h, "greet", 1, 0, `
		push "hello, "
		ldarg 0
		add
		ret
	`)
	define(t, h, "sum", 1, 1, `
		push 0
		stloc 0
	top:
		ldarg 0
		push 0
		gt
		jmpf @done
		ldloc 0
		ldarg 0
		add
		stloc 0
		ldarg 0
		push 1
		sub
		starg 0
		jmp @top
	done:
		ldloc 0
		ret
	`)

	cases := map[string]struct {
		id   il.RoutineID
		args []Value
		want Value
	}{
		"factorial":  {"fact", []Value{5}, int64(120)},
		"base case":  {"fact", []Value{int64(0)}, int64(1)},
		"string add": {"greet", []Value{"world"}, "hello, world"},
		"loop":       {"sum", []Value{4}, int64(10)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := h.Call(tc.id, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCall_Errors(t *testing.T) {
	h := NewHost()
	define(t, h, "div", 2, 0, "ldarg 0\nldarg 1\ndiv\nret")
	define(t, h, "not", 1, 0, "ldarg 0\nnot\nret")
	define(t, h, "forever", 0, 0, "call forever\nret")
	define(t, h, "wrap", 0, 0, "push 1\npush 0\ncall div\nret")
	define(t, h, "cmp", 2, 0, "ldarg 0\nldarg 1\neq\nret")

	cases := map[string]struct {
		id   il.RoutineID
		args []Value
		err  error
	}{
		"unknown":        {"nope", nil, ErrUnknownRoutine},
		"arity":          {"div", []Value{1}, ErrArity},
		"divide by zero": {"div", []Value{1, 0}, ErrDivideByZero},
		"type":           {"not", []Value{1}, ErrType},
		"bad argument":   {"not", []Value{1.5}, ErrType},
		"overflow":       {"not", []Value{uint64(1 << 63)}, ErrType},
		"recursion":      {"forever", nil, ErrStackOverflow},
		"uncomparable":   {"cmp", []Value{[]int{1}, []int{1}}, ErrType},
		"nested failure": {"wrap", nil, ErrDivideByZero},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.Call(tc.id, tc.args...)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	t.Run("runtime error position", func(t *testing.T) {
		_, err := h.Call("wrap")
		var rt *RuntimeError
		require.ErrorAs(t, err, &rt)
		assert.Equal(t, "div", rt.Routine)
		assert.Equal(t, 2, rt.PC)
	})
}

func TestCall_Equality(t *testing.T) {
	h := NewHost()
	define(t, h, "cmp", 2, 0, "ldarg 0\nldarg 1\neq\nret")

	type point struct{ x, y int }
	cases := map[string]struct {
		a, b Value
		want bool
	}{
		"ints":          {1, 1, true},
		"int and nil":   {1, nil, false},
		"strings":       {"a", "b", false},
		"opaque equal":  {point{1, 2}, point{1, 2}, true},
		"opaque differ": {point{1, 2}, point{2, 1}, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := h.Call("cmp", tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := h.Call("cmp", map[string]int{}, nil)
	assert.ErrorIs(t, err, ErrType)
}

func TestSetMaxDepth(t *testing.T) {
	h := NewHost()
	define(t, h, "down", 1, 0, `
		ldarg 0
		push 0
		eq
		jmpt @zero
		ldarg 0
		push 1
		sub
		call down
		ret
	zero:
		push 0
		ret
	`)

	h.SetMaxDepth(1)
	_, err := h.Call("down", 0)
	assert.NoError(t, err)
	_, err = h.Call("down", 3)
	assert.ErrorIs(t, err, ErrStackOverflow)

	h.SetMaxDepth(DefaultMaxDepth)
	_, err = h.Call("down", 3)
	assert.NoError(t, err)
}

func TestObjects(t *testing.T) {
	assert := assert.New(t)
	h := NewHost()
	define(t, h, "event", 1, 0, `
		new HurtEvent
		dup
		ldarg 0
		setf damage
		ret
	`)
	define(t, h, "damage", 1, 0, `
		ldarg 0
		getf damage
		ret
	`)

	ev, err := h.Call("event", 7)
	require.NoError(t, err)
	obj, ok := ev.(*Object)
	require.True(t, ok)
	assert.Equal("HurtEvent", obj.Type)
	assert.Equal(int64(7), obj.Get("damage"))
	assert.Nil(obj.Get("missing"))
	assert.Equal(`HurtEvent{damage: 7}`, obj.String())

	got, err := h.Call("damage", obj)
	require.NoError(t, err)
	assert.Equal(int64(7), got)

	_, err = h.Call("damage", "not an object")
	assert.ErrorIs(err, ErrType)
}

func TestNative(t *testing.T) {
	assert := assert.New(t)
	h := NewHost()

	var calls []Value
	require.NoError(t, h.Native("announce", 1, func(args []Value) (Value, error) {
		calls = append(calls, args[0])
		return len(calls), nil
	}))
	require.NoError(t, h.Native("boom", 0, func([]Value) (Value, error) {
		return nil, errors.New("boom")
	}))
	define(t, h, "twice", 1, 0, `
		ldarg 0
		call announce
		pop
		ldarg 0
		call announce
		ret
	`)

	got, err := h.Call("twice", "x")
	require.NoError(t, err)
	assert.Equal(int64(2), got)
	assert.Equal([]Value{"x", "x"}, calls)

	_, err = h.Call("boom")
	assert.EqualError(err, "boom")

	_, err = h.Body("announce")
	assert.ErrorIs(err, ErrNotPatchable)
	assert.ErrorIs(h.Install("announce", il.NewStream(1, 0)), ErrNotPatchable)
	assert.ErrorIs(h.Revert("announce"), ErrNotPatchable)

	n, err := h.Arity("twice")
	require.NoError(t, err)
	assert.Equal(1, n)
}

func TestDefine_Errors(t *testing.T) {
	cases := map[string]struct {
		arity int
		text  string
	}{
		"underflow":         {0, "add\nret"},
		"falls off the end": {0, "push 1"},
		"depth mismatch":    {1, "ldarg 0\njmpt @a\npush 1\na: push 2\nret"},
		"unknown callee":    {0, "call missing\nret"},
		"argument range":    {1, "ldarg 1\nret"},
		"empty":             {0, ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewHost()
			s, err := il.Assemble(tc.arity, 0, tc.text)
			require.NoError(t, err)
			err = h.Define("r", s)
			assert.ErrorIs(t, err, ErrVerify)
			assert.Empty(t, h.Routines(), "failed definitions are not kept")
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		h := NewHost()
		define(t, h, "r", 0, 0, "push 1\nret")
		s, err := il.Assemble(0, 0, "push 2\nret")
		require.NoError(t, err)
		assert.ErrorIs(t, h.Define("r", s), ErrDuplicateRoutine)
		assert.ErrorIs(t, h.Native("r", 0, nil), ErrDuplicateRoutine)
	})
}

func TestUndefine(t *testing.T) {
	h := NewHost()
	define(t, h, "one", 0, 0, "push 1\nret")
	define(t, h, "caller", 0, 0, "call one\nret")

	require.NoError(t, h.Undefine("one"))
	assert.ErrorIs(t, h.Undefine("one"), ErrUnknownRoutine)
	assert.Equal(t, []il.RoutineID{"caller"}, h.Routines())

	_, err := h.Call("one")
	assert.ErrorIs(t, err, ErrUnknownRoutine)
	got, err := h.Call("caller")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "compiled callers keep their callee")

	define(t, h, "one", 0, 0, "push 2\nret")
	got, err = h.Call("one")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestInstallRevert(t *testing.T) {
	assert := assert.New(t)
	h := NewHost()
	define(t, h, "answer", 0, 0, "push 0\nret")

	pristine, err := h.Installed("answer")
	require.NoError(t, err)

	body, err := h.Body("answer")
	require.NoError(t, err)
	require.NoError(t, body.ReplaceOperand(0, il.Int(1)))
	require.NoError(t, h.Install("answer", body))

	got, err := h.Call("answer")
	require.NoError(t, err)
	assert.Equal(int64(1), got)

	patched, err := h.Installed("answer")
	require.NoError(t, err)
	assert.NotEqual(pristine, patched)

	again, err := h.Body("answer")
	require.NoError(t, err)
	assert.Equal(il.Int(0), again.At(0).Operand, "Body is always the defined body")

	bad, err := il.Assemble(0, 0, "pop\nret")
	require.NoError(t, err)
	assert.ErrorIs(h.Install("answer", bad), ErrVerify)
	got, err = h.Call("answer")
	require.NoError(t, err)
	assert.Equal(int64(1), got, "a rejected body changes nothing")

	wrongArity, err := il.Assemble(1, 0, "ldarg 0\nret")
	require.NoError(t, err)
	assert.ErrorIs(h.Install("answer", wrongArity), ErrVerify)

	require.NoError(t, h.Revert("answer"))
	got, err = h.Call("answer")
	require.NoError(t, err)
	assert.Equal(int64(0), got)

	fp, err := h.Installed("answer")
	require.NoError(t, err)
	assert.Equal(pristine, fp)

	assert.ErrorIs(h.Install("nope", body), ErrUnknownRoutine)
	assert.ErrorIs(h.Revert("nope"), ErrUnknownRoutine)
}

func TestInstall_Concurrent(t *testing.T) {
	h := NewHost()
	define(t, h, "value", 0, 0, "push 0\nret")

	one, err := h.Body("value")
	require.NoError(t, err)
	require.NoError(t, one.ReplaceOperand(0, il.Int(1)))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v, err := h.Call("value")
				assert.NoError(t, err)
				assert.Contains(t, []Value{int64(0), int64(1)}, v)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, h.Install("value", one))
				assert.NoError(t, h.Revert("value"))
			}
		}()
	}
	wg.Wait()
}
