package splice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/patchwork/il"
)

func assemble(t *testing.T, arity, locals int, text string) *il.Stream {
	t.Helper()
	s, err := il.Assemble(arity, locals, text)
	require.NoError(t, err)
	return s
}

func ops(s *il.Stream) []il.Opcode {
	out := make([]il.Opcode, s.Len())
	for i := range out {
		out[i] = s.At(i).Op
	}
	return out
}

const countdown = `
	top:  ldarg 0
	      jmpf @done
	      ldarg 0
	      push 1
	      sub
	      starg 0
	      jmp @top
	done: push 0
	      ret
`

func TestBefore(t *testing.T) {
	assert := assert.New(t)
	s := assemble(t, 1, 0, countdown)

	err := Before(il.MustParse("push 1\npop")...).Apply(s)
	require.NoError(t, err)
	assert.Equal(11, s.Len())
	assert.Equal(il.PUSH, s.At(0).Op)

	r, err := il.Resolve(s)
	require.NoError(t, err)
	assert.Equal(2, r.Targets[8], "the loop still jumps to the original head")
}

func TestDeniableBefore(t *testing.T) {
	assert := assert.New(t)
	s := assemble(t, 1, 0, "ldarg 0\nret")

	hook := il.MustParse(`
		push 5
		stloc $result
		push false
		stloc $allow
	`)
	require.NoError(t, DeniableBefore(hook...).Apply(s))

	assert.Equal([]il.Opcode{
		il.PUSH, il.STLOC, il.PUSH, il.STLOC,
		il.PUSH, il.STLOC, il.PUSH, il.STLOC,
		il.LDLOC, il.JMPF,
		il.LDARG, il.RET,
		il.LDLOC, il.RET,
	}, ops(s))
	assert.Equal(2, s.NumLocals())
	assert.Equal(il.KindBool, s.LocalKind(0))

	r, err := il.Resolve(s)
	require.NoError(t, err)
	assert.Equal(12, r.Targets[9])
	assert.Equal(1, r.Code[5].Operand.Slot.Index(), "the hook's $result is the reserved slot")
}

func TestAfter(t *testing.T) {
	t.Run("every return", func(t *testing.T) {
		assert := assert.New(t)
		s := assemble(t, 1, 0, `
			ldarg 0
			jmpf @neg
			push 1
			ret
		neg:
			push -1
			ret
		`)

		hook := il.MustParse(`
			ldloc $result
			push 10
			mul
			stloc $result
		`)
		require.NoError(t, After(hook...).Apply(s))
		assert.Equal(18, s.Len())
		assert.Equal(1, s.NumLocals(), "one $result slot shared by every return")

		rets, err := il.LocateAll(s, il.OpIs(il.RET))
		require.NoError(t, err)
		assert.Equal([]int{9, 17}, rets)

		r, err := il.Resolve(s)
		require.NoError(t, err)
		assert.Equal(10, r.Targets[1])
	})

	t.Run("jumps to a return run the hook", func(t *testing.T) {
		assert := assert.New(t)
		s := assemble(t, 1, 0, `
			ldarg 0
			dup
			jmpt @out
			pop
			push 0
		out:
			ret
		`)

		require.NoError(t, After(il.Make(il.NOP)).Apply(s))

		r, err := il.Resolve(s)
		require.NoError(t, err)
		assert.Equal(5, r.Targets[2])
		assert.Equal(il.STLOC, r.Code[5].Op)
	})

	t.Run("hook labels are per return", func(t *testing.T) {
		s := assemble(t, 1, 0, `
			ldarg 0
			jmpf @b
			push 1
			ret
		b:	push 2
			ret
		`)
		hook := il.MustParse(`
			ldloc $result
			jmpt @skip
			push 0
			stloc $result
		skip:
			nop
		`)
		require.NoError(t, After(hook...).Apply(s))
		_, err := il.Resolve(s)
		assert.NoError(t, err)
	})

	t.Run("no return", func(t *testing.T) {
		s := assemble(t, 0, 0, "push 0\npop")
		err := After(il.Make(il.NOP)).Apply(s)
		assert.ErrorIs(t, err, il.ErrAnchorNotFound)
	})
}

func TestReplace(t *testing.T) {
	assert := assert.New(t)
	s := assemble(t, 1, 2, countdown)

	require.NoError(t, Replace(il.MustParse(`
		ldarg 0
		jmpt @pos
		push 0
		ret
	pos:
		push 1
		ret
	`)...).Apply(s))

	assert.Equal(6, s.Len())
	assert.Equal(2, s.NumLocals())

	r, err := il.Resolve(s)
	require.NoError(t, err)
	assert.Equal(4, r.Targets[1])
}

func TestCustom(t *testing.T) {
	s := assemble(t, 0, 0, "push 1\nret")
	tr := Custom(KindReplace, func(s *il.Stream) error {
		return s.ReplaceOperand(0, il.Int(2))
	})
	require.NoError(t, tr.Apply(s))
	assert.Equal(t, il.Int(2), s.At(0).Operand)

	assert.Error(t, Transform{Kind: KindBefore}.Apply(s))
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindBefore, KindAfter, KindReplace, KindSplice} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("around")
	assert.Error(t, err)
}
