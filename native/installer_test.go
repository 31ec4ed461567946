//go:build linux && (amd64 || arm64)

package native

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/splice"
	"github.com/pboyd/patchwork/vm"
)

var testInstaller *Installer

//go:noinline
func hurt(hp, dmg int) int {
	return hp - dmg
}

func hurtDispatch(hp, dmg int) int {
	v, err := testInstaller.Call("hurt", hp, dmg)
	if err != nil {
		panic(err)
	}
	n, err := As[int](v)
	if err != nil {
		panic(err)
	}
	return n
}

var errNegative = errors.New("negative")

//go:noinline
func shout(s string, n int) (string, error) {
	if n < 0 {
		return "", errNegative
	}
	return strings.Repeat(strings.ToUpper(s), n), nil
}

func shoutDispatch(s string, n int) (string, error) {
	v, err := testInstaller.Call("shout", s, n)
	if err != nil {
		return "", err
	}
	return As[string](v)
}

func sum(xs ...int) int         { return len(xs) }
func sumDispatch(xs ...int) int { return 0 }
func pair() (int, int)          { return 1, 2 }
func pairDispatch() (int, int)  { return 0, 0 }

func newTestInstaller(t *testing.T) *Installer {
	testInstaller = NewInstaller(vm.NewHost())
	t.Cleanup(func() { testInstaller = nil })
	return testInstaller
}

func TestInstaller(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	in := newTestInstaller(t)

	b, err := in.Bind("hurt", hurt, hurtDispatch)
	require.NoError(err)
	t.Cleanup(func() { in.Unbind("hurt") })
	assert.Equal(il.RoutineID("hurt"), b.ID())
	assert.Same(b, in.Binding("hurt"))
	assert.Equal([]il.RoutineID{"hurt", "hurt.original"}, in.Routines())

	assert.Equal(7, hurt(10, 3))
	v, err := in.Call("hurt", 10, 3)
	require.NoError(err)
	assert.Equal(int64(7), v, "the routine runs the original")

	body, err := in.Body("hurt")
	require.NoError(err)
	require.NoError(splice.After(il.MustParse(`
		ldloc $result
		push 2
		mul
		stloc $result
	`)...).Apply(body))
	require.NoError(in.Install("hurt", body))
	assert.True(b.Redirected())

	assert.Equal(14, hurt(10, 3))
	assert.Equal(7, Original[func(int, int) int](b)(10, 3))

	// Installing again only swaps the body.
	require.NoError(in.Install("hurt", body))
	assert.Equal(14, hurt(10, 3))

	require.NoError(in.Revert("hurt"))
	assert.False(b.Redirected())
	assert.Equal(7, hurt(10, 3))

	// Reverting twice is harmless.
	require.NoError(in.Revert("hurt"))
	assert.Equal(7, hurt(10, 3))
}

func TestInstaller_Errors(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	in := newTestInstaller(t)

	b, err := in.Bind("shout", shout, shoutDispatch)
	require.NoError(err)
	t.Cleanup(func() { in.Unbind("shout") })

	body, err := in.Body("shout")
	require.NoError(err)
	require.NoError(splice.Before(il.MustParse(`
		ldarg 1
		push 1
		add
		starg 1
	`)...).Apply(body))
	require.NoError(in.Install("shout", body))

	got, err := shout("hey", 1)
	require.NoError(err)
	assert.Equal("HEYHEY", got)

	_, err = shout("hey", -2)
	assert.ErrorIs(err, errNegative, "errors from the original come back")

	got, err = Original[func(string, int) (string, error)](b)("hey", 1)
	require.NoError(err)
	assert.Equal("HEY", got)

	require.NoError(in.Revert("shout"))
	got, err = shout("hey", 1)
	require.NoError(err)
	assert.Equal("HEY", got)
}

func TestInstaller_Bind(t *testing.T) {
	cases := map[string]struct {
		fn, dispatch any
		contains     string
	}{
		"not a function":      {"hurt", hurtDispatch, "not a function"},
		"dispatch not a func": {hurt, 42, "not a function"},
		"nil":                 {(func(int, int) int)(nil), hurtDispatch, "nil function"},
		"signature mismatch":  {hurt, shoutDispatch, "signatures do not match"},
		"itself":              {hurt, hurt, "itself"},
		"variadic":            {sum, sumDispatch, "variadic"},
		"too many results":    {pair, pairDispatch, "at most one result"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := newTestInstaller(t)
			_, err := in.Bind("x", tc.fn, tc.dispatch)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tc.contains)
			}
			assert.Empty(t, in.Routines())
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		in := newTestInstaller(t)
		_, err := in.Bind("hurt", hurt, hurtDispatch)
		require.NoError(t, err)
		t.Cleanup(func() { in.Unbind("hurt") })

		_, err = in.Bind("hurt", hurt, hurtDispatch)
		assert.ErrorIs(t, err, vm.ErrDuplicateRoutine)
	})

	t.Run("unbind", func(t *testing.T) {
		in := newTestInstaller(t)
		_, err := in.Bind("hurt", hurt, hurtDispatch)
		require.NoError(t, err)

		require.NoError(t, in.Unbind("hurt"))
		assert.Empty(t, in.Routines())
		assert.Nil(t, in.Binding("hurt"))
		assert.ErrorIs(t, in.Unbind("hurt"), vm.ErrUnknownRoutine)
	})
}

func TestInstaller_Unbound(t *testing.T) {
	in := newTestInstaller(t)
	s, err := il.Assemble(0, 0, "push 1\nret")
	require.NoError(t, err)
	require.NoError(t, in.Define("one", s))

	two, err := il.Assemble(0, 0, "push 2\nret")
	require.NoError(t, err)
	require.NoError(t, in.Install("one", two))

	v, err := in.Call("one")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	require.NoError(t, in.Revert("one"))
	v, err = in.Call("one")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}
