package native

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/patchwork/vm"
)

func TestAs(t *testing.T) {
	assert := assert.New(t)

	n, err := As[int](int64(42))
	require.NoError(t, err)
	assert.Equal(42, n)

	b, err := As[uint8](int64(255))
	require.NoError(t, err)
	assert.Equal(uint8(255), b)

	s, err := As[string]("hi")
	require.NoError(t, err)
	assert.Equal("hi", s)

	z, err := As[int](nil)
	require.NoError(t, err)
	assert.Zero(z)

	e, err := As[error](nil)
	require.NoError(t, err)
	assert.Nil(e)

	boom := errors.New("boom")
	e, err = As[error](boom)
	require.NoError(t, err)
	assert.Same(boom, e)

	obj := vm.NewObject("Event")
	o, err := As[*vm.Object](obj)
	require.NoError(t, err)
	assert.Same(obj, o)

	a, err := As[any](int64(1))
	require.NoError(t, err)
	assert.Equal(int64(1), a)
}

func TestAs_Errors(t *testing.T) {
	cases := map[string]func() error{
		"overflow": func() error { _, err := As[int8](int64(300)); return err },
		"negative": func() error { _, err := As[uint](int64(-1)); return err },
		"kind":     func() error { _, err := As[string](int64(1)); return err },
		"bool":     func() error { _, err := As[int](true); return err },
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, fn(), vm.ErrType)
		})
	}
}
