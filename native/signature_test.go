package native

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareSignatures(t *testing.T) {
	cases := map[string]struct {
		a, b any
		errs []string
	}{
		"same":             {func(int) int { return 0 }, func(int) int { return 0 }, nil},
		"no args":          {func() {}, func() {}, nil},
		"extra input":      {func(x int) int { return x }, func(x, y int) int { return x }, []string{"argument 1: <nil> != int"}},
		"extra output":     {func() int { return 1 }, func() (int, error) { return 1, nil }, []string{"result 1: <nil> != error"}},
		"input type":       {func(int) {}, func(string) {}, []string{"argument 0: int != string"}},
		"output type":      {func() int { return 1 }, func() string { return "" }, []string{"result 0: int != string"}},
		"variadic":         {func(...int) {}, func([]int) {}, []string{"only one is variadic"}},
		"several problems": {func(int, string) {}, func(string, int) {}, []string{"argument 0", "argument 1"}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := compareSignatures(reflect.TypeOf(tc.a), reflect.TypeOf(tc.b))
			if tc.errs == nil {
				assert.NoError(t, err)
				return
			}
			if assert.ErrorIs(t, err, errSignature) {
				for _, want := range tc.errs {
					assert.Contains(t, err.Error(), want)
				}
			}
		})
	}
}
