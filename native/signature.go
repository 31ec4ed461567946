package native

import (
	"errors"
	"fmt"
	"reflect"
)

var errSignature = errors.New("signatures do not match")

// compareSignatures reports every argument and result where a and b differ,
// joined into one error, or nil if the types are identical.
func compareSignatures(a, b reflect.Type) error {
	var errs []error

	for i := 0; i < max(a.NumIn(), b.NumIn()); i++ {
		at, bt := param(a.In, a.NumIn(), i), param(b.In, b.NumIn(), i)
		if at != bt {
			errs = append(errs, fmt.Errorf("argument %d: %v != %v", i, at, bt))
		}
	}
	for i := 0; i < max(a.NumOut(), b.NumOut()); i++ {
		at, bt := param(a.Out, a.NumOut(), i), param(b.Out, b.NumOut(), i)
		if at != bt {
			errs = append(errs, fmt.Errorf("result %d: %v != %v", i, at, bt))
		}
	}
	if a.IsVariadic() != b.IsVariadic() {
		errs = append(errs, errors.New("only one is variadic"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", errSignature, errors.Join(errs...))
}

func param(get func(int) reflect.Type, n, i int) reflect.Type {
	if i >= n {
		return nil
	}
	return get(i)
}
