package native

import (
	"fmt"
	"reflect"

	"github.com/pboyd/patchwork/vm"
)

// As converts a value produced by a routine to T. Integers convert to any
// integer type they fit in, and nil becomes the zero value.
func As[T any](v vm.Value) (T, error) {
	rv, err := toGo(v, reflect.TypeFor[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := rv.Interface().(T)
	return out, nil
}

func toGo(v vm.Value, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	out := reflect.New(t).Elem()
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		out.Set(rv)
		return out, nil
	}

	if i, ok := v.(int64); ok {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if !out.OverflowInt(i) {
				out.SetInt(i)
				return out, nil
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			if i >= 0 && !out.OverflowUint(uint64(i)) {
				out.SetUint(uint64(i))
				return out, nil
			}
		}
	}

	return reflect.Value{}, fmt.Errorf("%w: cannot use %s as %v", vm.ErrType, vm.Format(v), t)
}
