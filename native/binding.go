//go:build linux && (amd64 || arm64)

package native

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/vm"
)

// OriginalSuffix is appended to a bound routine's ID to name the native
// routine that runs the function's original code.
const OriginalSuffix = ".original"

var errorType = reflect.TypeFor[error]()

// Binding ties a Go function to a routine.
type Binding struct {
	id       il.RoutineID
	fn       reflect.Value
	dispatch reflect.Value
	clone    *clonedFunc

	mu         sync.Mutex
	redirected bool
}

// ID returns the routine the function is bound to.
func (b *Binding) ID() il.RoutineID {
	return b.id
}

// Redirected reports whether calls to the function currently go to the
// dispatcher.
func (b *Binding) Redirected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.redirected
}

// Disassemble lists the machine code of the copy that runs the original
// function.
func (b *Binding) Disassemble() (string, error) {
	return b.clone.Disassemble()
}

// Original returns a function that always runs the original code, whatever
// is installed. T must be the bound function's type.
func Original[T any](b *Binding) T {
	return b.clone.Func.Interface().(T)
}

func newBinding(id il.RoutineID, fn, dispatch any) (*Binding, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: fn is not a function", id)
	}
	dv := reflect.ValueOf(dispatch)
	if dv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: dispatch is not a function", id)
	}
	if fv.IsNil() || dv.IsNil() {
		return nil, fmt.Errorf("%s: nil function", id)
	}
	if fv.Pointer() == dv.Pointer() {
		return nil, fmt.Errorf("%s: function cannot dispatch to itself", id)
	}
	if err := compareSignatures(fv.Type(), dv.Type()); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	if err := checkSignature(fv.Type()); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}

	clone, err := cloneFunc(fv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return &Binding{
		id:       id,
		fn:       fv,
		dispatch: dv,
		clone:    clone,
	}, nil
}

func checkSignature(t reflect.Type) error {
	if t.IsVariadic() {
		return fmt.Errorf("variadic functions are not supported")
	}
	switch t.NumOut() {
	case 0, 1:
		return nil
	case 2:
		if t.Out(1) == errorType {
			return nil
		}
	}
	return fmt.Errorf("%v: want at most one result, optionally followed by an error", t)
}

// body is the routine's pristine body: pass the arguments to the original
// and return what it returns.
func (b *Binding) body() (*il.Stream, error) {
	arity := b.fn.Type().NumIn()
	s := il.NewStream(arity, 0)
	for i := 0; i < arity; i++ {
		if err := s.Append(il.Make(il.LDARG, il.Int(int64(i)))); err != nil {
			return nil, err
		}
	}
	err := s.Append(
		il.Make(il.CALL, il.Call(b.id+OriginalSuffix)),
		il.Make(il.RET),
	)
	return s, err
}

// callOriginal implements the native routine.
func (b *Binding) callOriginal(args []vm.Value) (vm.Value, error) {
	t := b.fn.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := toGo(a, t.In(i))
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", b.id, i, err)
		}
		in[i] = v
	}

	out := b.clone.Func.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
}

// redirect makes the function jump to the dispatcher.
func (b *Binding) redirect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.redirected {
		return nil
	}

	code, err := funcCode(b.fn)
	if err != nil {
		return err
	}
	if err := mprotect(code, mprotectRWX); err != nil {
		return err
	}
	if err := insertJump(code, b.dispatch.Pointer()); err != nil {
		mprotect(code, mprotectRX)
		return fmt.Errorf("%s: %w", b.id, err)
	}
	cacheflush(code)
	if err := mprotect(code, mprotectRX); err != nil {
		return err
	}

	b.redirected = true
	log.Debugf("redirected %s to %#x", b.id, b.dispatch.Pointer())
	return nil
}

// restore puts the original machine code back.
func (b *Binding) restore() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.redirected {
		return nil
	}

	code, err := funcCode(b.fn)
	if err != nil {
		return err
	}
	if err := mprotect(code, mprotectRWX); err != nil {
		return err
	}
	copy(code, b.clone.original)
	cacheflush(code)
	if err := mprotect(code, mprotectRX); err != nil {
		return err
	}

	b.redirected = false
	log.Debugf("restored %s", b.id)
	return nil
}
