//go:build linux && (amd64 || arm64)

package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/vm"
)

var log = commonlog.GetLogger("patchwork.native")

// Installer is a vm.Host that also redirects bound Go functions. Installing a
// body on a bound routine sends calls to the function through its
// dispatcher. Reverting sends them back to the function's own code.
type Installer struct {
	*vm.Host

	mu       sync.Mutex
	bindings map[il.RoutineID]*Binding
}

// NewInstaller wraps h.
func NewInstaller(h *vm.Host) *Installer {
	return &Installer{
		Host:     h,
		bindings: map[il.RoutineID]*Binding{},
	}
}

// Bind registers fn as routine id. dispatch must have fn's signature and is
// where calls to fn go while a body is installed; it normally just calls id on
// the host and converts the result with As. dispatch must be a top-level
// function, not a closure.
//
// fn must not be inlined into its callers, or the callers will never see the
// redirect.
func (in *Installer) Bind(id il.RoutineID, fn, dispatch any) (*Binding, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, exists := in.bindings[id]; exists {
		return nil, fmt.Errorf("%w: %s", vm.ErrDuplicateRoutine, id)
	}

	b, err := newBinding(id, fn, dispatch)
	if err != nil {
		return nil, err
	}

	orig := id + OriginalSuffix
	if err := in.Host.Native(orig, b.fn.Type().NumIn(), b.callOriginal); err != nil {
		return nil, errors.Join(err, b.clone.Free())
	}
	body, err := b.body()
	if err == nil {
		err = in.Host.Define(id, body)
	}
	if err != nil {
		in.Host.Undefine(orig)
		return nil, errors.Join(err, b.clone.Free())
	}

	in.bindings[id] = b
	log.Infof("bound %s", id)
	return b, nil
}

// Binding returns the binding for id, or nil.
func (in *Installer) Binding(id il.RoutineID) *Binding {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.bindings[id]
}

// Unbind reverts id, removes both of its routines and frees the copy of the
// original code. Functions returned by Original must not be called
// afterwards.
func (in *Installer) Unbind(id il.RoutineID) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	b, ok := in.bindings[id]
	if !ok {
		return fmt.Errorf("%w: %s is not bound", vm.ErrUnknownRoutine, id)
	}
	if err := b.restore(); err != nil {
		return err
	}
	delete(in.bindings, id)
	return errors.Join(
		in.Host.Undefine(id),
		in.Host.Undefine(id+OriginalSuffix),
		b.clone.Free(),
	)
}

// Install installs s on the host and, if id is bound, redirects the
// function. If the redirect fails the defined body is put back.
func (in *Installer) Install(id il.RoutineID, s *il.Stream) error {
	b := in.Binding(id)
	if b == nil {
		return in.Host.Install(id, s)
	}

	if err := in.Host.Install(id, s); err != nil {
		return err
	}
	if err := b.redirect(); err != nil {
		if rerr := in.Host.Revert(id); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// Revert restores the function's code, if id is bound, then the defined
// body.
func (in *Installer) Revert(id il.RoutineID) error {
	if b := in.Binding(id); b != nil {
		if err := b.restore(); err != nil {
			return err
		}
	}
	return in.Host.Revert(id)
}
