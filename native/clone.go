//go:build linux && (amd64 || arm64)

package native

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
)

var errCloneFreed = errors.New("clone was freed")

// clonedFunc is a relocated copy of a function that keeps working after the
// original's entry point has been overwritten.
type clonedFunc struct {
	// Func calls the copy. It has the original's type.
	Func reflect.Value

	// code lives in cloneAllocator's arena. ref keeps a pointer to it that
	// Func's closure word points at.
	code []byte
	ref  **byte

	// original is a copy of the original machine code, used to undo a
	// redirect.
	original []byte
}

func cloneFunc(fn reflect.Value) (*clonedFunc, error) {
	src, err := funcCode(fn)
	if err != nil {
		return nil, err
	}

	var dest, code []byte
	// Room for trampolines and padding.
	size := 2*len(src) + 16
	err = clones.write(size, func(arena *malloc.Arena) error {
		var err error
		if dest, err = malloc.MallocSlice[byte](arena, size); err != nil {
			return err
		}
		if code, err = relocateFunc(src, dest); err != nil {
			malloc.FreeSlice(arena, dest)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cacheflush(code)

	// A func value points at a word holding the code address. Build one
	// whose word is the start of the copy.
	entry := unsafe.SliceData(code)
	cf := &clonedFunc{
		code: dest,
		ref:  &entry,
	}
	fv := reflect.New(fn.Type())
	*(***byte)(fv.UnsafePointer()) = cf.ref
	cf.Func = fv.Elem()

	cf.original = make([]byte, len(src))
	copy(cf.original, src)

	log.Debugf("cloned %d bytes of code to %p", len(src), entry)
	return cf, nil
}

// Free releases the copy. Func must not be called afterwards. The copy stays
// usable if the arena cannot be made writable.
func (cf *clonedFunc) Free() error {
	if cf.code == nil {
		return errCloneFreed
	}
	err := clones.write(0, func(arena *malloc.Arena) error {
		malloc.FreeSlice(arena, cf.code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("freeing clone: %w", err)
	}

	cf.code = nil
	*cf.ref = nil
	cf.ref = nil
	cf.original = nil
	cf.Func = reflect.Value{}
	return nil
}

// Disassemble lists the copy's machine code.
func (cf *clonedFunc) Disassemble() (string, error) {
	if cf.code == nil {
		return "", errCloneFreed
	}
	return disassemble(cf.code)
}

// codeArena hands out executable memory. The arena is only writable inside
// write.
type codeArena struct {
	mu      sync.Mutex
	arena   *malloc.Arena
	protect func(int) error
}

var clones codeArena

// write makes the arena writable, runs fn and makes it executable again. The
// first call creates the arena, sized for at least hint bytes.
func (a *codeArena) write(hint int, fn func(*malloc.Arena) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.arena == nil {
		if err := a.open(hint); err != nil {
			return err
		}
	} else if err := a.protect(mprotectRWX); err != nil {
		return fmt.Errorf("making code arena writable: %w", err)
	}

	err := fn(a.arena)
	if perr := a.protect(mprotectRX); perr != nil {
		err = errors.Join(err, fmt.Errorf("making code arena executable: %w", perr))
	}
	return err
}

// open must be called with a.mu held. A fresh arena is writable.
func (a *codeArena) open(size int) error {
	be := malloc.MmapBackend(mprotectExec, mmapFlags)
	a.protect = func(int) error { return nil }
	if pb, ok := be.(malloc.ProtectedArenaBackend); ok {
		a.protect = pb.Protect
	}

	a.arena = malloc.NewArena(uint64(max(size, 1)), malloc.Backend(be))
	if a.arena == nil {
		return errors.New("unable to create code arena")
	}
	return nil
}
