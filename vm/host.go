package vm

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/pboyd/patchwork/il"
)

var log = commonlog.GetLogger("patchwork.vm")

// DefaultMaxDepth bounds nested calls unless SetMaxDepth says otherwise.
const DefaultMaxDepth = 256

// NativeFunc implements a routine in Go. args has exactly the routine's
// arity and must not be retained.
type NativeFunc func(args []Value) (Value, error)

type routine struct {
	id    il.RoutineID
	arity int

	native NativeFunc

	// pristine is the body as defined, program the one calls run.
	pristine *il.Stream
	original *program
	program  atomic.Pointer[program]
}

// Host owns a set of routines and runs them.
//
// Bodies are swapped atomically: a call that already started keeps running
// the body it started with.
type Host struct {
	mu       sync.RWMutex
	routines map[il.RoutineID]*routine

	maxDepth atomic.Int32
}

// NewHost creates an empty host.
func NewHost() *Host {
	h := &Host{
		routines: map[il.RoutineID]*routine{},
	}
	h.maxDepth.Store(DefaultMaxDepth)
	return h
}

// SetMaxDepth changes the call depth limit.
func (h *Host) SetMaxDepth(n int) {
	h.maxDepth.Store(int32(n))
}

// Define adds a routine with the body s. The body is verified and copied;
// later edits to s have no effect.
func (h *Host) Define(id il.RoutineID, s *il.Stream) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.routines[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoutine, id)
	}

	r := &routine{
		id:       id,
		arity:    s.Arity(),
		pristine: s.Clone(),
	}
	// Registered before compiling so the body may call itself.
	h.routines[id] = r
	p, err := h.compile(r, s)
	if err != nil {
		delete(h.routines, id)
		return fmt.Errorf("%s: %w", id, err)
	}
	r.original = p
	r.program.Store(p)

	log.Debugf("defined %s (arity %d, %d instructions)", id, r.arity, s.Len())
	return nil
}

// Native adds a routine implemented by fn.
func (h *Host) Native(id il.RoutineID, arity int, fn NativeFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.routines[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoutine, id)
	}
	h.routines[id] = &routine{id: id, arity: arity, native: fn}
	log.Debugf("defined native %s (arity %d)", id, arity)
	return nil
}

// Undefine removes a routine. Bodies already compiled against it keep
// calling it.
func (h *Host) Undefine(id il.RoutineID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.routines[id]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownRoutine, id)
	}
	delete(h.routines, id)
	log.Debugf("undefined %s", id)
	return nil
}

// Body returns a copy of the routine's body as it was defined, regardless of
// what is installed.
func (h *Host) Body(id il.RoutineID) (*il.Stream, error) {
	r, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	if r.native != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotPatchable, id)
	}
	return r.pristine.Clone(), nil
}

// Install verifies s and makes it the body of id. Nothing changes if
// verification fails.
func (h *Host) Install(id il.RoutineID, s *il.Stream) error {
	r, err := h.lookup(id)
	if err != nil {
		return err
	}
	if r.native != nil {
		return fmt.Errorf("%w: %s", ErrNotPatchable, id)
	}
	if s.Arity() != r.arity {
		return fmt.Errorf("%w: %s takes %d arguments, body expects %d", ErrVerify, id, r.arity, s.Arity())
	}

	h.mu.RLock()
	p, err := h.compile(r, s)
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	r.program.Store(p)
	log.Debugf("installed %s (%s)", id, p.fingerprint)
	return nil
}

// Revert puts the defined body of id back.
func (h *Host) Revert(id il.RoutineID) error {
	r, err := h.lookup(id)
	if err != nil {
		return err
	}
	if r.native != nil {
		return fmt.Errorf("%w: %s", ErrNotPatchable, id)
	}
	r.program.Store(r.original)
	log.Debugf("reverted %s", id)
	return nil
}

// Installed returns the fingerprint of the body calls to id currently run.
func (h *Host) Installed(id il.RoutineID) (il.Fingerprint, error) {
	r, err := h.lookup(id)
	if err != nil {
		return il.Fingerprint{}, err
	}
	if r.native != nil {
		return il.Fingerprint{}, fmt.Errorf("%w: %s", ErrNotPatchable, id)
	}
	return r.program.Load().fingerprint, nil
}

// Arity returns the number of arguments id takes.
func (h *Host) Arity(id il.RoutineID) (int, error) {
	r, err := h.lookup(id)
	if err != nil {
		return 0, err
	}
	return r.arity, nil
}

// Routines lists every routine, sorted.
func (h *Host) Routines() []il.RoutineID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]il.RoutineID, 0, len(h.routines))
	for id := range h.routines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Call runs id with args.
func (h *Host) Call(id il.RoutineID, args ...Value) (Value, error) {
	r, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	in := make([]Value, len(args))
	for i, a := range args {
		if in[i], err = normalize(a); err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", id, i, err)
		}
	}
	return h.call(r, in, 0)
}

func (h *Host) lookup(id il.RoutineID) (*routine, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.routines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoutine, id)
	}
	return r, nil
}
