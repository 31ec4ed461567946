package patchwork

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/pboyd/patchwork/il"
)

var log = commonlog.GetLogger("patchwork")

// entry holds the active patches of one routine. mu is held for the whole
// compose and install cycle.
type entry struct {
	id il.RoutineID

	mu sync.Mutex

	// dead is set once the entry has been dropped from the registry. A
	// caller that was waiting on mu must look the routine up again.
	dead bool

	patches  []*patch
	composed *il.Stream
}

type groupClaim struct {
	owner string

	// active counts active patches in the group, pending counts
	// applications that claimed it and are still running.
	active  int
	pending int
}

// Registry tracks which declarations are active on which routines and keeps
// the installed bodies in line with them.
//
// Every routine is composed and installed under its own lock, so operations
// on different routines never wait for each other. Operations that touch many
// routines handle them one at a time: a failure on one routine is reported
// and the others are still updated.
type Registry struct {
	discovery Discovery
	host      Host
	seq       atomic.Uint64

	// mu guards the maps below. It is never held while waiting for an
	// entry's lock.
	mu      sync.Mutex
	entries map[il.RoutineID]*entry
	owners  map[string]int
	groups  map[string]*groupClaim
}

// New creates a registry that finds declarations through discovery and
// reads and installs routine bodies through host.
func New(discovery Discovery, host Host) *Registry {
	return &Registry{
		discovery: discovery,
		host:      host,
		entries:   map[il.RoutineID]*entry{},
		owners:    map[string]int{},
		groups:    map[string]*groupClaim{},
	}
}

// ApplyAll activates every declaration owner publishes. Declarations that are
// already active are left alone.
//
// The returned Handle covers whatever was activated, even when some routines
// failed. Failures are joined into the error, each one a *PatchError.
func (r *Registry) ApplyAll(owner string) (*Handle, error) {
	return r.apply("apply", owner, "")
}

// ApplyGroup is like ApplyAll but only activates declarations in group.
func (r *Registry) ApplyGroup(owner, group string) (*Handle, error) {
	if group == "" {
		return nil, &PatchError{Op: "apply group", Owner: owner, Err: ErrInvalidGroup}
	}
	return r.apply("apply group", owner, group)
}

func (r *Registry) apply(op, owner, group string) (*Handle, error) {
	decls, err := r.discovery.Declarations(owner)
	if err != nil {
		return nil, &PatchError{Op: op, Owner: owner, Group: group, Err: err}
	}

	var errs []error
	var targets []il.RoutineID
	byTarget := map[il.RoutineID][]*patch{}
	claimed := map[string]error{}

	for _, d := range decls {
		d.Owner = owner
		if group != "" && d.Group != group {
			continue
		}
		if err := d.validate(); err != nil {
			errs = append(errs, &PatchError{Op: op, Owner: owner, Group: d.Group, Routine: d.Target, Err: err})
			continue
		}
		if d.Group != "" {
			err, seen := claimed[d.Group]
			if !seen {
				err = r.claim(owner, d.Group)
				claimed[d.Group] = err
				if err != nil {
					errs = append(errs, &PatchError{Op: op, Owner: owner, Group: d.Group, Err: err})
				}
			}
			if err != nil {
				continue
			}
		}

		p := &patch{decl: d, seq: r.seq.Add(1)}
		if _, ok := byTarget[d.Target]; !ok {
			targets = append(targets, d.Target)
		}
		byTarget[d.Target] = append(byTarget[d.Target], p)
	}

	h := &Handle{r: r, owner: owner}
	for _, id := range targets {
		added, err := r.add(id, byTarget[id])
		if err != nil {
			errs = append(errs, &PatchError{Op: op, Owner: owner, Group: failedGroup(err, byTarget[id]), Routine: id, Err: err})
			continue
		}
		h.patches = append(h.patches, added...)
	}

	for g, err := range claimed {
		if err == nil {
			r.unclaim(g)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		log.Errorf("%s %q: %d of %d routines failed: %v", op, owner, len(errs), len(targets), err)
	}
	log.Infof("%s %q: %d patches activated on %d routines", op, owner, len(h.patches), len(targets))
	return h, err
}

func (r *Registry) add(id il.RoutineID, ps []*patch) ([]*patch, error) {
	var added []*patch
	err := r.update(id, true, func(cur []*patch) ([]*patch, bool) {
		added = nil
		active := make(map[patchKey]bool, len(cur)+len(ps))
		for _, p := range cur {
			active[p.key()] = true
		}
		next := append([]*patch(nil), cur...)
		for _, p := range ps {
			if active[p.key()] {
				continue
			}
			active[p.key()] = true
			next = append(next, p)
			added = append(added, p)
		}
		sortPatches(next)
		return next, len(added) > 0
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveAll deactivates every declaration of owner. Removing an owner with no
// active declarations is not an error.
func (r *Registry) RemoveAll(owner string) error {
	return r.removeWhere("remove", owner, func(p *patch) bool {
		return p.decl.Owner == owner
	})
}

// RemoveGroup deactivates owner's declarations in group.
func (r *Registry) RemoveGroup(owner, group string) error {
	if group == "" {
		return &PatchError{Op: "remove group", Owner: owner, Err: ErrInvalidGroup}
	}
	return r.removeWhere("remove group", owner, func(p *patch) bool {
		return p.decl.Owner == owner && p.decl.Group == group
	})
}

// Remove deactivates owner's declarations on one routine. It fails with
// ErrUnknownRoutine if owner has nothing active on the routine, even when
// other owners do.
func (r *Registry) Remove(owner string, id il.RoutineID) error {
	var removed []*patch
	err := r.update(id, false, without(func(p *patch) bool {
		return p.decl.Owner == owner
	}, &removed))
	if err != nil {
		return &PatchError{Op: "remove", Owner: owner, Group: sharedGroup(removed), Routine: id, Err: err}
	}
	if len(removed) == 0 {
		return &PatchError{Op: "remove", Owner: owner, Routine: id, Err: ErrUnknownRoutine}
	}
	return nil
}

func (r *Registry) removeWhere(op, owner string, match func(*patch) bool) error {
	var errs []error
	for _, id := range r.Routines() {
		var removed []*patch
		if err := r.update(id, false, without(match, &removed)); err != nil {
			errs = append(errs, &PatchError{Op: op, Owner: owner, Group: sharedGroup(removed), Routine: id, Err: err})
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		log.Errorf("%s %q: %v", op, owner, err)
	} else {
		log.Infof("%s %q", op, owner)
	}
	return err
}

// without drops the patches matching match and collects them in removed.
func without(match func(*patch) bool, removed *[]*patch) func([]*patch) ([]*patch, bool) {
	return func(cur []*patch) ([]*patch, bool) {
		*removed = (*removed)[:0]
		next := make([]*patch, 0, len(cur))
		for _, p := range cur {
			if match(p) {
				*removed = append(*removed, p)
			} else {
				next = append(next, p)
			}
		}
		return next, len(next) != len(cur)
	}
}

// failedGroup names the group behind a failed change to ps: the failing
// declaration's group when a transform failed, otherwise the group every
// patch in ps shares.
func failedGroup(err error, ps []*patch) string {
	var ce *composeError
	if errors.As(err, &ce) {
		return ce.patch.decl.Group
	}
	return sharedGroup(ps)
}

func sharedGroup(ps []*patch) string {
	if len(ps) == 0 {
		return ""
	}
	group := ps[0].decl.Group
	for _, p := range ps[1:] {
		if p.decl.Group != group {
			return ""
		}
	}
	return group
}

// update changes the patches on id and installs the result. mutate returns
// the new patch list and whether it differs from the current one; it may be
// called more than once. Nothing changes if composing or installing fails.
func (r *Registry) update(id il.RoutineID, create bool, mutate func([]*patch) ([]*patch, bool)) error {
	for {
		e := r.lookup(id, create)
		if e == nil {
			return nil
		}

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		err := r.commit(e, mutate)
		if len(e.patches) == 0 {
			r.drop(e)
		}
		e.mu.Unlock()
		return err
	}
}

// commit must be called with e.mu held.
func (r *Registry) commit(e *entry, mutate func([]*patch) ([]*patch, bool)) error {
	next, changed := mutate(e.patches)
	if !changed {
		return nil
	}

	var composed *il.Stream
	if len(next) == 0 {
		if err := r.host.Revert(e.id); err != nil {
			return fmt.Errorf("%w: %w", ErrInstallFailure, err)
		}
		log.Debugf("%s: reverted", e.id)
	} else {
		s, err := compose(r.host, e.id, next)
		if err != nil {
			return err
		}
		if err := r.host.Install(e.id, s); err != nil {
			return fmt.Errorf("%w: %w", ErrInstallFailure, err)
		}
		composed = s
		if log.AllowLevel(commonlog.Debug) {
			fp, _ := il.FingerprintOf(s)
			log.Debugf("%s: installed %d patches (%s)", e.id, len(next), fp)
		}
	}

	r.account(e.patches, next)
	e.patches = next
	e.composed = composed
	return nil
}

func (r *Registry) lookup(id il.RoutineID, create bool) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entries[id]
	if e == nil && create {
		e = &entry{id: id}
		r.entries[id] = e
	}
	return e
}

// drop must be called with e.mu held.
func (r *Registry) drop(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[e.id] == e {
		delete(r.entries, e.id)
	}
	e.dead = true
}

// read calls fn with the live entry for id, or returns false if there is
// none.
func (r *Registry) read(id il.RoutineID, fn func(*entry)) bool {
	for {
		e := r.lookup(id, false)
		if e == nil {
			return false
		}
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		fn(e)
		e.mu.Unlock()
		return true
	}
}

func (r *Registry) claim(owner, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.groups[group]
	if c == nil {
		c = &groupClaim{owner: owner}
		r.groups[group] = c
	}
	if c.owner != owner {
		return fmt.Errorf("%w: %q is held by %q", ErrDuplicateGroup, group, c.owner)
	}
	c.pending++
	return nil
}

func (r *Registry) unclaim(group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.groups[group]; c != nil {
		c.pending--
		r.release(group, c)
	}
}

// release must be called with r.mu held.
func (r *Registry) release(group string, c *groupClaim) {
	if c.active == 0 && c.pending == 0 {
		delete(r.groups, group)
	}
}

// account updates the owner and group counts after a routine's patches went
// from old to next.
func (r *Registry) account(old, next []*patch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	was := make(map[*patch]bool, len(old))
	for _, p := range old {
		was[p] = true
	}
	for _, p := range next {
		if was[p] {
			delete(was, p)
			continue
		}
		r.owners[p.decl.Owner]++
		if g := p.decl.Group; g != "" {
			r.groups[g].active++
		}
	}
	for p := range was {
		r.owners[p.decl.Owner]--
		if r.owners[p.decl.Owner] == 0 {
			delete(r.owners, p.decl.Owner)
		}
		if g := p.decl.Group; g != "" {
			c := r.groups[g]
			c.active--
			r.release(g, c)
		}
	}
}

// Query lists the active declarations on id in composition order.
func (r *Registry) Query(id il.RoutineID) []PatchInfo {
	var infos []PatchInfo
	r.read(id, func(e *entry) {
		infos = make([]PatchInfo, len(e.patches))
		for i, p := range e.patches {
			infos[i] = p.info()
		}
	})
	return infos
}

// Routines lists the routines that have active declarations, sorted.
func (r *Registry) Routines() []il.RoutineID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]il.RoutineID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasPatches reports whether owner has any active declarations.
func (r *Registry) HasPatches(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owners[owner] > 0
}

// Original returns a copy of the pristine body of id.
func (r *Registry) Original(id il.RoutineID) (*il.Stream, error) {
	return r.host.Body(id)
}

// Composed returns a copy of the body installed for id: the composition of
// its active declarations, or the pristine body if there are none.
func (r *Registry) Composed(id il.RoutineID) (*il.Stream, error) {
	var s *il.Stream
	r.read(id, func(e *entry) {
		if e.composed != nil {
			s = e.composed.Clone()
		}
	})
	if s != nil {
		return s, nil
	}
	return r.host.Body(id)
}

// Fingerprint identifies the body installed for id.
func (r *Registry) Fingerprint(id il.RoutineID) (il.Fingerprint, error) {
	s, err := r.Composed(id)
	if err != nil {
		return il.Fingerprint{}, err
	}
	return il.FingerprintOf(s)
}

// Handle is the result of one apply call.
type Handle struct {
	r       *Registry
	owner   string
	patches []*patch
}

// Owner is the owner the declarations were applied for.
func (h *Handle) Owner() string {
	return h.owner
}

// Patches lists what the apply call activated.
func (h *Handle) Patches() []PatchInfo {
	infos := make([]PatchInfo, len(h.patches))
	for i, p := range h.patches {
		infos[i] = p.info()
	}
	return infos
}

// Remove deactivates exactly what the apply call activated. Declarations
// that were already removed some other way, or applied again since, are
// left alone.
func (h *Handle) Remove() error {
	if h == nil || len(h.patches) == 0 {
		return nil
	}

	mine := make(map[*patch]bool, len(h.patches))
	var targets []il.RoutineID
	for _, p := range h.patches {
		mine[p] = true
		if len(targets) == 0 || targets[len(targets)-1] != p.decl.Target {
			targets = append(targets, p.decl.Target)
		}
	}

	var errs []error
	for _, id := range targets {
		var removed []*patch
		err := h.r.update(id, false, without(func(p *patch) bool { return mine[p] }, &removed))
		if err != nil {
			errs = append(errs, &PatchError{Op: "remove", Owner: h.owner, Group: sharedGroup(removed), Routine: id, Err: err})
		}
	}
	return errors.Join(errs...)
}
