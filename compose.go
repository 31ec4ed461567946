package patchwork

import (
	"fmt"
	"sort"

	"github.com/pboyd/patchwork/il"
)

type patchKey struct {
	owner  string
	name   string
	target il.RoutineID
}

// patch is an active declaration.
type patch struct {
	decl Declaration
	seq  uint64
}

func (p *patch) key() patchKey {
	return patchKey{owner: p.decl.Owner, name: p.decl.Name, target: p.decl.Target}
}

func (p *patch) info() PatchInfo {
	return PatchInfo{
		Owner: p.decl.Owner,
		Group: p.decl.Group,
		Name:  p.decl.Name,
		Kind:  p.decl.Transform.Kind,
		Seq:   p.seq,
	}
}

func sortPatches(patches []*patch) {
	sort.Slice(patches, func(i, j int) bool { return patches[i].seq < patches[j].seq })
}

// compose applies patches, in order, to a fresh copy of the routine's
// pristine body. The first failing transform fails the whole composition.
func compose(src BodySource, id il.RoutineID, patches []*patch) (*il.Stream, error) {
	s, err := src.Body(id)
	if err != nil {
		return nil, err
	}
	for _, p := range patches {
		if err := p.decl.Transform.Apply(s); err != nil {
			return nil, &composeError{patch: p, err: err}
		}
	}
	if _, err := il.Resolve(s); err != nil {
		return nil, err
	}
	return s, nil
}

// composeError is a transform failure, tied to the patch that caused it.
type composeError struct {
	patch *patch
	err   error
}

func (e *composeError) Error() string {
	d := e.patch.decl
	return fmt.Sprintf("%s/%s (%s): %v", d.Owner, d.Name, d.Transform.Kind, e.err)
}

func (e *composeError) Unwrap() error { return e.err }
