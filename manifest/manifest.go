// Package manifest reads patchwork.toml files: routines to define on a
// vm.Host and the patches owners publish for them.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/pboyd/patchwork"
	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/vm"
)

// Manifest is a parsed patchwork.toml.
type Manifest struct {
	Log      Log       `toml:"log"`
	Routines []Routine `toml:"routine"`
	Patches  []Patch   `toml:"patch"`

	// Path is the file the manifest was loaded from (set at load time).
	Path string `toml:"-"`

	decls map[string][]patchwork.Declaration
}

// Log configures logging for tools that read the manifest.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Routine is a routine body in assembly text.
type Routine struct {
	ID     string `toml:"id"`
	Arity  int    `toml:"arity"`
	Locals int    `toml:"locals"`
	Code   string `toml:"code"`
}

// Patch is one declaration.
type Patch struct {
	Owner  string `toml:"owner"`
	Name   string `toml:"name"`
	Group  string `toml:"group"`
	Target string `toml:"target"`

	// Kind is before, deniable-before, after, replace or splice.
	Kind string `toml:"kind"`

	// Code is the inserted code for every kind but splice.
	Code string `toml:"code"`

	// Edits are the steps of a splice.
	Edits []Edit `toml:"edit"`
}

// Edit is one anchored step of a splice patch.
type Edit struct {
	// Anchor is an instruction in assembly text. An opcode on its own
	// matches any operand.
	Anchor    string `toml:"anchor"`
	Offset    int    `toml:"offset"`
	Direction string `toml:"direction"`

	Action    string `toml:"action"`
	Code      string `toml:"code"`
	Placement string `toml:"placement"`
	Count     int    `toml:"count"`

	// Operand is written as it would follow the anchor's opcode.
	Operand string `toml:"operand"`

	Mark string `toml:"mark"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse decodes a manifest and compiles its patches.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	// Defaults
	for i := range m.Patches {
		p := &m.Patches[i]
		if p.Kind == "" && len(p.Edits) > 0 {
			p.Kind = "splice"
		}
		for j := range p.Edits {
			if p.Edits[j].Direction == "" {
				p.Edits[j].Direction = "forward"
			}
		}
	}

	seen := map[string]bool{}
	for _, r := range m.Routines {
		if r.ID == "" {
			return nil, fmt.Errorf("routine without an id")
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("routine %s is defined twice", r.ID)
		}
		seen[r.ID] = true
	}

	m.decls = map[string][]patchwork.Declaration{}
	for _, p := range m.Patches {
		if p.Owner == "" {
			return nil, fmt.Errorf("patch %q has no owner", p.Name)
		}
		t, err := p.transform()
		if err != nil {
			return nil, fmt.Errorf("patch %s/%s: %w", p.Owner, p.Name, err)
		}
		m.decls[p.Owner] = append(m.decls[p.Owner], patchwork.Declaration{
			Name:      p.Name,
			Owner:     p.Owner,
			Group:     p.Group,
			Target:    il.RoutineID(p.Target),
			Transform: t,
		})
	}

	return &m, nil
}

// Declarations implements patchwork.Discovery.
func (m *Manifest) Declarations(owner string) ([]patchwork.Declaration, error) {
	return append([]patchwork.Declaration(nil), m.decls[owner]...), nil
}

// Owners lists every owner that publishes patches, sorted.
func (m *Manifest) Owners() []string {
	owners := make([]string, 0, len(m.decls))
	for owner := range m.decls {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// Define assembles every routine and defines it on h, in manifest order. A
// routine can only call routines defined before it, or itself.
func (m *Manifest) Define(h *vm.Host) error {
	for _, r := range m.Routines {
		s, err := il.Assemble(r.Arity, r.Locals, r.Code)
		if err != nil {
			return fmt.Errorf("routine %s: %w", r.ID, err)
		}
		if err := h.Define(il.RoutineID(r.ID), s); err != nil {
			return err
		}
	}
	return nil
}
