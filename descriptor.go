package patchwork

import (
	"fmt"

	"github.com/pboyd/patchwork/il"
	"github.com/pboyd/patchwork/splice"
)

// Declaration is one patch: a transform of a target routine, published by an
// owner and optionally tagged with a group.
type Declaration struct {
	// Name identifies the declaration within its owner.
	Name string

	Owner     string
	Group     string
	Target    il.RoutineID
	Transform splice.Transform
}

func (d Declaration) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: no name", ErrInvalidDeclaration)
	}
	if d.Target == "" {
		return fmt.Errorf("%w: %s has no target", ErrInvalidDeclaration, d.Name)
	}
	if d.Transform.Fn == nil {
		return fmt.Errorf("%w: %s has no transform", ErrInvalidDeclaration, d.Name)
	}
	return nil
}

// Discovery finds the declarations an owner publishes.
type Discovery interface {
	Declarations(owner string) ([]Declaration, error)
}

// DiscoveryFunc adapts a function to Discovery.
type DiscoveryFunc func(owner string) ([]Declaration, error)

func (f DiscoveryFunc) Declarations(owner string) ([]Declaration, error) {
	return f(owner)
}

// Table is a fixed Discovery keyed by owner.
type Table map[string][]Declaration

func (t Table) Declarations(owner string) ([]Declaration, error) {
	return t[owner], nil
}

// BodySource returns the pristine body of a routine. Every call returns a
// new copy.
type BodySource interface {
	Body(id il.RoutineID) (*il.Stream, error)
}

// Installer makes a composed body live, or puts the pristine body back.
type Installer interface {
	Install(id il.RoutineID, s *il.Stream) error
	Revert(id il.RoutineID) error
}

// Host is where routines live.
type Host interface {
	BodySource
	Installer
}

// PatchInfo describes an active declaration.
type PatchInfo struct {
	Owner string
	Group string
	Name  string
	Kind  splice.Kind

	// Seq is the registration sequence number. Declarations are composed
	// in ascending Seq order.
	Seq uint64
}
