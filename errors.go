package patchwork

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pboyd/patchwork/il"
)

var (
	// ErrAnchorNotFound is returned when a transform cannot find the
	// instruction it edits. It is the same error as il.ErrAnchorNotFound.
	ErrAnchorNotFound = il.ErrAnchorNotFound

	ErrInvalidGroup       = errors.New("group must not be empty")
	ErrDuplicateGroup     = errors.New("group belongs to another owner")
	ErrInstallFailure     = errors.New("install failed")
	ErrUnknownRoutine     = errors.New("routine has no patches")
	ErrInvalidDeclaration = errors.New("invalid declaration")
)

// PatchError describes a failed registry operation. Fields that do not apply
// are empty.
type PatchError struct {
	Op      string
	Owner   string
	Group   string
	Routine il.RoutineID
	Err     error
}

func (e *PatchError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Owner != "" {
		fmt.Fprintf(&sb, " owner %q", e.Owner)
	}
	if e.Group != "" {
		fmt.Fprintf(&sb, " group %q", e.Group)
	}
	if e.Routine != "" {
		fmt.Fprintf(&sb, " routine %s", e.Routine)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *PatchError) Unwrap() error {
	return e.Err
}
