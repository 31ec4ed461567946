package vm

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRoutine   = errors.New("unknown routine")
	ErrDuplicateRoutine = errors.New("routine already defined")
	ErrNotPatchable     = errors.New("native routines have no body")
	ErrVerify           = errors.New("body failed verification")
	ErrStackOverflow    = errors.New("call depth exceeded")
	ErrArity            = errors.New("wrong number of arguments")
	ErrType             = errors.New("wrong value type")
	ErrDivideByZero     = errors.New("division by zero")
)

// RuntimeError reports where a call failed.
type RuntimeError struct {
	Routine string
	PC      int
	Err     error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s@%d: %v", e.Routine, e.PC, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
