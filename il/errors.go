package il

import "errors"

var (
	ErrAnchorNotFound = errors.New("anchor not found")
	ErrSlotExhausted  = errors.New("local slots exhausted")
	ErrDanglingLabel  = errors.New("dangling label")
	ErrUnboundName    = errors.New("unbound name")
	ErrLabelAttached  = errors.New("label already attached")
	ErrForeignLabel   = errors.New("label belongs to another stream")
	ErrLabelPlacement = errors.New("label placement must be KeepLabels or MoveLabels")
	ErrOutOfRange     = errors.New("index out of range")
	ErrBadOperand     = errors.New("operand does not fit opcode")
)
