package il

import (
	"fmt"
	"strconv"
)

// OperandKind identifies what an Operand holds.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandNil
	OperandInt
	OperandString
	OperandBool
	OperandSlot
	OperandLabel
	OperandRoutine

	// Symbolic names, bound to a real label or slot by a Names binding before
	// the stream can be resolved.
	OperandLabelName
	OperandSlotName

	// operandConst is only used in the opcode table: any of nil, int, string
	// or bool.
	operandConst
)

var operandKindNames = [...]string{
	OperandNone:      "none",
	OperandNil:       "nil",
	OperandInt:       "int",
	OperandString:    "string",
	OperandBool:      "bool",
	OperandSlot:      "slot",
	OperandLabel:     "label",
	OperandRoutine:   "routine",
	OperandLabelName: "label name",
	OperandSlotName:  "slot name",
	operandConst:     "constant",
}

func (k OperandKind) String() string {
	if int(k) < len(operandKindNames) {
		return operandKindNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// RoutineID is the stable name of a host routine, e.g. "Player.Hurt".
type RoutineID string

// Operand is the argument of an instruction. Only the field matching Kind is
// meaningful.
type Operand struct {
	Kind    OperandKind
	Int     int64
	Str     string
	Bool    bool
	Slot    LocalSlot
	Label   *Label
	Routine RoutineID

	// SlotKind is the value kind requested by a named slot.
	SlotKind ValueKind
}

func Nil() Operand              { return Operand{Kind: OperandNil} }
func Int(v int64) Operand       { return Operand{Kind: OperandInt, Int: v} }
func Str(v string) Operand      { return Operand{Kind: OperandString, Str: v} }
func Bool(v bool) Operand       { return Operand{Kind: OperandBool, Bool: v} }
func Slot(s LocalSlot) Operand  { return Operand{Kind: OperandSlot, Slot: s} }
func To(l *Label) Operand       { return Operand{Kind: OperandLabel, Label: l} }
func Call(id RoutineID) Operand { return Operand{Kind: OperandRoutine, Routine: id} }

// LabelName refers to a label that will be bound by name when the
// instruction is spliced into a stream.
func LabelName(name string) Operand {
	return Operand{Kind: OperandLabelName, Str: name}
}

// SlotName refers to a local slot that is reserved on first use of name and
// reused afterwards within the same descriptor.
func SlotName(name string, kind ValueKind) Operand {
	return Operand{Kind: OperandSlotName, Str: name, SlotKind: kind}
}

// Equal compares two operands by value. Labels compare by identity.
func (o Operand) Equal(other Operand) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case OperandNone, OperandNil:
		return true
	case OperandInt:
		return o.Int == other.Int
	case OperandString, OperandLabelName:
		return o.Str == other.Str
	case OperandSlotName:
		return o.Str == other.Str && o.SlotKind == other.SlotKind
	case OperandBool:
		return o.Bool == other.Bool
	case OperandSlot:
		return o.Slot.index == other.Slot.index
	case OperandLabel:
		return o.Label == other.Label
	case OperandRoutine:
		return o.Routine == other.Routine
	}
	return false
}

// IsConst reports whether o is a constant push operand.
func (o Operand) IsConst() bool {
	switch o.Kind {
	case OperandNil, OperandInt, OperandString, OperandBool:
		return true
	}
	return false
}

// fits reports whether o may be used with an opcode expecting want.
func (o Operand) fits(want OperandKind) bool {
	switch want {
	case operandConst:
		return o.IsConst()
	case OperandSlot:
		return o.Kind == OperandSlot || o.Kind == OperandSlotName
	case OperandLabel:
		return o.Kind == OperandLabel || o.Kind == OperandLabelName
	}
	return o.Kind == want
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandNone:
		return ""
	case OperandNil:
		return "nil"
	case OperandInt:
		return strconv.FormatInt(o.Int, 10)
	case OperandString:
		return strconv.Quote(o.Str)
	case OperandBool:
		return strconv.FormatBool(o.Bool)
	case OperandSlot:
		return strconv.Itoa(o.Slot.index)
	case OperandLabel:
		return o.Label.String()
	case OperandRoutine:
		return string(o.Routine)
	case OperandLabelName:
		return "@" + o.Str
	case OperandSlotName:
		if o.SlotKind == KindAny {
			return "$" + o.Str
		}
		return "$" + o.Str + ":" + o.SlotKind.String()
	}
	return "?"
}
