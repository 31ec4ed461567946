package il

import (
	"fmt"
	"strings"
)

// Opcode is a single instruction of the stack machine.
type Opcode uint8

const (
	NOP Opcode = iota
	PUSH
	POP
	DUP
	SWAP

	LDARG
	STARG
	LDLOC
	STLOC

	ADD
	SUB
	MUL
	DIV
	NEG

	EQ
	NE
	LT
	LE
	GT
	GE
	NOT

	JMP
	JMPT
	JMPF

	CALL
	RET

	NEW
	GETF
	SETF

	numOpcodes
)

// Variable marks a stack effect that depends on the operand (CALL pops the
// callee's arity).
const Variable = -1

// OpInfo describes an opcode.
type OpInfo struct {
	Name    string
	Operand OperandKind // required operand kind, OperandNone for none
	Pop     int
	Push    int
	Branch  bool // operand is a jump target
	Cond    bool // branch falls through when not taken
	Return  bool
}

var opTable = [numOpcodes]OpInfo{
	NOP:  {Name: "nop"},
	PUSH: {Name: "push", Operand: operandConst, Push: 1},
	POP:  {Name: "pop", Pop: 1},
	DUP:  {Name: "dup", Pop: 1, Push: 2},
	SWAP: {Name: "swap", Pop: 2, Push: 2},

	LDARG: {Name: "ldarg", Operand: OperandInt, Push: 1},
	STARG: {Name: "starg", Operand: OperandInt, Pop: 1},
	LDLOC: {Name: "ldloc", Operand: OperandSlot, Push: 1},
	STLOC: {Name: "stloc", Operand: OperandSlot, Pop: 1},

	ADD: {Name: "add", Pop: 2, Push: 1},
	SUB: {Name: "sub", Pop: 2, Push: 1},
	MUL: {Name: "mul", Pop: 2, Push: 1},
	DIV: {Name: "div", Pop: 2, Push: 1},
	NEG: {Name: "neg", Pop: 1, Push: 1},

	EQ:  {Name: "eq", Pop: 2, Push: 1},
	NE:  {Name: "ne", Pop: 2, Push: 1},
	LT:  {Name: "lt", Pop: 2, Push: 1},
	LE:  {Name: "le", Pop: 2, Push: 1},
	GT:  {Name: "gt", Pop: 2, Push: 1},
	GE:  {Name: "ge", Pop: 2, Push: 1},
	NOT: {Name: "not", Pop: 1, Push: 1},

	JMP:  {Name: "jmp", Operand: OperandLabel, Branch: true},
	JMPT: {Name: "jmpt", Operand: OperandLabel, Pop: 1, Branch: true, Cond: true},
	JMPF: {Name: "jmpf", Operand: OperandLabel, Pop: 1, Branch: true, Cond: true},

	CALL: {Name: "call", Operand: OperandRoutine, Pop: Variable, Push: 1},
	RET:  {Name: "ret", Pop: 1, Return: true},

	NEW:  {Name: "new", Operand: OperandString, Push: 1},
	GETF: {Name: "getf", Operand: OperandString, Pop: 1, Push: 1},
	SETF: {Name: "setf", Operand: OperandString, Pop: 2},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op := Opcode(0); op < numOpcodes; op++ {
		m[opTable[op].Name] = op
	}
	return m
}()

// Info returns the metadata for op. Unknown opcodes get a placeholder name
// and no operand.
func (op Opcode) Info() OpInfo {
	if op >= numOpcodes {
		return OpInfo{Name: fmt.Sprintf("op_%02x", uint8(op))}
	}
	return opTable[op]
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

func (op Opcode) String() string {
	return op.Info().Name
}

// IsBranch reports whether op jumps to a label.
func (op Opcode) IsBranch() bool {
	return op.Info().Branch
}

// IsReturn reports whether op leaves the routine.
func (op Opcode) IsReturn() bool {
	return op.Info().Return
}

// LookupOpcode finds an opcode by its mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opByName[strings.ToLower(name)]
	return op, ok
}
