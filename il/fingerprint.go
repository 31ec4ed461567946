package il

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// Canonical CBOR so equal streams always encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("il: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireInstruction struct {
	Op     uint8  `cbor:"1,keyasint"`
	Kind   uint8  `cbor:"2,keyasint"`
	Int    int64  `cbor:"3,keyasint,omitempty"`
	Str    string `cbor:"4,keyasint,omitempty"`
	Bool   bool   `cbor:"5,keyasint,omitempty"`
	Slot   int    `cbor:"6,keyasint,omitempty"`
	Target int    `cbor:"7,keyasint,omitempty"`
}

type wireBody struct {
	Arity  int               `cbor:"1,keyasint"`
	Locals []uint8           `cbor:"2,keyasint"`
	Code   []wireInstruction `cbor:"3,keyasint"`
}

// Marshal encodes a resolved body. Labels are gone at this point: branches
// carry their target index, so the encoding only depends on structure.
func (r *Resolved) Marshal() ([]byte, error) {
	body := wireBody{
		Arity:  r.Arity,
		Locals: make([]uint8, len(r.Locals)),
		Code:   make([]wireInstruction, len(r.Code)),
	}
	for i, k := range r.Locals {
		body.Locals[i] = uint8(k)
	}
	for i, in := range r.Code {
		w := wireInstruction{
			Op:   uint8(in.Op),
			Kind: uint8(in.Operand.Kind),
		}
		switch in.Operand.Kind {
		case OperandInt:
			w.Int = in.Operand.Int
		case OperandString:
			w.Str = in.Operand.Str
		case OperandRoutine:
			w.Str = string(in.Operand.Routine)
		case OperandBool:
			w.Bool = in.Operand.Bool
		case OperandSlot:
			w.Slot = in.Operand.Slot.index
		case OperandLabel:
			w.Target = r.Targets[i]
		}
		body.Code[i] = w
	}
	return cborEncMode.Marshal(body)
}

// Fingerprint identifies the structure of a routine body.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return base58.Encode(f[:])
}

// IsZero reports whether f is unset.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// Fingerprint hashes the canonical encoding of the body.
func (r *Resolved) Fingerprint() (Fingerprint, error) {
	data, err := r.Marshal()
	if err != nil {
		return Fingerprint{}, err
	}

	var fp Fingerprint
	h := blake3.New()
	h.Write(data)
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

// FingerprintOf resolves s and returns its fingerprint.
func FingerprintOf(s *Stream) (Fingerprint, error) {
	r, err := Resolve(s)
	if err != nil {
		return Fingerprint{}, err
	}
	return r.Fingerprint()
}
