//go:build linux

package native

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/arch/arm64/arm64asm"
)

const (
	// B and BL carry a signed 26-bit word offset:
	//
	//	| 0 00101 | imm26 |   B
	//	| 1 00101 | imm26 |   BL
	opcodeB  = uint32(5 << 26)
	opcodeBL = uint32(1<<31) | opcodeB

	// ADRP splits its 21-bit page offset: the low 2 bits in 29-30, the
	// high 19 in 5-23.
	adrImmMask = uint32(3<<29 | 0x7ffff<<5)

	// branchRange is how far B and BL reach in either direction.
	branchRange = 1 << 27

	instSize = 4
)

var errTooSmall = errors.New("function too small for a jump")

// insertJump overwrites the start of code with B dest and zeroes the rest.
func insertJump(code []byte, dest uintptr) error {
	if len(code) < instSize {
		return errTooSmall
	}

	src := uintptr(unsafe.Pointer(unsafe.SliceData(code)))
	rel := int64(dest) - int64(src)
	if rel < -branchRange || rel >= branchRange {
		return fmt.Errorf("jump target %#x out of range from %#x", dest, src)
	}

	binary.LittleEndian.PutUint32(code, branch(opcodeB, rel))
	clear(code[instSize:])
	return nil
}

// relocateFunc copies the instructions in src to dest, re-encoding every
// PC-relative instruction that reaches outside the function. Both slices must
// point at the addresses the code runs from. dest must be at least as large
// as src; the used part is returned.
func relocateFunc(src, dest []byte) ([]byte, error) {
	srcBase := uintptr(unsafe.Pointer(unsafe.SliceData(src)))
	destBase := uintptr(unsafe.Pointer(unsafe.SliceData(dest)))

	end := len(src) &^ (instSize - 1)
	for end > 0 && binary.LittleEndian.Uint32(src[end-instSize:]) == 0 {
		end -= instSize
	}
	if cap(dest) < end {
		return nil, fmt.Errorf("destination holds %d bytes, need %d", cap(dest), end)
	}
	dest = dest[:end]
	copy(dest, src[:end])

	for i := 0; i < end; i += instSize {
		inst, err := arm64asm.Decode(src[i : i+instSize])
		if err != nil {
			// Literal pool data, copied as is.
			continue
		}

		var rel arm64asm.PCRel
		found := false
		for _, arg := range inst.Args {
			if r, ok := arg.(arm64asm.PCRel); ok {
				rel, found = r, true
				break
			}
		}
		if !found {
			continue
		}

		pc := srcBase + uintptr(i)
		target := uintptr(int64(pc) + int64(rel))
		if target >= srcBase && target < srcBase+uintptr(end) && inst.Op != arm64asm.ADRP {
			// Branches within the function move with it.
			continue
		}

		word, err := relocatePCRel(inst, binary.LittleEndian.Uint32(src[i:]), pc, destBase+uintptr(i), target)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", i, err)
		}
		binary.LittleEndian.PutUint32(dest[i:], word)
	}
	return dest, nil
}

// relocatePCRel re-encodes word, found at from, so that at to it still
// reaches target.
func relocatePCRel(inst arm64asm.Inst, word uint32, from, to, target uintptr) (uint32, error) {
	switch inst.Op {
	case arm64asm.ADRP:
		// arm64asm reports the page offset in bytes. ADRP works on
		// page-aligned addresses.
		const pageMask = ^uintptr(0xfff)
		pages := (int64(from&pageMask) + int64(target-from) - int64(to&pageMask)) >> 12
		if pages < -(1<<20) || pages >= 1<<20 {
			return 0, fmt.Errorf("ADRP target out of range: %d pages", pages)
		}
		p := uint32(pages)
		word &^= adrImmMask
		word |= (p & 3) << 29
		word |= ((p >> 2) & 0x7ffff) << 5
		return word, nil

	case arm64asm.BL, arm64asm.B:
		rel := int64(target) - int64(to)
		if rel < -branchRange || rel >= branchRange {
			return 0, fmt.Errorf("%s target %#x out of range from %#x", inst.Op, target, to)
		}
		op := opcodeB
		if inst.Op == arm64asm.BL {
			op = opcodeBL
		}
		return branch(op, rel), nil
	}

	// The compiler only leaves the function through ADRP, B and BL.
	return 0, fmt.Errorf("cannot relocate %s", inst)
}

func branch(op uint32, rel int64) uint32 {
	return op | uint32(rel>>2)&(1<<26-1)
}

// disassemble lists code one instruction per line.
func disassemble(code []byte) (string, error) {
	var buf bytes.Buffer
	base := uintptr(unsafe.Pointer(unsafe.SliceData(code)))

	for i := 0; i+instSize <= len(code); i += instSize {
		text := "?"
		if inst, err := arm64asm.Decode(code[i : i+instSize]); err == nil {
			text = inst.String()
		}
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", base+uintptr(i), hex.EncodeToString(code[i:i+instSize]), text)
	}
	return buf.String(), nil
}
