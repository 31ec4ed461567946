//go:build linux

package native

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

const (
	opcodeCALLabs = 0xff // CALL r/m64
	opcodeCALLrel = 0xe8 // CALL rel32
	opcodeINT3    = 0xcc
	opcodeJMP     = 0xe9 // JMP rel32
	opcodeLEA     = 0x8d

	opcodeMOV_imm_rm = 0xc7 // MOV imm32, r/m
	opcodeMOV_r_rm   = 0x8b // MOV r/m, r

	regModeDirect = 3
	registerBP    = 5

	// jumpSize is the length of JMP rel32.
	jumpSize = 5
)

var (
	errTooSmall = errors.New("function too small for a jump")
	errNoRoom   = errors.New("no room for another trampoline")
)

// insertJump overwrites the start of code with a jump to dest and fills the
// remainder with INT3, the same padding the compiler uses.
func insertJump(code []byte, dest uintptr) error {
	if len(code) < jumpSize {
		return errTooSmall
	}

	src := uintptr(unsafe.Pointer(unsafe.SliceData(code))) + jumpSize
	rel := int64(dest) - int64(src)
	if rel < math.MinInt32 || rel > math.MaxInt32 {
		return fmt.Errorf("jump target %#x out of range from %#x", dest, src)
	}

	code[0] = opcodeJMP
	binary.LittleEndian.PutUint32(code[1:], uint32(int32(rel)))
	for i := jumpSize; i < len(code); i++ {
		code[i] = opcodeINT3
	}
	return nil
}

// relocateFunc copies the instructions in src to dest, fixing up every
// instruction that addresses memory relative to itself. Both slices must
// point at the addresses the code runs from. dest needs room for src plus
// any trampolines; the used part is returned, padded to 16 bytes.
func relocateFunc(src, dest []byte) ([]byte, error) {
	srcBase := uintptr(unsafe.Pointer(unsafe.SliceData(src)))
	destBase := uintptr(unsafe.Pointer(unsafe.SliceData(dest)))

	end := len(src)
	for end > 0 && src[end-1] == opcodeINT3 {
		end--
	}
	src = src[:end]
	dest = dest[:len(src)]

	for i := 0; i < len(src); {
		inst, err := x86asm.Decode(src[i:], 64)
		if err != nil {
			return nil, fmt.Errorf("decode error at offset %d: %w", i, err)
		}

		// Relative operands count from the end of the instruction.
		srcNext := srcBase + uintptr(i+inst.Len)
		destNext := destBase + uintptr(i+inst.Len)

		switch inst.Opcode >> 24 {
		case opcodeCALLrel:
			rel, ok := inst.Args[0].(x86asm.Rel)
			if !ok {
				return nil, fmt.Errorf("decode error at offset %d: unknown argument", i)
			}

			target := srcNext + uintptr(int64(rel))
			newRel := int64(target) - int64(destNext)
			if newRel >= math.MinInt32 && newRel <= math.MaxInt32 {
				dest[i] = opcodeCALLrel
				binary.LittleEndian.PutUint32(dest[i+1:], uint32(int32(newRel)))
				break
			}

			// Out of reach: jump to a trampoline at the end that makes
			// the call and jumps back.
			back := int32(i + inst.Len - len(dest))
			tramp, err := trampoline(target, back)
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", i, err)
			}
			if cap(dest)-len(dest) < len(tramp) {
				return nil, errNoRoom
			}
			forward := int32(len(dest) - (i + inst.Len))
			dest = append(dest, tramp...)
			dest[i] = opcodeJMP
			binary.LittleEndian.PutUint32(dest[i+1:], uint32(forward))

		case opcodeLEA, opcodeMOV_r_rm:
			copy(dest[i:], src[i:i+inst.Len])
			mem, ok := inst.Args[1].(x86asm.Mem)
			if !ok || mem.Base != x86asm.RIP {
				break
			}

			disp := int64(srcNext) + mem.Disp - int64(destNext)
			if disp < math.MinInt32 || disp > math.MaxInt32 {
				return nil, fmt.Errorf("offset %d: RIP-relative operand out of range after relocation", i)
			}
			binary.LittleEndian.PutUint32(dest[i+inst.Len-4:], uint32(int32(disp)))

		default:
			copy(dest[i:], src[i:i+inst.Len])
		}

		i += inst.Len
	}

	for len(dest)%16 != 0 && len(dest) < cap(dest) {
		dest = append(dest, opcodeINT3)
	}
	return dest, nil
}

// trampoline assembles
//
//	MOVQ $target, BP
//	CALL BP
//	JMP  back
//
// back is relative to the start of the trampoline.
func trampoline(target uintptr, back int32) ([]byte, error) {
	if target > math.MaxUint32 {
		return nil, errors.New("call target above 4GB")
	}

	buf := make([]byte, 0, 14)
	buf = append(buf,
		byte(x86asm.PrefixREX)|byte(x86asm.PrefixREXW),
		opcodeMOV_imm_rm,
		regModeDirect<<6|registerBP,
	)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(target))
	buf = append(buf,
		opcodeCALLabs,
		regModeDirect<<6|2<<3|registerBP,
		opcodeJMP,
	)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(back-int32(len(buf))-4))
	return buf, nil
}

// disassemble lists code one instruction per line.
func disassemble(code []byte) (string, error) {
	var buf bytes.Buffer
	base := uintptr(unsafe.Pointer(unsafe.SliceData(code)))

	for i := 0; i < len(code); {
		inst, err := x86asm.Decode(code[i:], 64)
		if err != nil {
			return "", fmt.Errorf("decode error at offset %d: %w", i, err)
		}
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", base+uintptr(i), hex.EncodeToString(code[i:i+inst.Len]), inst)
		i += inst.Len
	}
	return buf.String(), nil
}
