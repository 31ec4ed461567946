//go:build linux && (amd64 || arm64)

package native

import (
	"fmt"
	"reflect"
	"unsafe"
)

// The types below mirror the runtime's function table. Only the leading
// fields that are read here need to match, but they must match exactly.

type funcInfo struct {
	*_func
	datap *moduledata
}

type _func struct {
	entryOff uint32
	nameOff  int32

	args        int32
	deferreturn uint32

	pcsp      uint32
	pcfile    uint32
	pcln      uint32
	npcdata   uint32
	cuOffset  uint32
	startLine int32
	funcID    uint8
	flag      uint8
	_         [1]byte
	nfuncdata uint8
}

// moduledata is written by the linker (cmd/link/internal/ld/symtab.go).
type moduledata struct {
	pcHeader     *pcHeader
	funcnametab  []byte
	cutab        []uint32
	filetab      []byte
	pctab        []byte
	pclntable    []byte
	ftab         []functab
	findfunctab  uintptr
	minpc, maxpc uintptr

	text, etext uintptr

	// The rest is never read.
}

type pcHeader struct {
	magic          uint32
	pad1, pad2     uint8
	minLC          uint8
	ptrSize        uint8
	nfunc          int
	nfiles         uint
	textStart      uintptr
	funcnameOffset uintptr
	cuOffset       uintptr
	filetabOffset  uintptr
	pctabOffset    uintptr
	pclnOffset     uintptr
}

type functab struct {
	entryoff uint32
	funcoff  uint32
}

//go:linkname findfunc runtime.findfunc
func findfunc(pc uintptr) funcInfo

// funcCode returns the machine code of fn, from its entry point to the entry
// point of the next function in the module.
func funcCode(fn reflect.Value) ([]byte, error) {
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("not a function, kind: %v", fn.Kind())
	}
	if fn.IsNil() {
		return nil, fmt.Errorf("nil function")
	}

	entry := fn.Pointer()
	info := findfunc(entry)
	if info._func == nil {
		return nil, fmt.Errorf("no function at %#x", entry)
	}

	offset := uint32(entry - info.datap.text)
	length := uint32(info.datap.etext - entry)
	for _, ft := range info.datap.ftab {
		if ft.entryoff > offset && ft.entryoff-offset < length {
			length = ft.entryoff - offset
		}
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(entry)), int(length)), nil
}
