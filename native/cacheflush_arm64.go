//go:build linux

package native

import "unsafe"

/*
static void flush_icache(char *start, char *end) {
	__builtin___clear_cache(start, end);
}
*/
import "C"

// cacheflush makes freshly written code in buf visible to instruction
// fetch.
func cacheflush(buf []byte) {
	if len(buf) == 0 {
		return
	}
	start := unsafe.Pointer(unsafe.SliceData(buf))
	end := unsafe.Add(start, len(buf))
	C.flush_icache((*C.char)(start), (*C.char)(end))
}
