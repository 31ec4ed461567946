//go:build linux && arm64 && !cgo

package native

// Flushing the instruction cache on arm64 goes through a C builtin. Build
// with CGO_ENABLED=1 and a C compiler.
func cacheflush([]byte) {
	arm64_needs_cgo_to_flush_the_instruction_cache()
}
