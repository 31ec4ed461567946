// Bind Go functions to patchwork routines
//
// A bound function is copied into executable memory and registered with a
// vm.Host as a routine whose body calls the copy. While patches are installed
// on that routine, the function's entry point jumps to a dispatcher that runs
// the composed routine. Reverting the routine puts the original machine code
// back.
//
// Limitations:
//   - Only supports linux on amd64 and arm64
//   - arm64 needs cgo to flush the instruction cache
//   - On arm64 a copy must land within 128MiB of the code it calls
//   - Relies on internal Go APIs that can break at any time
//   - Silently fails to redirect inlined functions
//   - Arguments and results pass through the host as vm values
package native
