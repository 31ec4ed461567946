//go:build linux

package native

// arm64 has no MAP_32BIT. relocateFunc refuses a copy that lands out of BL
// range of its callees.
const mmapFlags = 0
