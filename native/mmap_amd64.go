//go:build linux

package native

import "golang.org/x/sys/unix"

// Copies live in the low 2GB so rel32 calls back into the text segment still
// reach.
const mmapFlags = unix.MAP_32BIT
