package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// The mapping is MAP_SHARED, so syncing the file flushes its dirty pages too.
func fdatasync(f *os.File, _ []byte) error {
	return unix.Fdatasync(int(f.Fd()))
}
