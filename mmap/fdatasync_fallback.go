//go:build windows || (unix && !plan9 && !linux && !openbsd)

package mmap

import "os"

// fsync is the best we can do here; mappings share the page cache.
func fdatasync(f *os.File, _ []byte) error {
	return f.Sync()
}
