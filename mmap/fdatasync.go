package mmap

import "os"

// Fdatasync flushes the data written to f (or to mapping, an mmap'ed slice of
// f, where the OS syncs mappings separately) without flushing file metadata
// like modification time, which makes it cheaper than f.Sync().
//
// A failed Fdatasync is not recoverable: many file systems mark dirty pages
// as clean after a failed sync, so the bytes on disk are unknown. The file
// storage backend treats such a file as lost and relies on checksums to drop
// the damaged tail on the next open.
func Fdatasync(f *os.File, mapping []byte) error {
	return fdatasync(f, mapping)
}
