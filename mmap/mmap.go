// Package mmap maps cache files into memory and syncs them to disk.
//
// The file storage backend maps its log read-only while replaying it on
// open, so that large logs are paged in by the kernel instead of being
// copied into the heap.
package mmap

import (
	"fmt"
	"os"
)

type Options uint

const (
	// Writable opens the file for writing (otherwise, it's opened read-only).
	Writable Options = 1 << 0

	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 2

	// Prefault is a hint requesting the entire file to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux, ignored elsewhere.
	Prefault Options = 1 << 3
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Mmap maps size bytes of f starting at offset, which must be zero.
func Mmap(f *os.File, offset, size int, opt Options) ([]byte, error) {
	if offset != 0 {
		panic("non-zero offset not yet supported")
	}
	if size <= 0 || size > MaxSize {
		return nil, fmt.Errorf("mmap: invalid size %d", size)
	}
	if opt.Has(SequentialAccess) && opt.Has(RandomAccess) {
		return nil, fmt.Errorf("mmap: SequentialAccess and RandomAccess are mutually exclusive")
	}
	return mmap(f, size, opt)
}

// Munmap unmaps the given slice from memory. The slice must have been returned
// by Mmap.
func Munmap(b []byte) error {
	return munmap(b)
}
