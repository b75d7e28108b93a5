// Package storage persists cache records as scope/key/value triples.
//
// A scope is a named, sorted key-value collection (a Bolt bucket, a Redis
// hash, a section of the file log). Values are opaque bytes; the cache and
// snapshot layers put archives produced by package cacheable into them.
//
// Backends:
//
//   - Bolt: a bbolt database file, one bucket per scope.
//   - Mem: transient in-memory storage intended for tests.
//   - Redis: one hash per scope under a configurable key prefix.
//   - File: an append-only log with checksummed records, replayed through
//     mmap on open.
package storage

import (
	"errors"
	"iter"
)

var (
	// ErrNotFound is returned by Storage.Get when the key doesn't exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrClosed is returned by all operations after Close.
	ErrClosed = errors.New("storage: closed")
)

// Storage is a persistent scope/key/value store. Implementations are safe
// for concurrent use.
type Storage interface {
	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(scope string, key []byte) ([]byte, error)

	// Set stores a key-value pair, replacing any existing value.
	Set(scope string, key, value []byte) error

	// Remove deletes a key. Removing a missing key is not an error.
	Remove(scope string, key []byte) error

	// Scan calls f for every pair of the scope in key order. The slices are
	// only valid until f returns. Scan stops and returns the first error
	// returned by f.
	Scan(scope string, f func(key, value []byte) error) error

	// Close releases the storage.
	Close() error
}

// Entry is a key-value pair returned by All.
type Entry struct {
	Key   []byte
	Value []byte
}

// All iterates over a copy of every pair in the scope. A failing scan is
// reported as the last element with a non-nil error.
func All(s Storage, scope string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		stopped := false
		err := s.Scan(scope, func(key, value []byte) error {
			e := Entry{Key: clone(key), Value: clone(value)}
			if !yield(e, nil) {
				stopped = true
				return errStop
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Entry{}, err)
		}
	}
}

var errStop = errors.New("stop")

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
