package storage

import (
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

type BoltOptions struct {
	// Timeout is the time to wait for the file lock. Zero waits forever.
	Timeout time.Duration

	// NoSync skips fsync after each write. Only for throwaway caches.
	NoSync bool

	Logger *slog.Logger
}

// Bolt stores every scope in its own bbolt bucket.
type Bolt struct {
	bdb    *bbolt.DB
	logger *slog.Logger
}

func OpenBolt(path string, opt BoltOptions) (*Bolt, error) {
	bdb, err := bbolt.Open(path, 0o644, &bbolt.Options{
		Timeout: opt.Timeout,
		NoSync:  opt.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	b := NewBolt(bdb)
	if opt.Logger != nil {
		b.logger = opt.Logger
	}
	b.logger.Debug("storage: bolt opened", "path", path)
	return b, nil
}

// NewBolt wraps an already open database. Close closes it.
func NewBolt(bdb *bbolt.DB) *Bolt {
	return &Bolt{bdb: bdb, logger: slog.Default()}
}

func (s *Bolt) DB() *bbolt.DB { return s.bdb }

func (s *Bolt) Get(scope string, key []byte) ([]byte, error) {
	var value []byte
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(scope))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get(key)
		if v == nil {
			return ErrNotFound
		}
		value = clone(v)
		return nil
	})
	return value, s.wrap(err)
}

func (s *Bolt) Set(scope string, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return s.wrap(s.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := btx.CreateBucketIfNotExists(unsafeBytesFromString(scope))
		if err != nil {
			return err
		}
		return b.Put(key, value)
	}))
}

func (s *Bolt) Remove(scope string, key []byte) error {
	return s.wrap(s.bdb.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(scope))
		if b == nil {
			return nil
		}
		return b.Delete(key)
	}))
}

// Scan runs f inside a read transaction, so f must not write to s.
func (s *Bolt) Scan(scope string, f func(key, value []byte) error) error {
	return s.wrap(s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(scope))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if v == nil {
				// nested bucket
				return nil
			}
			return f(k, v)
		})
	}))
}

func (s *Bolt) Close() error {
	return s.wrap(s.bdb.Close())
}

func (s *Bolt) wrap(err error) error {
	if err == bbolt.ErrDatabaseNotOpen {
		return ErrClosed
	}
	return err
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
