// Package cache stores typed build artifacts as archives in a storage scope.
//
// A cache is an optimization: every failure to read an entry back (missing
// key, corrupt bytes, an archive written by an incompatible build) is a miss,
// logged at debug level, never an error. Writes do report errors.
package cache

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/andreyvit/cacheable"
	"github.com/andreyvit/cacheable/storage"
)

type Options struct {
	// Context is handed to archivers; see cacheable.FromContext.
	Context any

	// Serialize holds per-call engine options, used for both directions.
	Serialize []cacheable.Option

	Logger *slog.Logger
}

// Scope is a typed view of one storage scope.
type Scope[T any] struct {
	store  storage.Storage
	name   string
	arch   cacheable.Archiver[T]
	ctx    any
	opts   []cacheable.Option
	logger *slog.Logger

	hits, misses, invalid, saves atomic.Uint64
	loaded, saved                atomic.Uint64
}

// NewScope returns a scope storing values with arch, or with the archiver
// defined for T when arch is nil.
func NewScope[T any](store storage.Storage, name string, arch cacheable.Archiver[T], o Options) *Scope[T] {
	if arch == nil {
		arch = cacheable.Direct[T]()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Scope[T]{
		store:  store,
		name:   name,
		arch:   arch,
		ctx:    o.Context,
		opts:   o.Serialize,
		logger: o.Logger,
	}
}

func (s *Scope[T]) Name() string { return s.name }

func (s *Scope[T]) Save(key string, v T) error {
	data, err := cacheable.SerializeWith(v, s.arch, s.ctx, s.opts...)
	if err != nil {
		return fmt.Errorf("cache: %s/%s: %w", s.name, key, err)
	}
	if err := s.store.Set(s.name, []byte(key), data); err != nil {
		return fmt.Errorf("cache: %s/%s: %w", s.name, key, err)
	}
	s.saves.Add(1)
	s.saved.Add(uint64(len(data)))
	return nil
}

// Load returns the value stored under key, or false on a miss.
func (s *Scope[T]) Load(key string) (T, bool) {
	var zero T
	data, err := s.store.Get(s.name, []byte(key))
	if err != nil {
		s.misses.Add(1)
		if err != storage.ErrNotFound {
			s.debug("cache: read failed", key, err)
		}
		return zero, false
	}
	v, ok := s.decode(key, data)
	if !ok {
		s.misses.Add(1)
		return zero, false
	}
	s.hits.Add(1)
	return v, true
}

// LoadAll iterates over every valid entry of the scope in key order, skipping
// the ones that fail to decode.
func (s *Scope[T]) LoadAll() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for e, err := range storage.All(s.store, s.name) {
			if err != nil {
				s.debug("cache: scan failed", "", err)
				return
			}
			key := string(e.Key)
			v, ok := s.decode(key, e.Value)
			if !ok {
				continue
			}
			s.hits.Add(1)
			if !yield(key, v) {
				return
			}
		}
	}
}

func (s *Scope[T]) decode(key string, data []byte) (T, bool) {
	v, err := cacheable.DeserializeWith(data, s.arch, s.ctx, s.opts...)
	if err != nil {
		s.invalid.Add(1)
		s.debug("cache: invalid entry", key, err)
		return v, false
	}
	s.loaded.Add(uint64(len(data)))
	return v, true
}

func (s *Scope[T]) Remove(key string) error {
	if err := s.store.Remove(s.name, []byte(key)); err != nil {
		return fmt.Errorf("cache: %s/%s: %w", s.name, key, err)
	}
	return nil
}

func (s *Scope[T]) debug(msg, key string, err error) {
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, msg,
		slog.String("scope", s.name),
		slog.String("key", key),
		slog.String("err", err.Error()))
}

type Stats struct {
	Hits    uint64
	Misses  uint64
	Invalid uint64 // entries that failed to decode, counted in Misses by Load
	Saves   uint64

	LoadedBytes uint64
	SavedBytes  uint64
}

func (st Stats) HitRate() float64 {
	if st.Hits+st.Misses == 0 {
		return 0
	}
	return float64(st.Hits) / float64(st.Hits+st.Misses)
}

func (s *Scope[T]) Stats() Stats {
	return Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Invalid:     s.invalid.Load(),
		Saves:       s.saves.Load(),
		LoadedBytes: s.loaded.Load(),
		SavedBytes:  s.saved.Load(),
	}
}
