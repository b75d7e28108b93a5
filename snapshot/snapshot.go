// Package snapshot records how to detect changes to the files a build read,
// so that the next build can tell which cached results are stale.
//
// Each recorded path gets a Strategy, stored in the "snapshot" scope as a
// polymorphic archive:
//
//   - CompileTime for ordinary files, compared against the file's mtime;
//   - LibVersion for files under managed paths (installed packages), compared
//     against the version in the nearest package.json.
//
// Files under immutable paths are never recorded.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/andreyvit/cacheable/storage"
)

type Snapshot struct {
	store     storage.Storage
	immutable []PathMatcher
	managed   []PathMatcher
	context   context.Context
	now       func() time.Time
	logger    *slog.Logger
}

// Add records the current state of the given files. Missing files and
// immutable paths are skipped.
func (s *Snapshot) Add(paths ...string) error {
	h := newHelper()
	now := s.now().UnixMilli()
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			s.logger.LogAttrs(s.context, slog.LevelDebug, "snapshot: skipping missing file", slog.String("path", path))
			continue
		}
		if matchAny(s.immutable, path) {
			continue
		}
		data, err := encodeStrategy(s.strategyFor(h, path, now))
		if err != nil {
			return fmt.Errorf("snapshot: %s: %w", path, err)
		}
		if err := s.store.Set(Scope, []byte(path), data); err != nil {
			return fmt.Errorf("snapshot: %s: %w", path, err)
		}
	}
	return nil
}

func (s *Snapshot) strategyFor(h *helper, path string, now int64) Strategy {
	if matchAny(s.managed, path) {
		if v := h.libVersion(path); v != "" {
			return LibVersion{Version: v}
		}
	}
	return CompileTime{UnixMilli: now}
}

// Remove forgets the given files.
func (s *Snapshot) Remove(paths ...string) error {
	for _, path := range paths {
		if err := s.store.Remove(Scope, []byte(path)); err != nil {
			return fmt.Errorf("snapshot: %s: %w", path, err)
		}
	}
	return nil
}

// Strategy returns the recorded strategy of path.
func (s *Snapshot) Strategy(path string) (Strategy, error) {
	data, err := s.store.Get(Scope, []byte(path))
	if err != nil {
		return nil, err
	}
	return decodeStrategy(data)
}

// CalcModifiedFiles checks every recorded file. Records that fail to decode
// are reported as modified. Both lists are sorted.
func (s *Snapshot) CalcModifiedFiles() (modified, deleted []string, err error) {
	h := newHelper()
	for e, err := range storage.All(s.store, Scope) {
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: %w", err)
		}
		path := string(e.Key)
		result := Modified
		strategy, err := decodeStrategy(e.Value)
		if err != nil {
			s.logger.LogAttrs(s.context, slog.LevelDebug, "snapshot: invalid record", slog.String("path", path), slog.String("err", err.Error()))
		} else if strategy != nil {
			result = strategy.validate(h, path)
		}
		switch result {
		case Modified:
			modified = append(modified, path)
		case Deleted:
			deleted = append(deleted, path)
		}
	}
	return modified, deleted, nil
}
