package snapshot

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/andreyvit/cacheable/storage"
)

// PathMatcher selects files by path.
type PathMatcher interface {
	Match(path string) bool
}

// PathPrefix matches paths starting with the given string.
type PathPrefix string

func (p PathPrefix) Match(path string) bool {
	return strings.HasPrefix(path, string(p))
}

// PathRegexp matches paths containing a match of the regexp.
type PathRegexp struct {
	*regexp.Regexp
}

func (p PathRegexp) Match(path string) bool {
	return p.MatchString(path)
}

// MustRegexp compiles expr into a PathRegexp, panicking on error.
func MustRegexp(expr string) PathRegexp {
	return PathRegexp{regexp.MustCompile(expr)}
}

type Options struct {
	// Immutable paths never change once written and are never recorded.
	Immutable []PathMatcher

	// Managed paths belong to installed packages. They are validated by
	// the version in the nearest package.json when one is found.
	Managed []PathMatcher

	Context context.Context
	Now     func() time.Time
	Logger  *slog.Logger
}

func matchAny(ms []PathMatcher, path string) bool {
	for _, m := range ms {
		if m.Match(path) {
			return true
		}
	}
	return false
}

// Scope is the storage scope holding snapshot records.
const Scope = "snapshot"

func New(store storage.Storage, o Options) *Snapshot {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Snapshot{
		store:     store,
		immutable: o.Immutable,
		managed:   o.Managed,
		context:   o.Context,
		now:       o.Now,
		logger:    o.Logger,
	}
}
