package cacheable

import (
	"math"
	"reflect"
)

const (
	DefaultMaxSize      = 1 << 30
	DefaultScratchLimit = 1 << 20
	DefaultMaxDepth     = 512
)

// Options tune a single serialize, check or deserialize pass.
type Options struct {
	// MaxSize caps the archive size. Growing past it fails with ErrAllocation.
	MaxSize int

	// ScratchLimit caps the number of resolvers held on the scratch stack
	// while serializing collections.
	ScratchLimit int

	// MaxDepth caps pointer nesting during validation.
	MaxDepth int

	// Alloc provides storage for concrete values of dyn fields. It must
	// return a pointer to a zero value of the given type.
	Alloc func(reflect.Type) reflect.Value
}

type Option func(*Options)

func WithMaxSize(n int) Option {
	return func(o *Options) { o.MaxSize = n }
}

func WithScratchLimit(n int) Option {
	return func(o *Options) { o.ScratchLimit = n }
}

func WithMaxDepth(n int) Option {
	return func(o *Options) { o.MaxDepth = n }
}

func WithAlloc(f func(reflect.Type) reflect.Value) Option {
	return func(o *Options) { o.Alloc = f }
}

func buildOptions(opts []Option) Options {
	o := Options{
		MaxSize:      DefaultMaxSize,
		ScratchLimit: DefaultScratchLimit,
		MaxDepth:     DefaultMaxDepth,
		Alloc:        reflect.New,
	}
	for _, f := range opts {
		f(&o)
	}
	if o.MaxSize <= 0 || o.MaxSize > math.MaxInt32 {
		o.MaxSize = math.MaxInt32
	}
	if o.ScratchLimit <= 0 {
		o.ScratchLimit = DefaultScratchLimit
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Alloc == nil {
		o.Alloc = reflect.New
	}
	return o
}
