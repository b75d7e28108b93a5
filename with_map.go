package cacheable

import (
	"fmt"
	"iter"
)

// MapConverter adapts a keyed collection C to a sequence of key/value pairs.
type MapConverter[C, K, V any] interface {
	Len(c *C) int
	All(c *C) iter.Seq2[*K, *V]
	From(n int, entries iter.Seq2[Pair[K, V], error]) (C, error)
}

// AsMap stores a map as an array of (key, value) entries. If an archive
// holds the same key more than once, the last entry wins.
func AsMap[K comparable, V any](key Archiver[K], value Archiver[V]) Archiver[map[K]V] {
	return AsMapWith[map[K]V](MapOf[K, V](false), key, value)
}

// AsStrictMap is AsMap that rejects archives with duplicate keys.
func AsStrictMap[K comparable, V any](key Archiver[K], value Archiver[V]) Archiver[map[K]V] {
	return AsMapWith[map[K]V](MapOf[K, V](true), key, value)
}

// AsMapWith stores any keyed collection supported by conv.
func AsMapWith[C, K, V any](conv MapConverter[C, K, V], key Archiver[K], value Archiver[V]) Archiver[C] {
	return AsVecWith[C, Pair[K, V]](entriesConverter[C, K, V]{conv}, AsTuple2(key, value))
}

type entriesConverter[C, K, V any] struct {
	conv MapConverter[C, K, V]
}

func (ec entriesConverter[C, K, V]) Len(c *C) int {
	return ec.conv.Len(c)
}

func (ec entriesConverter[C, K, V]) All(c *C) iter.Seq[*Pair[K, V]] {
	return func(yield func(*Pair[K, V]) bool) {
		for k, v := range ec.conv.All(c) {
			if !yield(&Pair[K, V]{*k, *v}) {
				return
			}
		}
	}
}

func (ec entriesConverter[C, K, V]) From(n int, elems iter.Seq2[Pair[K, V], error]) (C, error) {
	return ec.conv.From(n, elems)
}

// MapOf returns the converter for Go maps. A strict converter fails with
// ErrConversion on duplicate keys.
func MapOf[K comparable, V any](strict bool) MapConverter[map[K]V, K, V] {
	return mapConverter[K, V]{strict}
}

type mapConverter[K comparable, V any] struct {
	strict bool
}

func (mapConverter[K, V]) Len(c *map[K]V) int { return len(*c) }

func (mapConverter[K, V]) All(c *map[K]V) iter.Seq2[*K, *V] {
	return func(yield func(*K, *V) bool) {
		for k, v := range *c {
			if !yield(&k, &v) {
				return
			}
		}
	}
}

func (mc mapConverter[K, V]) From(n int, entries iter.Seq2[Pair[K, V], error]) (map[K]V, error) {
	if n == 0 {
		return nil, nil
	}
	m := make(map[K]V, n)
	for e, err := range entries {
		if err != nil {
			return nil, err
		}
		if _, dup := m[e.First]; dup && mc.strict {
			return nil, fmt.Errorf("%w: duplicate key %v", ErrConversion, e.First)
		}
		m[e.First] = e.Second
	}
	return m, nil
}
