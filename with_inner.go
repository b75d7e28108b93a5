package cacheable

import "fmt"

// InnerConverter exposes the value wrapped by W. The archived form of W is
// the archived form of the wrapped value, inline.
type InnerConverter[W, I any] interface {
	Inner(w *W) (*I, error)
	FromInner(i I) W
}

// AsInner stores *T inline as T. Serializing a nil pointer fails with
// ErrConversion.
func AsInner[T any](inner Archiver[T]) Archiver[*T] {
	return AsInnerWith[*T](ptrInner[T]{}, inner)
}

// AsInnerWith stores W as the value conv extracts from it.
func AsInnerWith[W, I any](conv InnerConverter[W, I], inner Archiver[I]) Archiver[W] {
	if inner == nil {
		inner = Direct[I]()
	}
	return innerArchiver[W, I]{conv, inner}
}

type innerArchiver[W, I any] struct {
	conv  InnerConverter[W, I]
	inner Archiver[I]
}

func (a innerArchiver[W, I]) Layout() Layout { return a.inner.Layout() }

func (a innerArchiver[W, I]) Serialize(s *Serializer, v *W) (Resolver, error) {
	iv, err := a.conv.Inner(v)
	if err != nil {
		return Resolver{}, err
	}
	return a.inner.Serialize(s, iv)
}

func (a innerArchiver[W, I]) Resolve(v *W, pos int, r Resolver, out []byte) {
	iv, err := a.conv.Inner(v)
	if err != nil {
		panic(fmt.Errorf("cacheable: inner value vanished between serialize and resolve: %w", err))
	}
	a.inner.Resolve(iv, pos, r, out)
}

func (a innerArchiver[W, I]) CheckBytes(c *Validator, pos int) error {
	return a.inner.CheckBytes(c, pos)
}

func (a innerArchiver[W, I]) Deserialize(d *Deserializer, pos int) (W, error) {
	iv, err := a.inner.Deserialize(d, pos)
	if err != nil {
		var zero W
		return zero, err
	}
	return a.conv.FromInner(iv), nil
}

type ptrInner[T any] struct{}

func (ptrInner[T]) Inner(w **T) (*T, error) {
	if *w == nil {
		return nil, fmt.Errorf("%w: nil pointer", ErrConversion)
	}
	return *w, nil
}

func (ptrInner[T]) FromInner(v T) *T {
	return &v
}
