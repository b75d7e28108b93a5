package cacheable

import (
	"fmt"
	"reflect"
	"unsafe"
)

var relPtrLayout = Layout{4, 4}

// Ptr stores *T as a relative pointer to an out-of-line T. A nil pointer
// is stored as zero. Every non-nil pointer gets its own copy of the value.
func Ptr[T any](inner Archiver[T]) Archiver[*T] {
	if inner == nil {
		inner = Direct[T]()
	}
	return ptrArchiver[T]{inner}
}

type ptrArchiver[T any] struct {
	inner Archiver[T]
}

func (a ptrArchiver[T]) Layout() Layout { return relPtrLayout }

func (a ptrArchiver[T]) Serialize(s *Serializer, v **T) (Resolver, error) {
	if *v == nil {
		return Resolver{Pos: -1}, nil
	}
	pos, err := serializeTarget(s, a.inner, *v)
	if err != nil {
		return Resolver{}, err
	}
	return Resolver{Pos: pos}, nil
}

func (a ptrArchiver[T]) Resolve(v **T, pos int, r Resolver, out []byte) {
	if r.Pos >= 0 {
		putRelPtr(out, pos, r.Pos)
	}
}

func (a ptrArchiver[T]) CheckBytes(c *Validator, pos int) error {
	l := a.inner.Layout()
	target, ok, err := c.claimTarget(pos, l.Size, l.Align)
	if err != nil || !ok {
		return err
	}
	return CheckValue(c, a.inner, target)
}

func (a ptrArchiver[T]) Deserialize(d *Deserializer, pos int) (*T, error) {
	target, ok := readRelPtr(d.data, pos)
	if !ok {
		return nil, nil
	}
	v, err := a.inner.Deserialize(d, target)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Shared stores *T like Ptr, except that a pointer seen earlier in the
// same pass is written as a reference to the first copy. Deserializing
// restores the aliasing: all references get the same *T.
//
// Shared graphs must be acyclic; a value cannot (transitively) contain a
// shared pointer to itself.
func Shared[T any](inner Archiver[T]) Archiver[*T] {
	if inner == nil {
		inner = Direct[T]()
	}
	return sharedArchiver[T]{inner, reflect.TypeFor[T]()}
}

type sharedArchiver[T any] struct {
	inner Archiver[T]
	typ   reflect.Type
}

func (a sharedArchiver[T]) Layout() Layout { return relPtrLayout }

func (a sharedArchiver[T]) Serialize(s *Serializer, v **T) (Resolver, error) {
	if *v == nil {
		return Resolver{Pos: -1}, nil
	}
	p := unsafe.Pointer(*v)
	if pos, ok := s.SharedPos(p, a.typ); ok {
		return Resolver{Pos: pos}, nil
	}
	if err := s.beginShared(p, a.typ); err != nil {
		return Resolver{}, err
	}
	pos, err := serializeTarget(s, a.inner, *v)
	if err != nil {
		return Resolver{}, err
	}
	if err := s.AddSharedPos(p, a.typ, pos); err != nil {
		return Resolver{}, err
	}
	return Resolver{Pos: pos}, nil
}

func (a sharedArchiver[T]) Resolve(v **T, pos int, r Resolver, out []byte) {
	if r.Pos >= 0 {
		putRelPtr(out, pos, r.Pos)
	}
}

func (a sharedArchiver[T]) CheckBytes(c *Validator, pos int) error {
	l := a.inner.Layout()
	target, ok, err := c.RelTarget(pos, l.Size, l.Align)
	if err != nil || !ok {
		return err
	}
	if !c.Visit(target, a.typ) {
		return nil
	}
	if err := c.Claim(target, l.Size); err != nil {
		return err
	}
	return CheckValue(c, a.inner, target)
}

func (a sharedArchiver[T]) Deserialize(d *Deserializer, pos int) (*T, error) {
	target, ok := readRelPtr(d.data, pos)
	if !ok {
		return nil, nil
	}
	if prev, found := d.SharedValue(target); found {
		p, ok := prev.(*T)
		if !ok {
			return nil, dataErrf(d.data, target, nil, "shared value is %T, want %v", prev, reflect.PointerTo(a.typ))
		}
		return p, nil
	}
	v, err := a.inner.Deserialize(d, target)
	if err != nil {
		return nil, err
	}
	p := &v
	if err := d.AddSharedValue(target, p); err != nil {
		return nil, fmt.Errorf("%v: %w", a.typ, err)
	}
	return p, nil
}
