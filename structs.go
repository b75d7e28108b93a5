package cacheable

import (
	"fmt"
	"reflect"
	"sync"
)

// StructBuilder collects the archived fields of T, in declaration order.
type StructBuilder[T any] struct {
	sa *structArchiver[T]
}

// DefineStruct builds a struct archiver and defines it as the archiver of T.
func DefineStruct[T any](f func(b *StructBuilder[T])) Archiver[T] {
	return Define[T](NewStruct(f))
}

// NewStruct builds a struct archiver without defining it for T.
func NewStruct[T any](f func(b *StructBuilder[T])) Archiver[T] {
	sa := &structArchiver[T]{
		name:   reflect.TypeFor[T]().String(),
		byName: make(map[string]bool),
	}
	f(&StructBuilder[T]{sa})
	return sa
}

// AddField adds a field stored with arch. A nil arch means Direct[F]().
func AddField[T, F any](b *StructBuilder[T], name string, get func(v *T) *F, arch Archiver[F]) {
	if arch == nil {
		arch = Direct[F]()
	}
	if b.sa.byName[name] {
		panic(fmt.Sprintf("%s: duplicate field %q", b.sa.name, name))
	}
	b.sa.byName[name] = true
	b.sa.fields = append(b.sa.fields, &field[T, F]{name, get, arch})
}

// Skip adds a field that is never archived. It deserializes as the zero value.
func Skip[T, F any](b *StructBuilder[T], name string, get func(v *T) *F) {
	AddField(b, name, get, Archiver[F](skipArchiver[F]{}))
}

type structField[T any] interface {
	fieldName() string
	layout() Layout
	serialize(s *Serializer, v *T) (Resolver, error)
	resolve(v *T, pos int, r Resolver, out []byte)
	check(c *Validator, pos int) error
	deserialize(d *Deserializer, pos int, v *T) error
}

type field[T, F any] struct {
	name string
	get  func(v *T) *F
	arch Archiver[F]
}

func (f *field[T, F]) fieldName() string { return f.name }
func (f *field[T, F]) layout() Layout    { return f.arch.Layout() }

func (f *field[T, F]) serialize(s *Serializer, v *T) (Resolver, error) {
	return f.arch.Serialize(s, f.get(v))
}

func (f *field[T, F]) resolve(v *T, pos int, r Resolver, out []byte) {
	f.arch.Resolve(f.get(v), pos, r, out)
}

func (f *field[T, F]) check(c *Validator, pos int) error {
	return f.arch.CheckBytes(c, pos)
}

func (f *field[T, F]) deserialize(d *Deserializer, pos int, v *T) error {
	fv, err := f.arch.Deserialize(d, pos)
	if err != nil {
		return err
	}
	*f.get(v) = fv
	return nil
}

type structArchiver[T any] struct {
	name   string
	fields []structField[T]
	byName map[string]bool

	layoutOnce sync.Once
	lay        Layout
	offsets    []int
	sizes      []int
}

// computeLayout runs on first use so that fields may refer to archivers
// defined after this one.
func (sa *structArchiver[T]) computeLayout() {
	sa.layoutOnce.Do(func() {
		lays := make([]Layout, len(sa.fields))
		sa.sizes = make([]int, len(sa.fields))
		for i, f := range sa.fields {
			lays[i] = f.layout()
			sa.sizes[i] = lays[i].Size
		}
		sa.lay, sa.offsets = structLayout(lays)
	})
}

func (sa *structArchiver[T]) Layout() Layout {
	sa.computeLayout()
	return sa.lay
}

func (sa *structArchiver[T]) Serialize(s *Serializer, v *T) (Resolver, error) {
	subs := make([]Resolver, len(sa.fields))
	for i, f := range sa.fields {
		r, err := f.serialize(s, v)
		if err != nil {
			return Resolver{}, fieldErr(sa.name, f.fieldName(), err)
		}
		subs[i] = r
	}
	return Resolver{Subs: subs}, nil
}

func (sa *structArchiver[T]) Resolve(v *T, pos int, r Resolver, out []byte) {
	sa.computeLayout()
	for i, f := range sa.fields {
		off := sa.offsets[i]
		f.resolve(v, pos+off, r.Subs[i], out[off:off+sa.sizes[i]])
	}
}

func (sa *structArchiver[T]) CheckBytes(c *Validator, pos int) error {
	l := sa.Layout()
	if err := c.CheckRange(pos, l.Size, l.Align); err != nil {
		return err
	}
	for i, f := range sa.fields {
		if err := f.check(c, pos+sa.offsets[i]); err != nil {
			return fieldErr(sa.name, f.fieldName(), err)
		}
	}
	return nil
}

func (sa *structArchiver[T]) Deserialize(d *Deserializer, pos int) (T, error) {
	sa.computeLayout()
	var v T
	for i, f := range sa.fields {
		if err := f.deserialize(d, pos+sa.offsets[i], &v); err != nil {
			var zero T
			return zero, fieldErr(sa.name, f.fieldName(), err)
		}
	}
	return v, nil
}

type skipArchiver[T any] struct{}

func (skipArchiver[T]) Layout() Layout                                   { return zeroLayout }
func (skipArchiver[T]) Serialize(s *Serializer, v *T) (Resolver, error) { return Resolver{}, nil }
func (skipArchiver[T]) Resolve(v *T, pos int, r Resolver, out []byte)   {}
func (skipArchiver[T]) CheckBytes(c *Validator, pos int) error          { return nil }
func (skipArchiver[T]) Deserialize(d *Deserializer, pos int) (T, error) {
	var zero T
	return zero, nil
}
