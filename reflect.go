package cacheable

import (
	"fmt"
	"reflect"
	"sync"
)

var archiverCache sync.Map

// Define registers arch as the archiver used for T by Direct, Serialize and
// Deserialize. Defining the same type twice panics.
func Define[T any](arch Archiver[T]) Archiver[T] {
	typ := reflect.TypeFor[T]()
	if _, loaded := archiverCache.LoadOrStore(typ, arch); loaded {
		panic(fmt.Errorf("cacheable: archiver for %v already defined", typ))
	}
	return arch
}

// ArchiverFor returns the archiver defined for T.
func ArchiverFor[T any]() (Archiver[T], bool) {
	v, ok := archiverCache.Load(reflect.TypeFor[T]())
	if !ok {
		return nil, false
	}
	return v.(Archiver[T]), true
}

func mustArchiverFor[T any]() Archiver[T] {
	arch, ok := ArchiverFor[T]()
	if !ok {
		panic(fmt.Errorf("cacheable: no archiver defined for %v", reflect.TypeFor[T]()))
	}
	return arch
}

// Direct returns an archiver that delegates to the one defined for T. The
// lookup happens on first use, so Direct can refer to types defined later,
// including the enclosing type of a recursive structure.
func Direct[T any]() Archiver[T] {
	return &directArchiver[T]{}
}

type directArchiver[T any] struct {
	once sync.Once
	arch Archiver[T]
}

func (a *directArchiver[T]) target() Archiver[T] {
	a.once.Do(func() {
		a.arch = mustArchiverFor[T]()
	})
	return a.arch
}

func (a *directArchiver[T]) Layout() Layout {
	return a.target().Layout()
}

func (a *directArchiver[T]) Serialize(s *Serializer, v *T) (Resolver, error) {
	return a.target().Serialize(s, v)
}

func (a *directArchiver[T]) Resolve(v *T, pos int, r Resolver, out []byte) {
	a.target().Resolve(v, pos, r, out)
}

func (a *directArchiver[T]) CheckBytes(c *Validator, pos int) error {
	return a.target().CheckBytes(c, pos)
}

func (a *directArchiver[T]) Deserialize(d *Deserializer, pos int) (T, error) {
	return a.target().Deserialize(d, pos)
}

func typeName(typ reflect.Type) string {
	switch {
	case typ.Kind() == reflect.Pointer:
		return "*" + typeName(typ.Elem())
	case typ.Name() != "" && typ.PkgPath() != "":
		return typ.PkgPath() + "." + typ.Name()
	default:
		return typ.String()
	}
}
