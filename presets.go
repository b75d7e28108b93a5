package cacheable

import (
	"fmt"
)

// TypeWrapper is an opaque payload tagged with the name of its type.
type TypeWrapper struct {
	TypeName string
	Bytes    []byte
}

var typeWrapperArchiver = DefineStruct(func(b *StructBuilder[TypeWrapper]) {
	AddField(b, "TypeName", func(v *TypeWrapper) *string { return &v.TypeName }, String)
	AddField(b, "Bytes", func(v *TypeWrapper) *[]byte { return &v.Bytes }, Bytes)
})

// Variant is one of the concrete forms accepted by AsTagged.
type Variant[T any] struct {
	Name   string
	Match  func(v T) bool
	Encode func(v T) ([]byte, error)
	Decode func(b []byte) (T, error)
}

// AsTagged stores values of T that may take any of several foreign forms.
// The first variant whose Match accepts a value encodes it, and the result
// is kept as a nested archive of TypeWrapper, so the archived bytes of a
// tagged field can be validated and re-read on their own.
func AsTagged[T any](variants ...Variant[T]) Archiver[T] {
	byName := make(map[string]*Variant[T], len(variants))
	for i := range variants {
		v := &variants[i]
		if _, dup := byName[v.Name]; dup {
			panic(fmt.Sprintf("cacheable: duplicate variant %q", v.Name))
		}
		byName[v.Name] = v
	}
	return AsBytes[T](taggedConverter[T]{variants, byName})
}

type taggedConverter[T any] struct {
	variants []Variant[T]
	byName   map[string]*Variant[T]
}

func (tc taggedConverter[T]) ToBytes(v *T) ([]byte, error) {
	for _, vr := range tc.variants {
		if !vr.Match(*v) {
			continue
		}
		payload, err := vr.Encode(*v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", vr.Name, err)
		}
		return SerializeWith(TypeWrapper{vr.Name, payload}, typeWrapperArchiver, nil)
	}
	return nil, fmt.Errorf("no variant matches %T", *v)
}

func (tc taggedConverter[T]) FromBytes(b []byte) (T, error) {
	var zero T
	tw, err := DeserializeWith(b, typeWrapperArchiver, nil)
	if err != nil {
		return zero, err
	}
	vr := tc.byName[tw.TypeName]
	if vr == nil {
		return zero, fmt.Errorf("unknown variant %q", tw.TypeName)
	}
	return vr.Decode(tw.Bytes)
}
