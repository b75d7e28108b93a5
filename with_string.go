package cacheable

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strings"
)

// StringConverter maps T to and from its string form.
type StringConverter[T any] interface {
	ToString(v *T) (string, error)
	FromString(s string) (T, error)
}

// AsString stores T as the string produced by conv. Conversion failures
// in either direction are reported as ErrConversion.
func AsString[T any](conv StringConverter[T]) Archiver[T] {
	return stringConvArchiver[T]{conv}
}

// AsStringFunc is AsString with the conversions given as functions.
func AsStringFunc[T any](to func(v T) (string, error), from func(s string) (T, error)) Archiver[T] {
	return AsString[T](stringFuncs[T]{to, from})
}

// AsText stores T using its encoding.TextMarshaler implementation.
func AsText[T encoding.TextMarshaler, PT interface {
	*T
	encoding.TextUnmarshaler
}]() Archiver[T] {
	return AsStringFunc(func(v T) (string, error) {
		b, err := v.MarshalText()
		return string(b), err
	}, func(s string) (T, error) {
		var v T
		err := PT(&v).UnmarshalText([]byte(s))
		return v, err
	})
}

// AsJSON stores T as its JSON encoding.
func AsJSON[T any]() Archiver[T] {
	return AsStringFunc(func(v T) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}, func(s string) (T, error) {
		var v T
		err := json.Unmarshal([]byte(s), &v)
		return v, err
	})
}

type stringFuncs[T any] struct {
	to   func(v T) (string, error)
	from func(s string) (T, error)
}

func (f stringFuncs[T]) ToString(v *T) (string, error)  { return f.to(*v) }
func (f stringFuncs[T]) FromString(s string) (T, error) { return f.from(s) }

type stringConvArchiver[T any] struct {
	conv StringConverter[T]
}

func (a stringConvArchiver[T]) Layout() Layout { return blobLayout }

func (a stringConvArchiver[T]) Serialize(s *Serializer, v *T) (Resolver, error) {
	str, err := a.conv.ToString(v)
	if err != nil {
		return Resolver{}, fmt.Errorf("%w: %T to string: %w", ErrConversion, *v, err)
	}
	return writeBlob(s, unsafeBytes(str))
}

func (a stringConvArchiver[T]) Resolve(v *T, pos int, r Resolver, out []byte) {
	resolveBlob(pos, r, out)
}

func (a stringConvArchiver[T]) CheckBytes(c *Validator, pos int) error {
	return checkBlob(c, pos, true)
}

func (a stringConvArchiver[T]) Deserialize(d *Deserializer, pos int) (T, error) {
	str := strings.Clone(d.View(pos).Str())
	v, err := a.conv.FromString(str)
	if err != nil {
		return v, fmt.Errorf("%w: %q to %T: %w", ErrConversion, str, v, err)
	}
	return v, nil
}
