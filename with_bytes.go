package cacheable

import (
	"bytes"
	"encoding"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// BytesConverter maps T to and from an opaque byte encoding.
type BytesConverter[T any] interface {
	ToBytes(v *T) ([]byte, error)
	FromBytes(b []byte) (T, error)
}

// AsBytes stores T as the bytes produced by conv. FromBytes receives a
// copy it may retain.
func AsBytes[T any](conv BytesConverter[T]) Archiver[T] {
	return bytesConvArchiver[T]{conv}
}

func AsBytesFunc[T any](to func(v T) ([]byte, error), from func(b []byte) (T, error)) Archiver[T] {
	return AsBytes[T](bytesFuncs[T]{to, from})
}

// AsBinary stores T using its encoding.BinaryMarshaler implementation.
func AsBinary[T encoding.BinaryMarshaler, PT interface {
	*T
	encoding.BinaryUnmarshaler
}]() Archiver[T] {
	return AsBytesFunc(func(v T) ([]byte, error) {
		return v.MarshalBinary()
	}, func(b []byte) (T, error) {
		var v T
		err := PT(&v).UnmarshalBinary(b)
		return v, err
	})
}

// AsMsgpack stores T as its MessagePack encoding, with map keys sorted so
// that equal values produce equal archives.
func AsMsgpack[T any]() Archiver[T] {
	return AsBytesFunc(func(v T) ([]byte, error) {
		var bb bytesBuilder
		enc := msgpack.GetEncoder()
		enc.ResetDict(&bb, nil)
		enc.SetSortMapKeys(true)
		err := enc.Encode(v)
		msgpack.PutEncoder(enc)
		return bb.Buf, err
	}, func(b []byte) (T, error) {
		var v T
		var r bytes.Reader
		r.Reset(b)
		dec := msgpack.GetDecoder()
		dec.ResetDict(&r, nil)
		err := dec.Decode(&v)
		msgpack.PutDecoder(dec)
		return v, err
	})
}

type bytesFuncs[T any] struct {
	to   func(v T) ([]byte, error)
	from func(b []byte) (T, error)
}

func (f bytesFuncs[T]) ToBytes(v *T) ([]byte, error)  { return f.to(*v) }
func (f bytesFuncs[T]) FromBytes(b []byte) (T, error) { return f.from(b) }

type bytesConvArchiver[T any] struct {
	conv BytesConverter[T]
}

func (a bytesConvArchiver[T]) Layout() Layout { return blobLayout }

func (a bytesConvArchiver[T]) Serialize(s *Serializer, v *T) (Resolver, error) {
	b, err := a.conv.ToBytes(v)
	if err != nil {
		return Resolver{}, fmt.Errorf("%w: %T to bytes: %w", ErrConversion, *v, err)
	}
	return writeBlob(s, b)
}

func (a bytesConvArchiver[T]) Resolve(v *T, pos int, r Resolver, out []byte) {
	resolveBlob(pos, r, out)
}

func (a bytesConvArchiver[T]) CheckBytes(c *Validator, pos int) error {
	return checkBlob(c, pos, false)
}

func (a bytesConvArchiver[T]) Deserialize(d *Deserializer, pos int) (T, error) {
	b := bytes.Clone(d.View(pos).Bytes())
	v, err := a.conv.FromBytes(b)
	if err != nil {
		return v, fmt.Errorf("%w: %d bytes to %T: %w", ErrConversion, len(b), v, err)
	}
	return v, nil
}
