package cacheable

import (
	"bytes"
)

// Serialize archives v using the archiver defined for T.
func Serialize[T any](v T, ctx any, opts ...Option) ([]byte, error) {
	return SerializeWith(v, mustArchiverFor[T](), ctx, opts...)
}

// SerializeWith archives v using arch. The returned buffer is owned by the
// caller and ends with the fixed part of v.
func SerializeWith[T any](v T, arch Archiver[T], ctx any, opts ...Option) ([]byte, error) {
	s := NewSerializer(ctx, opts...)
	defer s.Release()
	if _, err := SerializeValue(s, arch, &v); err != nil {
		return nil, err
	}
	return bytes.Clone(s.Bytes()), nil
}

// Deserialize validates data and reconstructs a T from it using the
// archiver defined for T.
func Deserialize[T any](data []byte, ctx any, opts ...Option) (T, error) {
	return DeserializeWith(data, mustArchiverFor[T](), ctx, opts...)
}

// DeserializeWith validates data and reconstructs a T from it using arch.
// Nothing is reconstructed unless the whole archive passes validation.
func DeserializeWith[T any](data []byte, arch Archiver[T], ctx any, opts ...Option) (T, error) {
	a, err := Check(data, arch, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return a.Deserialize(ctx)
}

// Archived is a validated archive of a T. Its root can be read in place
// through View or turned into an owned value with Deserialize.
type Archived[T any] struct {
	data []byte
	root int
	arch Archiver[T]
	opts Options
}

// Check validates data as an archive of T produced by arch.
func Check[T any](data []byte, arch Archiver[T], opts ...Option) (Archived[T], error) {
	o := buildOptions(opts)
	l := arch.Layout()
	c := newValidator(data, o)
	if len(data) < l.Size {
		return Archived[T]{}, c.Errorf(0, nil, "archive too short for a root of %d bytes", l.Size)
	}
	root := len(data) - l.Size
	if err := c.CheckRange(root, l.Size, l.Align); err != nil {
		return Archived[T]{}, err
	}
	if err := c.Claim(root, l.Size); err != nil {
		return Archived[T]{}, err
	}
	if err := CheckValue(c, arch, root); err != nil {
		return Archived[T]{}, err
	}
	return Archived[T]{data, root, arch, o}, nil
}

func (a Archived[T]) Bytes() []byte {
	return a.data
}

// View returns the root of the archive.
func (a Archived[T]) View() View {
	return View{a.data, a.root}
}

func (a Archived[T]) Deserialize(ctx any) (T, error) {
	d := newDeserializer(a.data, ctx, a.opts)
	return a.arch.Deserialize(d, a.root)
}
