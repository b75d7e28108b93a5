package cacheable

import "fmt"

// FromContext marks a field that is never archived. On deserialization its
// value is taken from the context, which must be of type C. The field adds
// no bytes to the archive.
func FromContext[C, F any](get func(ctx C) F) Archiver[F] {
	return fromContextArchiver[C, F]{get}
}

type fromContextArchiver[C, F any] struct {
	get func(ctx C) F
}

func (a fromContextArchiver[C, F]) Layout() Layout { return zeroLayout }

func (a fromContextArchiver[C, F]) Serialize(s *Serializer, v *F) (Resolver, error) {
	return Resolver{}, nil
}

func (a fromContextArchiver[C, F]) Resolve(v *F, pos int, r Resolver, out []byte) {}

func (a fromContextArchiver[C, F]) CheckBytes(c *Validator, pos int) error {
	return c.CheckRange(pos, 0, 1)
}

func (a fromContextArchiver[C, F]) Deserialize(d *Deserializer, pos int) (F, error) {
	ctx, err := ContextOf[C](d.Context())
	if err != nil {
		var zero F
		return zero, err
	}
	return a.get(ctx), nil
}

// Unsupported marks a field that cannot be archived. Both serializing and
// deserializing it fail with ErrUnsupportedField.
func Unsupported[T any]() Archiver[T] {
	return unsupportedArchiver[T]{}
}

type unsupportedArchiver[T any] struct{}

func (unsupportedArchiver[T]) Layout() Layout { return zeroLayout }

func (unsupportedArchiver[T]) Serialize(s *Serializer, v *T) (Resolver, error) {
	return Resolver{}, fmt.Errorf("%w: %T", ErrUnsupportedField, *v)
}

func (unsupportedArchiver[T]) Resolve(v *T, pos int, r Resolver, out []byte) {}

func (unsupportedArchiver[T]) CheckBytes(c *Validator, pos int) error { return nil }

func (unsupportedArchiver[T]) Deserialize(d *Deserializer, pos int) (T, error) {
	var zero T
	return zero, fmt.Errorf("%w: %T", ErrUnsupportedField, zero)
}
