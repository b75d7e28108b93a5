package cacheable

import (
	"math"
	"time"
	"unicode/utf8"
)

var (
	Bool     Archiver[bool]          = Define[bool](boolArchiver{})
	Int8     Archiver[int8]          = Define[int8](intArchiver[int8](1))
	Int16    Archiver[int16]         = Define[int16](intArchiver[int16](2))
	Int32    Archiver[int32]         = Define[int32](intArchiver[int32](4))
	Int64    Archiver[int64]         = Define[int64](intArchiver[int64](8))
	Int      Archiver[int]           = Define[int](intArchiver[int](8))
	Uint8    Archiver[uint8]         = Define[uint8](intArchiver[uint8](1))
	Uint16   Archiver[uint16]        = Define[uint16](intArchiver[uint16](2))
	Uint32   Archiver[uint32]        = Define[uint32](intArchiver[uint32](4))
	Uint64   Archiver[uint64]        = Define[uint64](intArchiver[uint64](8))
	Uint     Archiver[uint]          = Define[uint](intArchiver[uint](8))
	Float32  Archiver[float32]       = Define[float32](float32Archiver{})
	Float64  Archiver[float64]       = Define[float64](float64Archiver{})
	Duration Archiver[time.Duration] = Define[time.Duration](intArchiver[time.Duration](8))
	Time     Archiver[time.Time]     = Define[time.Time](timeArchiver{})
	String   Archiver[string]        = Define[string](stringArchiver{})
	Bytes    Archiver[[]byte]        = Define[[]byte](bytesArchiver{})
)

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type intArchiver[T integer] int

func (a intArchiver[T]) Layout() Layout {
	return Layout{int(a), int(a)}
}

func (a intArchiver[T]) Serialize(s *Serializer, v *T) (Resolver, error) {
	return Resolver{}, nil
}

func (a intArchiver[T]) Resolve(v *T, pos int, r Resolver, out []byte) {
	u := uint64(*v)
	for i := range int(a) {
		out[i] = byte(u >> (8 * i))
	}
}

func (a intArchiver[T]) CheckBytes(c *Validator, pos int) error {
	return c.CheckRange(pos, int(a), int(a))
}

func (a intArchiver[T]) Deserialize(d *Deserializer, pos int) (T, error) {
	var u uint64
	for i := range int(a) {
		u |= uint64(d.data[pos+i]) << (8 * i)
	}
	return T(u), nil
}

type boolArchiver struct{}

func (boolArchiver) Layout() Layout                                      { return Layout{1, 1} }
func (boolArchiver) Serialize(s *Serializer, v *bool) (Resolver, error) { return Resolver{}, nil }

func (boolArchiver) Resolve(v *bool, pos int, r Resolver, out []byte) {
	if *v {
		out[0] = 1
	}
}

func (boolArchiver) CheckBytes(c *Validator, pos int) error {
	if err := c.CheckRange(pos, 1, 1); err != nil {
		return err
	}
	if b := c.data[pos]; b > 1 {
		return c.Errorf(pos, nil, "invalid bool %d", b)
	}
	return nil
}

func (boolArchiver) Deserialize(d *Deserializer, pos int) (bool, error) {
	return d.data[pos] != 0, nil
}

type float32Archiver struct{}

func (float32Archiver) Layout() Layout                                         { return Layout{4, 4} }
func (float32Archiver) Serialize(s *Serializer, v *float32) (Resolver, error) { return Resolver{}, nil }
func (float32Archiver) Resolve(v *float32, pos int, r Resolver, out []byte) {
	le.PutUint32(out, math.Float32bits(*v))
}
func (float32Archiver) CheckBytes(c *Validator, pos int) error { return c.CheckRange(pos, 4, 4) }
func (float32Archiver) Deserialize(d *Deserializer, pos int) (float32, error) {
	return d.View(pos).Float32(), nil
}

type float64Archiver struct{}

func (float64Archiver) Layout() Layout                                         { return Layout{8, 8} }
func (float64Archiver) Serialize(s *Serializer, v *float64) (Resolver, error) { return Resolver{}, nil }
func (float64Archiver) Resolve(v *float64, pos int, r Resolver, out []byte) {
	le.PutUint64(out, math.Float64bits(*v))
}
func (float64Archiver) CheckBytes(c *Validator, pos int) error { return c.CheckRange(pos, 8, 8) }
func (float64Archiver) Deserialize(d *Deserializer, pos int) (float64, error) {
	return d.View(pos).Float64(), nil
}

// timeArchiver stores Unix seconds and nanoseconds; the location is not
// preserved.
type timeArchiver struct{}

func (timeArchiver) Layout() Layout                                           { return Layout{16, 8} }
func (timeArchiver) Serialize(s *Serializer, v *time.Time) (Resolver, error) { return Resolver{}, nil }

func (timeArchiver) Resolve(v *time.Time, pos int, r Resolver, out []byte) {
	le.PutUint64(out, uint64(v.Unix()))
	le.PutUint32(out[8:], uint32(v.Nanosecond()))
}

func (timeArchiver) CheckBytes(c *Validator, pos int) error {
	if err := c.CheckRange(pos, 16, 8); err != nil {
		return err
	}
	if ns := le.Uint32(c.data[pos+8:]); ns >= 1e9 {
		return c.Errorf(pos+8, nil, "invalid nanoseconds %d", ns)
	}
	return nil
}

func (timeArchiver) Deserialize(d *Deserializer, pos int) (time.Time, error) {
	v := d.View(pos)
	return time.Unix(v.Int64(), int64(v.Field(8).Uint32())), nil
}

// Strings and byte slices are archived as a relative pointer to their
// contents followed by a uint32 length.
var blobLayout = Layout{8, 4}

func writeBlob(s *Serializer, b []byte) (Resolver, error) {
	if len(b) == 0 {
		return Resolver{}, nil
	}
	if uint64(len(b)) > math.MaxUint32 {
		return Resolver{}, ErrAllocation
	}
	pos, err := s.Write(b)
	if err != nil {
		return Resolver{}, err
	}
	return Resolver{Pos: pos, Len: len(b)}, nil
}

func resolveBlob(pos int, r Resolver, out []byte) {
	if r.Len == 0 {
		return
	}
	putRelPtr(out, pos, r.Pos)
	putLen(out[4:], r.Len)
}

func checkBlob(c *Validator, pos int, text bool) error {
	if err := c.CheckRange(pos, 8, 4); err != nil {
		return err
	}
	n := int(le.Uint32(c.data[pos+4:]))
	target, ok, err := c.claimTarget(pos, n, 1)
	if err != nil {
		return err
	}
	if !ok {
		if n != 0 {
			return c.Errorf(pos, nil, "null pointer with length %d", n)
		}
		return nil
	}
	if text && !utf8.Valid(c.data[target:target+n]) {
		return c.Errorf(target, nil, "invalid UTF-8")
	}
	return nil
}

type stringArchiver struct{}

func (stringArchiver) Layout() Layout { return blobLayout }

func (stringArchiver) Serialize(s *Serializer, v *string) (Resolver, error) {
	return writeBlob(s, unsafeBytes(*v))
}

func (stringArchiver) Resolve(v *string, pos int, r Resolver, out []byte) {
	resolveBlob(pos, r, out)
}

func (stringArchiver) CheckBytes(c *Validator, pos int) error {
	return checkBlob(c, pos, true)
}

func (stringArchiver) Deserialize(d *Deserializer, pos int) (string, error) {
	return string(d.View(pos).Bytes()), nil
}

type bytesArchiver struct{}

func (bytesArchiver) Layout() Layout { return blobLayout }

func (bytesArchiver) Serialize(s *Serializer, v *[]byte) (Resolver, error) {
	return writeBlob(s, *v)
}

func (bytesArchiver) Resolve(v *[]byte, pos int, r Resolver, out []byte) {
	resolveBlob(pos, r, out)
}

func (bytesArchiver) CheckBytes(c *Validator, pos int) error {
	return checkBlob(c, pos, false)
}

func (bytesArchiver) Deserialize(d *Deserializer, pos int) ([]byte, error) {
	b := d.View(pos).Bytes()
	if b == nil {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}
