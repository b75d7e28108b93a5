package cacheable

// Layout describes the fixed part of an archived value: its size in bytes
// and its alignment relative to the start of the archive. Size is always a
// multiple of Align.
type Layout struct {
	Size  int
	Align int
}

var zeroLayout = Layout{0, 1}

// Resolver carries what Serialize learned about a value (usually the
// positions of already written dependencies) to Resolve.
type Resolver struct {
	Pos  int
	Len  int
	Tag  uint64
	Subs []Resolver
}

// Archiver converts values of T to and from their archived form.
//
// Serializing a value is a two step process. Serialize writes every
// out-of-line dependency of the value and returns a Resolver. Resolve then
// fills the fixed part (Layout().Size bytes, zeroed) at pos, typically by
// writing relative pointers to the dependencies.
//
// CheckBytes verifies an archived value at pos without trusting any of it.
// Deserialize may assume the archive has passed CheckBytes.
type Archiver[T any] interface {
	Layout() Layout
	Serialize(s *Serializer, v *T) (Resolver, error)
	Resolve(v *T, pos int, r Resolver, out []byte)
	CheckBytes(c *Validator, pos int) error
	Deserialize(d *Deserializer, pos int) (T, error)
}

func structLayout(fields []Layout) (Layout, []int) {
	offsets := make([]int, len(fields))
	off, align := 0, 1
	for i, f := range fields {
		off = alignUp(off, f.Align)
		offsets[i] = off
		off += f.Size
		align = max(align, f.Align)
	}
	return Layout{alignUp(off, align), align}, offsets
}
