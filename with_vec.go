package cacheable

import (
	"fmt"
	"iter"
)

// VecConverter adapts a collection type C to a sequence of elements E.
//
// From receives the archived element count and a sequence of deserialized
// elements; it must stop at, and return, the first error it sees.
type VecConverter[C, E any] interface {
	Len(c *C) int
	All(c *C) iter.Seq[*E]
	From(n int, elems iter.Seq2[E, error]) (C, error)
}

// AsVec stores a slice as a length-prefixed array of archived elements.
// An empty slice deserializes as nil.
func AsVec[E any](elem Archiver[E]) Archiver[[]E] {
	return AsVecWith[[]E](SliceOf[E](), elem)
}

// AsSet stores a set as an array of its elements, in unspecified order.
func AsSet[E comparable](elem Archiver[E]) Archiver[map[E]struct{}] {
	return AsVecWith[map[E]struct{}](SetOf[E](), elem)
}

// AsVecWith stores any collection supported by conv as an array.
func AsVecWith[C, E any](conv VecConverter[C, E], elem Archiver[E]) Archiver[C] {
	if elem == nil {
		elem = Direct[E]()
	}
	return vecArchiver[C, E]{conv, elem}
}

type vecArchiver[C, E any] struct {
	conv VecConverter[C, E]
	elem Archiver[E]
}

func (a vecArchiver[C, E]) Layout() Layout { return blobLayout }

func (a vecArchiver[C, E]) Serialize(s *Serializer, v *C) (Resolver, error) {
	n := a.conv.Len(v)
	if n == 0 {
		return Resolver{}, nil
	}
	resolvers, err := s.PushScratch(n)
	if err != nil {
		return Resolver{}, err
	}
	defer s.PopScratch(n)

	elems := make([]*E, 0, n)
	for e := range a.conv.All(v) {
		if len(elems) == n {
			return Resolver{}, fmt.Errorf("%w: collection yielded more than %d elements", ErrConversion, n)
		}
		r, err := a.elem.Serialize(s, e)
		if err != nil {
			return Resolver{}, fmt.Errorf("[%d]: %w", len(elems), err)
		}
		resolvers[len(elems)] = r
		elems = append(elems, e)
	}
	if len(elems) != n {
		return Resolver{}, fmt.Errorf("%w: collection yielded %d of %d elements", ErrConversion, len(elems), n)
	}

	l := a.elem.Layout()
	start, err := s.Align(l.Align)
	if err != nil {
		return Resolver{}, err
	}
	if err := s.Pad(n * l.Size); err != nil {
		return Resolver{}, err
	}
	for i, e := range elems {
		pos := start + i*l.Size
		a.elem.Resolve(e, pos, resolvers[i], s.buf[pos:pos+l.Size])
	}
	if err := s.separate(start); err != nil {
		return Resolver{}, err
	}
	return Resolver{Pos: start, Len: n}, nil
}

func (a vecArchiver[C, E]) Resolve(v *C, pos int, r Resolver, out []byte) {
	resolveBlob(pos, r, out)
}

func (a vecArchiver[C, E]) CheckBytes(c *Validator, pos int) error {
	n, target, err := checkArray(c, pos, a.elem.Layout())
	if err != nil || n == 0 {
		return err
	}
	size := a.elem.Layout().Size
	for i := range n {
		if err := CheckValue(c, a.elem, target+i*size); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (a vecArchiver[C, E]) Deserialize(d *Deserializer, pos int) (C, error) {
	v := d.View(pos)
	n := v.Len()
	size := a.elem.Layout().Size
	target, _ := readRelPtr(d.data, pos)
	return a.conv.From(n, func(yield func(E, error) bool) {
		for i := range n {
			e, err := a.elem.Deserialize(d, target+i*size)
			if err != nil {
				err = fmt.Errorf("[%d]: %w", i, err)
			}
			if !yield(e, err) || err != nil {
				return
			}
		}
	})
}

// checkArray validates the header of an archived array and the bounds of
// its elements, returning the element count and array position.
func checkArray(c *Validator, pos int, elem Layout) (n, target int, err error) {
	if err := c.CheckRange(pos, 8, 4); err != nil {
		return 0, 0, err
	}
	n = int(le.Uint32(c.data[pos+4:]))
	if elem.Size == 0 && n > len(c.data) {
		return 0, 0, c.Errorf(pos, nil, "%d zero-sized elements in a %d byte archive", n, len(c.data))
	}
	if elem.Size > 0 && n > len(c.data)/elem.Size {
		return 0, 0, c.Errorf(pos, nil, "%d elements of %d bytes do not fit", n, elem.Size)
	}
	target, ok, err := c.claimTarget(pos, n*elem.Size, elem.Align)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		if n != 0 {
			return 0, 0, c.Errorf(pos, nil, "null array pointer with length %d", n)
		}
		return 0, 0, nil
	}
	return n, target, nil
}

// collect drains elems into a slice, stopping at the first error.
func collect[E any](n int, elems iter.Seq2[E, error]) ([]E, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]E, 0, n)
	for e, err := range elems {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SliceOf returns the converter used by AsVec.
func SliceOf[E any]() VecConverter[[]E, E] {
	return sliceConverter[E]{}
}

type sliceConverter[E any] struct{}

func (sliceConverter[E]) Len(c *[]E) int { return len(*c) }

func (sliceConverter[E]) All(c *[]E) iter.Seq[*E] {
	return func(yield func(*E) bool) {
		for i := range *c {
			if !yield(&(*c)[i]) {
				return
			}
		}
	}
}

func (sliceConverter[E]) From(n int, elems iter.Seq2[E, error]) ([]E, error) {
	return collect(n, elems)
}

// SetOf returns the converter used by AsSet.
func SetOf[E comparable]() VecConverter[map[E]struct{}, E] {
	return setConverter[E]{}
}

type setConverter[E comparable] struct{}

func (setConverter[E]) Len(c *map[E]struct{}) int { return len(*c) }

func (setConverter[E]) All(c *map[E]struct{}) iter.Seq[*E] {
	return func(yield func(*E) bool) {
		for e := range *c {
			if !yield(&e) {
				return
			}
		}
	}
}

func (setConverter[E]) From(n int, elems iter.Seq2[E, error]) (map[E]struct{}, error) {
	if n == 0 {
		return nil, nil
	}
	set := make(map[E]struct{}, n)
	for e, err := range elems {
		if err != nil {
			return nil, err
		}
		set[e] = struct{}{}
	}
	return set, nil
}
