package cacheable

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Serializer accumulates an archive. Data is only ever appended, so every
// position handed out stays valid until the pass ends.
type Serializer struct {
	buf          []byte
	maxSize      int
	scratch      []Resolver
	scratchLimit int
	shared       map[sharedKey]int
	ctx          any
}

// sharedKey identifies a shared value by address and type: a struct and its
// first field share an address but are distinct values.
type sharedKey struct {
	p   unsafe.Pointer
	typ reflect.Type
}

// NewSerializer starts a serialization pass. Call Bytes to obtain the
// archive and Release once done with the serializer.
func NewSerializer(ctx any, opts ...Option) *Serializer {
	o := buildOptions(opts)
	return &Serializer{
		buf:          archiveBufferPool.Get().([]byte),
		maxSize:      o.MaxSize,
		scratch:      scratchPool.Get().([]Resolver),
		scratchLimit: o.ScratchLimit,
		ctx:          ctx,
	}
}

// Release returns internal buffers to their pools. Slices previously
// returned by Bytes must not be used afterwards.
func (s *Serializer) Release() {
	if s.buf != nil {
		releaseArchiveBuffer(s.buf)
		s.buf = nil
	}
	if s.scratch != nil {
		releaseScratch(s.scratch)
		s.scratch = nil
	}
	s.shared = nil
}

// Context returns the context value this pass was started with.
func (s *Serializer) Context() any {
	return s.ctx
}

func (s *Serializer) Pos() int {
	return len(s.buf)
}

// Bytes returns the archive written so far. The slice aliases the
// serializer's buffer.
func (s *Serializer) Bytes() []byte {
	return s.buf
}

func (s *Serializer) extend(n int) (int, error) {
	if len(s.buf)+n > s.maxSize {
		return 0, fmt.Errorf("%w: need %d bytes, limit is %d", ErrAllocation, len(s.buf)+n, s.maxSize)
	}
	var off int
	off, s.buf = grow(s.buf, n)
	return off, nil
}

// Write appends raw bytes and returns their position.
func (s *Serializer) Write(b []byte) (int, error) {
	off, err := s.extend(len(b))
	if err != nil {
		return 0, err
	}
	copy(s.buf[off:], b)
	return off, nil
}

// Pad appends n zero bytes.
func (s *Serializer) Pad(n int) error {
	_, err := s.extend(n)
	return err
}

// Align pads the archive to a multiple of align and returns the new position.
func (s *Serializer) Align(align int) (int, error) {
	pos := len(s.buf)
	if err := s.Pad(alignUp(pos, align) - pos); err != nil {
		return 0, err
	}
	return len(s.buf), nil
}

// Reserve appends an aligned, zeroed region for a fixed part of layout l
// and returns its position.
func (s *Serializer) Reserve(l Layout) (int, error) {
	pos, err := s.Align(l.Align)
	if err != nil {
		return 0, err
	}
	if err := s.Pad(l.Size); err != nil {
		return 0, err
	}
	return pos, nil
}

// separate makes sure the next byte written lands after start, so that a
// relative pointer to an empty block written at start is never zero.
func (s *Serializer) separate(start int) error {
	if len(s.buf) == start {
		return s.Pad(1)
	}
	return nil
}

// PushScratch reserves n resolvers on the scratch stack. Callers must
// PopScratch the same n before returning. The returned slice stays usable
// across nested pushes.
func (s *Serializer) PushScratch(n int) ([]Resolver, error) {
	used := len(s.scratch)
	if used+n > s.scratchLimit {
		return nil, fmt.Errorf("%w: need %d resolvers, limit is %d", ErrScratchExhausted, used+n, s.scratchLimit)
	}
	if used+n > cap(s.scratch) {
		grown := make([]Resolver, used, max(2*cap(s.scratch), used+n))
		copy(grown, s.scratch)
		s.scratch = grown
	}
	s.scratch = s.scratch[:used+n]
	return s.scratch[used : used+n : used+n], nil
}

func (s *Serializer) PopScratch(n int) {
	used := len(s.scratch) - n
	clear(s.scratch[used:])
	s.scratch = s.scratch[:used]
}

// SharedPos returns the position of the value of type typ previously
// serialized for pointer p during this pass.
func (s *Serializer) SharedPos(p unsafe.Pointer, typ reflect.Type) (int, bool) {
	pos, ok := s.shared[sharedKey{p, typ}]
	if pos == sharedPending {
		return 0, false
	}
	return pos, ok
}

// AddSharedPos records where the value of type typ behind p was serialized.
// Recording the same value twice fails with ErrDuplicateShared.
func (s *Serializer) AddSharedPos(p unsafe.Pointer, typ reflect.Type, pos int) error {
	if s.shared == nil {
		s.shared = make(map[sharedKey]int)
	}
	key := sharedKey{p, typ}
	if prev, found := s.shared[key]; found && prev != sharedPending {
		return fmt.Errorf("%w: %v at %p already at %d", ErrDuplicateShared, typ, p, prev)
	}
	s.shared[key] = pos
	return nil
}

const sharedPending = -1

// beginShared marks the value as being serialized, so that reaching it again
// before it is done reports a cycle instead of recursing forever.
func (s *Serializer) beginShared(p unsafe.Pointer, typ reflect.Type) error {
	if s.shared == nil {
		s.shared = make(map[sharedKey]int)
	}
	key := sharedKey{p, typ}
	if _, found := s.shared[key]; found {
		return fmt.Errorf("%w: %v at %p", ErrSharedCycle, typ, p)
	}
	s.shared[key] = sharedPending
	return nil
}

// SerializeValue writes v, dependencies first, and returns the position of
// its fixed part.
func SerializeValue[T any](s *Serializer, arch Archiver[T], v *T) (int, error) {
	r, err := arch.Serialize(s, v)
	if err != nil {
		return 0, err
	}
	l := arch.Layout()
	pos, err := s.Reserve(l)
	if err != nil {
		return 0, err
	}
	arch.Resolve(v, pos, r, s.buf[pos:pos+l.Size])
	return pos, nil
}

// serializeTarget is SerializeValue for values reached through a relative
// pointer.
func serializeTarget[T any](s *Serializer, arch Archiver[T], v *T) (int, error) {
	pos, err := SerializeValue(s, arch, v)
	if err != nil {
		return 0, err
	}
	return pos, s.separate(pos)
}
