package cacheable

import (
	"reflect"
	"slices"
)

// Validator checks an untrusted archive. Every read it performs is bounds
// checked, and every relative pointer must point strictly backwards, so
// validation always terminates.
//
// Every out-of-line block belongs to exactly one owner: Claim rejects a
// block overlapping one claimed earlier, so each byte is checked at most
// once per shared type and validation stays linear in the archive size.
type Validator struct {
	data     []byte
	depth    int
	maxDepth int
	visited  map[visitKey]struct{}
	claims   []claim // sorted by start, non-overlapping
}

type claim struct {
	start, end int
}

type visitKey struct {
	pos int
	typ reflect.Type
}

func newValidator(data []byte, o Options) *Validator {
	return &Validator{
		data:     data,
		maxDepth: o.MaxDepth,
	}
}

func (c *Validator) Data() []byte {
	return c.data
}

// Errorf reports a problem at off. The result always matches ErrCheckBytes.
func (c *Validator) Errorf(off int, err error, format string, args ...any) error {
	return dataErrf(c.data, off, err, format, args...)
}

// CheckRange verifies that size bytes at pos lie within the archive and
// that pos is a multiple of align.
func (c *Validator) CheckRange(pos, size, align int) error {
	if pos < 0 || size < 0 || pos > len(c.data) || size > len(c.data)-pos {
		return c.Errorf(pos, nil, "%d bytes out of bounds", size)
	}
	if align > 1 && pos%align != 0 {
		return c.Errorf(pos, nil, "misaligned, want alignment %d", align)
	}
	return nil
}

func (c *Validator) Uint32(pos int) (uint32, error) {
	if err := c.CheckRange(pos, 4, 1); err != nil {
		return 0, err
	}
	return le.Uint32(c.data[pos:]), nil
}

func (c *Validator) Uint64(pos int) (uint64, error) {
	if err := c.CheckRange(pos, 8, 1); err != nil {
		return 0, err
	}
	return le.Uint64(c.data[pos:]), nil
}

// RelTarget reads the relative pointer stored at pos and verifies that a
// block of size bytes with the given alignment fits at its target, entirely
// before pos. A zero pointer reports ok == false.
func (c *Validator) RelTarget(pos, size, align int) (target int, ok bool, err error) {
	if err := c.CheckRange(pos, 4, 4); err != nil {
		return 0, false, err
	}
	off := int32(le.Uint32(c.data[pos:]))
	if off == 0 {
		return 0, false, nil
	}
	if off > 0 {
		return 0, false, c.Errorf(pos, nil, "relative pointer %d points forward", off)
	}
	target = pos + int(off)
	if target < 0 {
		return 0, false, c.Errorf(pos, nil, "relative pointer %d points before the archive", off)
	}
	if size > pos-target {
		return 0, false, c.Errorf(pos, nil, "target of %d bytes at %d overlaps the pointer", size, target)
	}
	if err := c.CheckRange(target, size, align); err != nil {
		return 0, false, err
	}
	return target, true, nil
}

// Claim takes ownership of size bytes at pos. Claiming bytes that overlap
// an earlier claim fails; empty blocks are never claimed.
func (c *Validator) Claim(pos, size int) error {
	if size == 0 {
		return nil
	}
	end := pos + size
	i, _ := slices.BinarySearchFunc(c.claims, pos, func(r claim, pos int) int { return r.start - pos })
	if i > 0 && c.claims[i-1].end > pos {
		prev := c.claims[i-1]
		return c.Errorf(pos, nil, "%d bytes overlap data claimed at %d..%d", size, prev.start, prev.end)
	}
	if i < len(c.claims) && c.claims[i].start < end {
		next := c.claims[i]
		return c.Errorf(pos, nil, "%d bytes overlap data claimed at %d..%d", size, next.start, next.end)
	}
	c.claims = slices.Insert(c.claims, i, claim{pos, end})
	return nil
}

// claimTarget is RelTarget followed by Claim of the target block.
func (c *Validator) claimTarget(pos, size, align int) (target int, ok bool, err error) {
	target, ok, err = c.RelTarget(pos, size, align)
	if err != nil || !ok {
		return target, ok, err
	}
	if err := c.Claim(target, size); err != nil {
		return 0, false, err
	}
	return target, true, nil
}

// Visit reports whether the value of type typ at pos is seen for the first
// time. Shared values are only checked on their first visit.
func (c *Validator) Visit(pos int, typ reflect.Type) bool {
	key := visitKey{pos, typ}
	if _, found := c.visited[key]; found {
		return false
	}
	if c.visited == nil {
		c.visited = make(map[visitKey]struct{})
	}
	c.visited[key] = struct{}{}
	return true
}

// CheckValue checks an out-of-line value at pos, enforcing the depth limit.
func CheckValue[T any](c *Validator, arch Archiver[T], pos int) error {
	if c.depth >= c.maxDepth {
		return c.Errorf(pos, nil, "nesting deeper than %d", c.maxDepth)
	}
	c.depth++
	defer func() { c.depth-- }()
	return arch.CheckBytes(c, pos)
}
