package cacheable

import (
	"sync"
	"sync/atomic"
)

// OnceCell holds a value that is set at most once.
type OnceCell[T any] struct {
	once  sync.Once
	set   atomic.Bool
	value T
}

func NewOnceCell[T any]() *OnceCell[T] {
	return &OnceCell[T]{}
}

// OnceCellOf returns a cell already holding v.
func OnceCellOf[T any](v T) *OnceCell[T] {
	c := &OnceCell[T]{}
	c.Set(v)
	return c
}

func (c *OnceCell[T]) Get() (T, bool) {
	if c == nil || !c.set.Load() {
		var zero T
		return zero, false
	}
	return c.value, true
}

// Set stores v unless the cell already holds a value, and reports whether
// it did.
func (c *OnceCell[T]) Set(v T) bool {
	stored := false
	c.once.Do(func() {
		c.value = v
		c.set.Store(true)
		stored = true
	})
	return stored
}

func (c *OnceCell[T]) GetOrInit(f func() T) T {
	c.once.Do(func() {
		c.value = f()
		c.set.Store(true)
	})
	return c.value
}

// AsOnce stores a *OnceCell[T] as a presence byte followed by the inline
// archived value. Nil and empty cells are stored as absent and come back
// as empty cells.
func AsOnce[T any](inner Archiver[T]) Archiver[*OnceCell[T]] {
	if inner == nil {
		inner = Direct[T]()
	}
	return &onceArchiver[T]{inner: inner}
}

type onceArchiver[T any] struct {
	inner Archiver[T]

	layoutOnce sync.Once
	lay        Layout
	valueOff   int
}

func (a *onceArchiver[T]) computeLayout() {
	a.layoutOnce.Do(func() {
		lay, offsets := structLayout([]Layout{{1, 1}, a.inner.Layout()})
		a.lay, a.valueOff = lay, offsets[1]
	})
}

func (a *onceArchiver[T]) Layout() Layout {
	a.computeLayout()
	return a.lay
}

func (a *onceArchiver[T]) Serialize(s *Serializer, v **OnceCell[T]) (Resolver, error) {
	val, ok := (*v).Get()
	if !ok {
		return Resolver{}, nil
	}
	r, err := a.inner.Serialize(s, &val)
	if err != nil {
		return Resolver{}, err
	}
	return Resolver{Len: 1, Subs: []Resolver{r}}, nil
}

func (a *onceArchiver[T]) Resolve(v **OnceCell[T], pos int, r Resolver, out []byte) {
	if r.Len == 0 {
		return
	}
	a.computeLayout()
	val, _ := (*v).Get()
	out[0] = 1
	size := a.inner.Layout().Size
	a.inner.Resolve(&val, pos+a.valueOff, r.Subs[0], out[a.valueOff:a.valueOff+size])
}

func (a *onceArchiver[T]) CheckBytes(c *Validator, pos int) error {
	l := a.Layout()
	if err := c.CheckRange(pos, l.Size, l.Align); err != nil {
		return err
	}
	switch c.data[pos] {
	case 0:
		return nil
	case 1:
		return a.inner.CheckBytes(c, pos+a.valueOff)
	default:
		return c.Errorf(pos, nil, "invalid presence tag %d", c.data[pos])
	}
}

func (a *onceArchiver[T]) Deserialize(d *Deserializer, pos int) (*OnceCell[T], error) {
	a.computeLayout()
	if d.data[pos] == 0 {
		return NewOnceCell[T](), nil
	}
	val, err := a.inner.Deserialize(d, pos+a.valueOff)
	if err != nil {
		return nil, err
	}
	return OnceCellOf(val), nil
}
