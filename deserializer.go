package cacheable

import (
	"fmt"
	"reflect"
)

// Deserializer reconstructs owned values from an archive that has already
// passed validation.
type Deserializer struct {
	data   []byte
	ctx    any
	shared map[int]any
	alloc  func(reflect.Type) reflect.Value
}

func newDeserializer(data []byte, ctx any, o Options) *Deserializer {
	return &Deserializer{
		data:  data,
		ctx:   ctx,
		alloc: o.Alloc,
	}
}

func (d *Deserializer) Context() any {
	return d.ctx
}

func (d *Deserializer) Data() []byte {
	return d.data
}

func (d *Deserializer) View(pos int) View {
	return View{d.data, pos}
}

// SharedValue returns the value already reconstructed for the archived
// position pos.
func (d *Deserializer) SharedValue(pos int) (any, bool) {
	v, ok := d.shared[pos]
	return v, ok
}

func (d *Deserializer) AddSharedValue(pos int, v any) error {
	if d.shared == nil {
		d.shared = make(map[int]any)
	}
	if _, found := d.shared[pos]; found {
		return fmt.Errorf("%w: position %d", ErrDuplicateShared, pos)
	}
	d.shared[pos] = v
	return nil
}

// ContextOf extracts the context of type C passed to a serialize or
// deserialize pass.
func ContextOf[C any](ctx any) (C, error) {
	c, ok := ctx.(C)
	if !ok {
		return c, fmt.Errorf("%w: have %T, want %v", ErrContextType, ctx, reflect.TypeFor[C]())
	}
	return c, nil
}
