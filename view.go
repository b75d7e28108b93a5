package cacheable

import (
	"math"
	"unsafe"
)

// View reads fields of an archived value in place. Views are meant for
// validated archives; reads outside the archive panic.
type View struct {
	data []byte
	pos  int
}

func (v View) Pos() int {
	return v.pos
}

// Field returns a view of the field at offset off within this value.
func (v View) Field(off int) View {
	return View{v.data, v.pos + off}
}

func (v View) Bool() bool       { return v.data[v.pos] != 0 }
func (v View) Uint8() uint8     { return v.data[v.pos] }
func (v View) Uint16() uint16   { return le.Uint16(v.data[v.pos:]) }
func (v View) Uint32() uint32   { return le.Uint32(v.data[v.pos:]) }
func (v View) Uint64() uint64   { return le.Uint64(v.data[v.pos:]) }
func (v View) Int8() int8       { return int8(v.Uint8()) }
func (v View) Int16() int16     { return int16(v.Uint16()) }
func (v View) Int32() int32     { return int32(v.Uint32()) }
func (v View) Int64() int64     { return int64(v.Uint64()) }
func (v View) Float32() float32 { return math.Float32frombits(v.Uint32()) }
func (v View) Float64() float64 { return math.Float64frombits(v.Uint64()) }

// Deref follows the relative pointer stored in this value.
func (v View) Deref() (View, bool) {
	target, ok := readRelPtr(v.data, v.pos)
	if !ok {
		return View{}, false
	}
	return View{v.data, target}, true
}

// Len returns the element count of an archived string, byte slice or
// collection.
func (v View) Len() int {
	return int(le.Uint32(v.data[v.pos+4:]))
}

// Bytes returns the contents of an archived byte slice without copying.
func (v View) Bytes() []byte {
	target, ok := readRelPtr(v.data, v.pos)
	if !ok {
		return nil
	}
	n := v.Len()
	return v.data[target : target+n : target+n]
}

// Str returns the contents of an archived string without copying. The
// string is only valid while the archive buffer is neither modified nor
// released.
func (v View) Str() string {
	b := v.Bytes()
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// Elem returns the i-th element of an archived collection whose elements
// occupy elemSize bytes each.
func (v View) Elem(i, elemSize int) View {
	target, _ := readRelPtr(v.data, v.pos)
	return View{v.data, target + i*elemSize}
}
