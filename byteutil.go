package cacheable

import (
	"encoding/binary"
	"io"
	"math"
	"unsafe"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 64 {
			c = 64
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	buf = buf[:newLen]
	clear(buf[off:])
	return off, buf
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// bytesBuilder adapts a byte slice into an io.Writer for foreign encoders.
type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	off, buf := grow(bb.Buf, len(b))
	copy(buf[off:], b)
	bb.Buf = buf
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	off, buf := grow(bb.Buf, 1)
	buf[off] = v
	bb.Buf = buf
	return nil
}

var le = binary.LittleEndian

func putRelPtr(out []byte, from, to int) {
	le.PutUint32(out, uint32(int32(to-from)))
}

func readRelPtr(data []byte, pos int) (target int, ok bool) {
	off := int32(le.Uint32(data[pos:]))
	if off == 0 {
		return 0, false
	}
	return pos + int(off), true
}

func putLen(out []byte, n int) {
	if uint64(n) > math.MaxUint32 {
		panic("length does not fit into uint32")
	}
	le.PutUint32(out, uint32(n))
}

func unsafeBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
