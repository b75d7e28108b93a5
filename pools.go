package cacheable

import "sync"

const maxPooledBuffer = 1 << 20

var archiveBufferPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func releaseArchiveBuffer(b []byte) {
	if cap(b) <= maxPooledBuffer {
		archiveBufferPool.Put(b[:0])
	}
}

var scratchPool = &sync.Pool{
	New: func() any {
		return make([]Resolver, 0, 256)
	},
}

func releaseScratch(s []Resolver) {
	if cap(s) <= maxPooledBuffer/64 {
		clear(s[:cap(s)])
		scratchPool.Put(s[:0])
	}
}
