package bufpool

import (
	"sync"
)

// Pool hands out chunk buffers of one fixed size so that consecutive
// transfer sessions reuse the same memory.
type Pool struct {
	pool    sync.Pool
	bufSize int
}

// New creates a pool of bufSize-byte buffers.
func New(bufSize int) *Pool {
	if bufSize <= 0 {
		panic("bufpool: bufSize must be positive")
	}
	p := &Pool{bufSize: bufSize}
	p.pool.New = func() any {
		b := make([]byte, bufSize)
		return &b
	}
	return p
}

// Get returns a buffer of exactly BufSize bytes.
func (p *Pool) Get() []byte {
	b := *(p.pool.Get().(*[]byte))
	if cap(b) < p.bufSize {
		return make([]byte, p.bufSize)
	}
	return b[:p.bufSize]
}

// Put returns buf for reuse. Buffers smaller than BufSize are dropped.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.bufSize {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}

// BufSize returns the size of buffers in this pool.
func (p *Pool) BufSize() int {
	return p.bufSize
}
