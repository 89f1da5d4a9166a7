package engine

import (
	"sync"
)

// CopyBufferSize is the chunk size of the copy loop. Every non-empty read
// of at most this many bytes becomes one write to the sink.
const CopyBufferSize = 8192

// BufferPool manages reusable byte buffers so that concurrent saves in one
// process do not allocate a fresh chunk buffer each.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a new BufferPool that allocates buffers of the specified size.
// If size is <= 0, CopyBufferSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = CopyBufferSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Get retrieves a reusable byte buffer from the pool.
// The caller should defer calling Put on this buffer once finished.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns the byte buffer to the pool so it can be reused.
// Buffers of a foreign size are dropped.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil && len(*b) == bp.size {
		bp.pool.Put(b)
	}
}
