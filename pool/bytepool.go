// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// BytePool recycles fixed-size scratch slices.
type BytePool struct {
	size int
	p    sync.Pool
}

// NewBytePool creates a pool whose buffers are exactly size bytes long.
func NewBytePool(size int) *BytePool {
	b := &BytePool{size: size}
	b.p.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return b
}

// Size returns the length of every buffer handed out.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer from the pool.
func (b *BytePool) GetBuffer() *[]byte {
	return b.p.Get().(*[]byte)
}

// PutBuffer returns a buffer to the pool. Buffers of the wrong length are dropped.
func (b *BytePool) PutBuffer(buf *[]byte) {
	if buf == nil || len(*buf) != b.size {
		return
	}
	b.p.Put(buf)
}
