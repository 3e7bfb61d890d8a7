// File: core/buffer/buffer.go
// Author: momentics <momentics@gmail.com>
//
// Growable byte buffer with read/write cursors and a cheap-prepend margin.
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	|                   |     (CONTENT)    |                  |
//	+-------------------+------------------+------------------+
//	0      <=      readIndex   <=   writeIndex    <=     len(buf)

package buffer

import (
	"fmt"

	"github.com/momentics/hioload-reactor/api"
)

const (
	// CheapPrepend is the reserved head room in front of the readable region.
	CheapPrepend = 8
	// InitialSize is the default writable capacity of a new buffer.
	InitialSize = 1024
)

// Buffer is not safe for concurrent use; a connection's buffers are touched
// only from its loop goroutine.
type Buffer struct {
	buf        []byte
	readIndex  int
	writeIndex int
}

// New creates a buffer with initialSize writable bytes. Non-positive sizes
// select InitialSize.
func New(initialSize int) *Buffer {
	if initialSize <= 0 {
		initialSize = InitialSize
	}
	return &Buffer{
		buf:        make([]byte, CheapPrepend+initialSize),
		readIndex:  CheapPrepend,
		writeIndex: CheapPrepend,
	}
}

// ReadableBytes returns the number of unread bytes.
func (b *Buffer) ReadableBytes() int { return b.writeIndex - b.readIndex }

// WritableBytes returns the free space after the write cursor.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writeIndex }

// PrependableBytes returns the space before the read cursor.
func (b *Buffer) PrependableBytes() int { return b.readIndex }

// Capacity returns the size of the backing store.
func (b *Buffer) Capacity() int { return len(b.buf) }

// Peek returns the readable region without consuming it. The slice aliases
// the buffer and is valid until the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readIndex:b.writeIndex:b.writeIndex]
}

// Retrieve consumes n bytes. Consuming at least the readable amount resets
// both cursors to the prepend boundary.
func (b *Buffer) Retrieve(n int) {
	if n <= 0 {
		return
	}
	if n < b.ReadableBytes() {
		b.readIndex += n
		return
	}
	b.RetrieveAll()
}

// RetrieveAll consumes everything.
func (b *Buffer) RetrieveAll() {
	b.readIndex = CheapPrepend
	b.writeIndex = CheapPrepend
}

// RetrieveAsString consumes up to n bytes and returns them.
func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	if n <= 0 {
		return ""
	}
	s := string(b.buf[b.readIndex : b.readIndex+n])
	b.Retrieve(n)
	return s
}

// RetrieveAllAsString consumes and returns all readable bytes.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// EnsureWritableBytes guarantees at least n writable bytes, compacting or
// growing the backing store.
func (b *Buffer) EnsureWritableBytes(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// BeginWrite returns the writable region. Call HasWritten after filling it.
func (b *Buffer) BeginWrite() []byte {
	return b.buf[b.writeIndex:]
}

// HasWritten advances the write cursor by n bytes filled through BeginWrite.
func (b *Buffer) HasWritten(n int) {
	if n < 0 || n > b.WritableBytes() {
		panic(fmt.Sprintf("buffer: HasWritten(%d) outside writable region of %d", n, b.WritableBytes()))
	}
	b.writeIndex += n
}

// Append copies data into the writable region, growing as needed.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritableBytes(len(data))
	b.writeIndex += copy(b.buf[b.writeIndex:], data)
}

// AppendString copies s into the writable region.
func (b *Buffer) AppendString(s string) {
	b.EnsureWritableBytes(len(s))
	b.writeIndex += copy(b.buf[b.writeIndex:], s)
}

// Prepend writes data immediately before the readable region, typically a
// length header patched in after the payload was appended.
func (b *Buffer) Prepend(data []byte) error {
	if len(data) > b.PrependableBytes() {
		return fmt.Errorf("%w: prepend %d bytes with %d prependable", api.ErrInvalidArgument, len(data), b.PrependableBytes())
	}
	b.readIndex -= len(data)
	copy(b.buf[b.readIndex:], data)
	return nil
}

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+CheapPrepend {
		grown := make([]byte, b.writeIndex+n)
		copy(grown, b.buf[:b.writeIndex])
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[CheapPrepend:], b.buf[b.readIndex:b.writeIndex])
	b.readIndex = CheapPrepend
	b.writeIndex = CheapPrepend + readable
}
