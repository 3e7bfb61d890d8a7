//go:build linux

// File: core/buffer/buffer_linux.go
// Author: momentics <momentics@gmail.com>
//
// Descriptor I/O for Buffer: scatter read into the writable region plus a
// pooled 64 KiB scratch area, and a single linear write of the readable region.

package buffer

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/pool"
)

// ExtraBufSize is the scratch area used when a read overflows the writable region.
const ExtraBufSize = 64 * 1024

var scratch = pool.NewBytePool(ExtraBufSize)

// ReadFd reads whatever the descriptor has in one readv call. On failure it
// returns -1 and the raw errno.
func (b *Buffer) ReadFd(fd int) (int, error) {
	extra := scratch.GetBuffer()
	defer scratch.PutBuffer(extra)

	writable := b.WritableBytes()
	iovs := [][]byte{b.buf[b.writeIndex:], *extra}
	if writable >= ExtraBufSize {
		iovs = iovs[:1]
	}
	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return -1, err
	}
	if n <= writable {
		b.writeIndex += n
	} else {
		b.writeIndex = len(b.buf)
		b.Append((*extra)[:n-writable])
	}
	return n, nil
}

// WriteFd writes the readable region in one call. The caller retrieves the
// accepted byte count.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return -1, err
	}
	return n, nil
}
