//go:build !linux

// File: core/buffer/buffer_other.go
// Author: momentics <momentics@gmail.com>

package buffer

import "github.com/momentics/hioload-reactor/api"

// ExtraBufSize is the scratch area used when a read overflows the writable region.
const ExtraBufSize = 64 * 1024

// ReadFd is only available on Linux.
func (b *Buffer) ReadFd(fd int) (int, error) { return -1, api.ErrNotSupported }

// WriteFd is only available on Linux.
func (b *Buffer) WriteFd(fd int) (int, error) { return -1, api.ErrNotSupported }
