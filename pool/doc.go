// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory reuse helpers for hioload-reactor.
// BytePool hands out fixed-size scratch slices for the buffer read path.
package pool
