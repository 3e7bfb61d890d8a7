//go:build linux

package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func pipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

func TestReadFdFitsWritableRegion(t *testing.T) {
	r, w := pipe(t)
	b := New(128)
	data := pattern(100)
	_, err := unix.Write(w, data)
	require.NoError(t, err)

	capBefore := b.Capacity()
	n, err := b.ReadFd(r)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, capBefore, b.Capacity())
	assert.Equal(t, data, b.Peek())
}

func TestReadFdLargeWritableSkipsScratch(t *testing.T) {
	r, w := pipe(t)
	b := New(128 * 1024)
	require.GreaterOrEqual(t, b.WritableBytes(), ExtraBufSize)
	data := pattern(40000)
	_, err := unix.Write(w, data)
	require.NoError(t, err)

	capBefore := b.Capacity()
	n, err := b.ReadFd(r)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, capBefore, b.Capacity())
	assert.Equal(t, 128*1024-n, b.WritableBytes())
	assert.Equal(t, data, b.Peek())
}

func TestReadFdScatterOverflow(t *testing.T) {
	for _, initial := range []int{16, 1024} {
		r, w := pipe(t)
		b := New(initial)
		b.AppendString("head")
		before := b.ReadableBytes()
		writable := b.WritableBytes()

		data := pattern(40000)
		_, err := unix.Write(w, data)
		require.NoError(t, err)

		n, err := b.ReadFd(r)
		require.NoError(t, err)
		require.Greater(t, n, writable)
		assert.Equal(t, before+n, b.ReadableBytes())
		assert.True(t, bytes.Equal(append([]byte("head"), data[:n]...), b.Peek()))
	}
}

func TestReadFdWouldBlock(t *testing.T) {
	r, _ := pipe(t)
	b := New(0)
	n, err := b.ReadFd(r)
	assert.Equal(t, -1, n)
	assert.ErrorIs(t, err, unix.EAGAIN)
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestWriteFdDoesNotConsume(t *testing.T) {
	r, w := pipe(t)
	b := New(0)
	b.AppendString("pong")

	n, err := b.WriteFd(w)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, b.ReadableBytes())

	got := make([]byte, 8)
	m, err := unix.Read(r, got)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got[:m]))
}
