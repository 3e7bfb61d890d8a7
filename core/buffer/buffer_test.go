package buffer

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkInvariants(t *testing.T, b *Buffer) {
	t.Helper()
	require.LessOrEqual(t, 0, b.readIndex)
	require.LessOrEqual(t, b.readIndex, b.writeIndex)
	require.LessOrEqual(t, b.writeIndex, b.Capacity())
	require.Equal(t, b.writeIndex-b.readIndex, b.ReadableBytes())
}

func TestNewBuffer(t *testing.T) {
	b := New(0)
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, InitialSize, b.WritableBytes())
	assert.Equal(t, CheapPrepend, b.PrependableBytes())
}

func TestAppendRetrieveRoundTrip(t *testing.T) {
	b := New(0)
	payload := strings.Repeat("x", 200) + "tail"
	b.AppendString(payload)
	assert.Equal(t, len(payload), b.ReadableBytes())

	assert.Equal(t, payload, b.RetrieveAllAsString())
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, CheapPrepend, b.PrependableBytes())
}

func TestRetrievePartialAndOverflow(t *testing.T) {
	b := New(0)
	b.Append([]byte("hello world"))

	b.Retrieve(6)
	assert.Equal(t, "world", string(b.Peek()))
	assert.Equal(t, CheapPrepend+6, b.PrependableBytes())

	// consuming at least the readable amount resets both cursors
	b.Retrieve(100)
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, CheapPrepend, b.PrependableBytes())

	b.AppendString("abc")
	b.Retrieve(3)
	assert.Equal(t, CheapPrepend, b.PrependableBytes())
}

func TestRetrieveAsStringClamps(t *testing.T) {
	b := New(0)
	b.AppendString("ping")
	assert.Equal(t, "pi", b.RetrieveAsString(2))
	assert.Equal(t, "ng", b.RetrieveAsString(10))
	assert.Equal(t, "", b.RetrieveAsString(1))
}

func TestPeekDoesNotConsume(t *testing.T) {
	b := New(0)
	b.AppendString("abc")
	assert.Equal(t, []byte("abc"), b.Peek())
	assert.Equal(t, []byte("abc"), b.Peek())
	assert.Equal(t, 3, b.ReadableBytes())
}

func TestEnsureWritableCompactsWithoutGrowing(t *testing.T) {
	b := New(64)
	b.Append(bytes.Repeat([]byte{1}, 60))
	b.Retrieve(50)
	capBefore := b.Capacity()

	// 4 writable + 58 prependable leaves room once compacted
	b.EnsureWritableBytes(40)
	assert.Equal(t, capBefore, b.Capacity())
	assert.Equal(t, CheapPrepend, b.PrependableBytes())
	assert.Equal(t, 10, b.ReadableBytes())
	assert.GreaterOrEqual(t, b.WritableBytes(), 40)
	assert.Equal(t, bytes.Repeat([]byte{1}, 10), b.Peek())
}

func TestEnsureWritableGrows(t *testing.T) {
	b := New(16)
	b.AppendString("0123456789")
	b.EnsureWritableBytes(1000)
	assert.GreaterOrEqual(t, b.WritableBytes(), 1000)
	assert.Equal(t, "0123456789", string(b.Peek()))

	capAfter := b.Capacity()
	for n := 1000; n >= 0; n -= 100 {
		b.EnsureWritableBytes(n)
		assert.Equal(t, capAfter, b.Capacity())
	}
}

func TestPrepend(t *testing.T) {
	b := New(0)
	b.AppendString("body")
	require.NoError(t, b.Prepend([]byte{0, 4}))
	assert.Equal(t, append([]byte{0, 4}, "body"...), b.Peek())
	assert.Error(t, b.Prepend(make([]byte, CheapPrepend)))
}

func TestBeginWriteHasWritten(t *testing.T) {
	b := New(8)
	n := copy(b.BeginWrite(), "abc")
	b.HasWritten(n)
	assert.Equal(t, "abc", b.RetrieveAllAsString())
	assert.Panics(t, func() { b.HasWritten(b.WritableBytes() + 1) })
}

func TestRandomAppendRetrieveInvariants(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	b := New(32)
	var model []byte

	for i := 0; i < 5000; i++ {
		if r.IntN(2) == 0 {
			chunk := make([]byte, r.IntN(300))
			for j := range chunk {
				chunk[j] = byte(r.Uint32())
			}
			b.Append(chunk)
			model = append(model, chunk...)
		} else {
			n := r.IntN(400)
			b.Retrieve(n)
			if n > 0 {
				if n < len(model) {
					model = model[n:]
				} else {
					model = model[:0]
				}
			}
		}
		checkInvariants(t, b)
		require.Equal(t, len(model), b.ReadableBytes())
		require.True(t, bytes.Equal(model, b.Peek()))

		w := r.IntN(2048)
		b.EnsureWritableBytes(w)
		require.GreaterOrEqual(t, b.WritableBytes(), w)
		require.True(t, bytes.Equal(model, b.Peek()))
	}
}
