package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytePoolSize(t *testing.T) {
	bp := NewBytePool(64 * 1024)
	buf := bp.GetBuffer()
	assert.Len(t, *buf, 64*1024)
	bp.PutBuffer(buf)

	again := bp.GetBuffer()
	assert.Len(t, *again, bp.Size())
}

func TestBytePoolDropsForeignBuffers(t *testing.T) {
	bp := NewBytePool(16)
	short := make([]byte, 8)
	bp.PutBuffer(&short)
	bp.PutBuffer(nil)
	assert.Len(t, *bp.GetBuffer(), 16)
}
