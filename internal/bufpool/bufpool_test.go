package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsFullSizeBuffer(t *testing.T) {
	buf := Get()
	assert.Len(t, *buf, Size)
	Put(buf)
}

func TestPutResetsLengthBeforeReuse(t *testing.T) {
	buf := Get()
	*buf = (*buf)[:10] // simulate a short read truncating the slice
	Put(buf)

	reused := Get()
	assert.Len(t, *reused, Size)
	Put(reused)
}
