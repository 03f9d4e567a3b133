package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecvOrdering(t *testing.T) {
	mb := New[int](4)
	sender := mb.Sender()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.True(t, sender.Send(ctx, i))
	}

	for i := 0; i < 4; i++ {
		got, ok := mb.Recv(ctx)
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
}

func TestDefaultCapacityOnNonPositive(t *testing.T) {
	mb := New[int](0)
	assert.Equal(t, DefaultCapacity, cap(mb.ch))

	mb2 := New[int](-3)
	assert.Equal(t, DefaultCapacity, cap(mb2.ch))
}

func TestSendBlocksWhenFullUntilContextDone(t *testing.T) {
	mb := New[int](1)
	sender := mb.Sender()
	ctx := context.Background()

	require.True(t, sender.Send(ctx, 1)) // fills the single slot

	blockedCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	sent := sender.Send(blockedCtx, 2)
	assert.False(t, sent)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestTrySendNonBlocking(t *testing.T) {
	mb := New[int](1)
	sender := mb.Sender()

	assert.True(t, sender.TrySend(1))
	assert.False(t, sender.TrySend(2)) // full, must not block
}

func TestSendToClosedMailboxIsRecoveredAsDrop(t *testing.T) {
	mb := New[int](1)
	sender := mb.Sender()
	mb.Close()

	assert.NotPanics(t, func() {
		sent := sender.Send(context.Background(), 1)
		assert.False(t, sent)
	})
}

func TestRecvOnClosedDrainedMailboxReturnsFalse(t *testing.T) {
	mb := New[int](1)
	mb.Close()

	_, ok := mb.Recv(context.Background())
	assert.False(t, ok)
}

func TestRecvRespectsContextCancellation(t *testing.T) {
	mb := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := mb.Recv(ctx)
	assert.False(t, ok)
}
