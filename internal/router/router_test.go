package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechos22/p2ptun/internal/mailbox"
	"github.com/lechos22/p2ptun/internal/packet"
)

func TestFanOutByDirection(t *testing.T) {
	r := New()

	incomingBox := mailbox.New[packet.Packet](4)
	outgoingBox := mailbox.New[packet.Packet](4)
	bothBox := mailbox.New[packet.Packet](4)

	r.AddIncomingReceiver(incomingBox.Sender())
	r.AddOutgoingReceiver(outgoingBox.Sender())
	r.AddReceiver(bothBox.Sender())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Inbox().Send(ctx, packet.New(packet.Incoming, []byte("in")))
	r.Inbox().Send(ctx, packet.New(packet.Outgoing, []byte("out")))

	gotIncoming, ok := incomingBox.Recv(ctx)
	require.True(t, ok)
	assert.Equal(t, packet.Incoming, gotIncoming.Direction)

	gotOutgoing, ok := outgoingBox.Recv(ctx)
	require.True(t, ok)
	assert.Equal(t, packet.Outgoing, gotOutgoing.Direction)

	first, ok := bothBox.Recv(ctx)
	require.True(t, ok)
	second, ok := bothBox.Recv(ctx)
	require.True(t, ok)
	assert.ElementsMatch(t, []packet.Direction{packet.Incoming, packet.Outgoing},
		[]packet.Direction{first.Direction, second.Direction})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("router.Run did not return after context cancellation")
	}
}

func TestAddReceiverAfterRunPanics(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Run(ctx)
	// Give Run a moment to seal; the sealed flag is set synchronously at the
	// top of Run before any blocking receive, so this is racy only in the
	// sense that we must wait for that first statement to execute.
	time.Sleep(10 * time.Millisecond)

	assert.Panics(t, func() {
		r.AddIncomingReceiver(mailbox.New[packet.Packet](1).Sender())
	})
}

func TestRunReturnsContextErrorWhenCancelled(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("router.Run did not return after cancellation")
	}
}
