package peers

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechos22/p2ptun/internal/mailbox"
	"github.com/lechos22/p2ptun/internal/packet"
	"github.com/lechos22/p2ptun/internal/peeraddr"
	"github.com/lechos22/p2ptun/internal/session"
)

func newTestSession(t *testing.T, ctx context.Context, id peeraddr.Identity, sink session.PacketSink) (*session.Session, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })
	return session.New(ctx, id, local, local, sink), remote
}

func identityN(n byte) peeraddr.Identity {
	var id peeraddr.Identity
	id[0] = n
	return id
}

func TestAddPeerReplacesExistingSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := mailbox.New[packet.Packet](4)
	c := New(router.Sender())
	go c.Run(ctx)

	id := identityN(1)
	s1, remote1 := newTestSession(t, ctx, id, c)
	c.AddPeer(ctx, id, s1)

	// Give the Run loop time to register s1 and spawn its goroutine.
	time.Sleep(20 * time.Millisecond)

	s2, remote2 := newTestSession(t, ctx, id, c)
	c.AddPeer(ctx, id, s2)
	time.Sleep(20 * time.Millisecond)

	// s1 must have been cancelled: its remote side observes EOF/closed pipe
	// within bounded time because s1.Run tears down on replacement (spec
	// testable property 5). The deadline only bounds the wait: a deadline
	// timeout is not io.EOF, so the assertion fails if cancellation never
	// closed s1's end of the pipe.
	remote1.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 1)
	_, err := remote1.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	// A stale PeerExited report from s1 (its pumps finally unwinding after
	// the replacement above) must not evict s2's entry (spec §4.6
	// invariant 1, testable property 5). Give it time to arrive and be
	// processed before checking s2 is still reachable.
	time.Sleep(50 * time.Millisecond)

	// s2 is still live: an Outgoing packet reaches remote2.
	c.PacketInbox().Send(ctx, packet.New(packet.Outgoing, []byte("x")))
	remote2.SetReadDeadline(time.Now().Add(time.Second))
	n, err := remote2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf[:n]))
}

func TestDisconnectPeerIsIdempotentForAbsentIdentity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := mailbox.New[packet.Packet](4)
	c := New(router.Sender())
	go c.Run(ctx)

	ok := c.DisconnectPeer(ctx, identityN(42))
	assert.True(t, ok) // message was accepted, even though no entry existed

	time.Sleep(10 * time.Millisecond) // Run loop processes without panicking
}

func TestIncomingPacketForwardedToRouter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := mailbox.New[packet.Packet](4)
	c := New(router.Sender())
	go c.Run(ctx)

	c.PacketInbox().Send(ctx, packet.New(packet.Incoming, []byte("y")))

	pkt, ok := router.Recv(ctx)
	require.True(t, ok)
	assert.Equal(t, packet.Incoming, pkt.Direction)
	assert.Equal(t, []byte("y"), pkt.Payload)
}
