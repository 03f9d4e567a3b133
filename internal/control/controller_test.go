package control

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechos22/p2ptun/internal/peeraddr"
)

type fakeDialer struct {
	dialed []peeraddr.Address
}

func (f *fakeDialer) DialPeer(ctx context.Context, addr peeraddr.Address) bool {
	f.dialed = append(f.dialed, addr)
	return true
}

type fakeDisconnector struct {
	disconnected []peeraddr.Identity
}

func (f *fakeDisconnector) DisconnectPeer(ctx context.Context, id peeraddr.Identity) bool {
	f.disconnected = append(f.disconnected, id)
	return true
}

func testIdentity() peeraddr.Identity {
	var id peeraddr.Identity
	for i := range id {
		id[i] = byte(i)
	}
	return id
}

func TestDispatchLineDialPeer(t *testing.T) {
	dialer := &fakeDialer{}
	disc := &fakeDisconnector{}
	c := New(dialer, disc, false)

	id := testIdentity()
	ticket := peeraddr.Serialize(peeraddr.Address{Identity: id})

	c.dispatchLine(context.Background(), "dial_peer "+ticket.String()+"\n")

	require.Len(t, dialer.dialed, 1)
	assert.Equal(t, id, dialer.dialed[0].Identity)
}

func TestDispatchLineDisconnectPeer(t *testing.T) {
	dialer := &fakeDialer{}
	disc := &fakeDisconnector{}
	c := New(dialer, disc, false)

	id := testIdentity()
	c.dispatchLine(context.Background(), "disconnect_peer "+id.String()+"\n")

	require.Len(t, disc.disconnected, 1)
	assert.Equal(t, id, disc.disconnected[0])
}

func TestDispatchLineUnknownCommandDoesNotPanic(t *testing.T) {
	dialer := &fakeDialer{}
	disc := &fakeDisconnector{}
	c := New(dialer, disc, false)

	assert.NotPanics(t, func() {
		c.dispatchLine(context.Background(), "frobnicate nonsense\n")
	})
	assert.Empty(t, dialer.dialed)
	assert.Empty(t, disc.disconnected)
}

func TestDispatchLineMalformedTicketIsIgnored(t *testing.T) {
	dialer := &fakeDialer{}
	disc := &fakeDisconnector{}
	c := New(dialer, disc, false)

	c.dispatchLine(context.Background(), "dial_peer not-a-ticket\n")
	assert.Empty(t, dialer.dialed)
}

func TestDispatchLineNoopIsSilent(t *testing.T) {
	dialer := &fakeDialer{}
	disc := &fakeDisconnector{}
	c := New(dialer, disc, false)

	assert.NotPanics(t, func() {
		c.dispatchLine(context.Background(), "noop\n")
	})
}

func TestServeAcceptsLoopbackWhenRequired(t *testing.T) {
	dialer := &fakeDialer{}
	disc := &fakeDisconnector{}
	c := New(dialer, disc, true)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go c.Serve(ctx, ln)
	defer cancel()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Loopback dials are accepted: requireLoopback only rejects non-loopback
	// remote addresses, and a 127.0.0.1 dial to a 127.0.0.1 listener stays
	// open, so a line sent here must be dispatched rather than the
	// connection being closed immediately.
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err = conn.Write([]byte("noop\n"))
	assert.NoError(t, err)
}

func TestIsLoopback(t *testing.T) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:1234")
	require.NoError(t, err)
	assert.True(t, isLoopback(addr))

	addr2, err := net.ResolveTCPAddr("tcp", "93.184.216.34:80")
	require.NoError(t, err)
	assert.False(t, isLoopback(addr2))
}
