// Package control implements DaemonController: the local control socket
// that parses textual commands and dispatches them to PeerSource and
// PeerCollection (spec §4.8, §6).
//
// Grounded on daemon/src/control_socket.rs: one Listener, one handler
// goroutine per connection, line-buffered reads, loopback-only
// acceptance for the TCP variant, and "parse failure logs and continues,
// never closes the connection" (the Rust original bails the whole
// connection on a bad line via `?`; spec §7/§8 S6 requires the opposite,
// so this implementation's parse loop deliberately diverges from that one
// detail of the original and keeps the connection open, matching spec
// exactly).
package control

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"

	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/peeraddr"
)

// PeerDialer is the capability dial_peer dispatches to.
type PeerDialer interface {
	DialPeer(ctx context.Context, addr peeraddr.Address) bool
}

// PeerDisconnector is the capability disconnect_peer dispatches to.
type PeerDisconnector interface {
	DisconnectPeer(ctx context.Context, id peeraddr.Identity) bool
}

// Controller listens on a local socket and dispatches parsed commands.
type Controller struct {
	dialer          PeerDialer
	disconnector    PeerDisconnector
	requireLoopback bool
}

// New creates a Controller. requireLoopback should be true for the TCP
// variant (spec §6: "non-loopback clients are dropped immediately") and
// false for Unix-domain listeners, which are local by construction. The
// flag is applied to whatever listener Serve is given; a Unix-domain peer
// address is not an IP address, so with true every such connection is
// dropped.
func New(dialer PeerDialer, disconnector PeerDisconnector, requireLoopback bool) *Controller {
	return &Controller{dialer: dialer, disconnector: disconnector, requireLoopback: requireLoopback}
}

// Serve accepts connections from ln until ctx is cancelled or Accept
// fails fatally.
func (c *Controller) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if c.requireLoopback && !isLoopback(conn.RemoteAddr()) {
			_ = conn.Close()
			continue
		}
		go c.handleConnection(ctx, conn)
	}
}

func isLoopback(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// handleConnection reads line-delimited commands until the client closes
// its write half. A parse failure is logged and the loop continues — the
// connection stays open for the client to retry (spec §4.8, §8 S6).
func (c *Controller) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			c.dispatchLine(ctx, line)
		}
		if err != nil {
			if err != io.EOF {
				dlog.SaveDebugLog("control: connection read error", "err", err)
			}
			return
		}
	}
}

func (c *Controller) dispatchLine(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch strings.ToLower(fields[0]) {
	case "dial_peer":
		if len(fields) < 2 {
			dlog.SaveWarnLog("control: dial_peer missing node ticket")
			return
		}
		addr, err := peeraddr.Parse(peeraddr.NodeTicket(fields[1]))
		if err != nil {
			dlog.SaveWarnLog("control: bad node ticket", "err", err)
			return
		}
		c.dialer.DialPeer(ctx, addr)

	case "disconnect_peer":
		if len(fields) < 2 {
			dlog.SaveWarnLog("control: disconnect_peer missing peer id")
			return
		}
		id, err := peeraddr.ParseIdentity(fields[1])
		if err != nil {
			dlog.SaveWarnLog("control: bad peer id", "err", err)
			return
		}
		c.disconnector.DisconnectPeer(ctx, id)

	case "add_peer":
		// TCP-variant grammar (spec §6): ADD_PEER <peer_address>.
		if len(fields) < 2 {
			dlog.SaveWarnLog("control: add_peer missing peer address")
			return
		}
		addr, err := peeraddr.Parse(peeraddr.NodeTicket(fields[1]))
		if err != nil {
			dlog.SaveWarnLog("control: bad peer address", "err", err)
			return
		}
		c.dialer.DialPeer(ctx, addr)

	case "noop":
		// no-op, per spec §6.

	default:
		dlog.SaveWarnLog("control: unknown command", "command", fields[0])
	}
}
