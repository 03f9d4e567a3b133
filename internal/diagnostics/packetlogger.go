// Package diagnostics implements PacketLogger, the single-inbox observer
// that records every packet passing through the router (spec §4.3),
// grounded on src/daemon/actors/packet_logger.rs.
package diagnostics

import (
	"context"

	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/mailbox"
	"github.com/lechos22/p2ptun/internal/packet"
)

// PacketLogger receives a clone of every packet the router sees and emits
// one diagnostic line per packet. It never produces packets of its own.
type PacketLogger struct {
	inbox *mailbox.Mailbox[packet.Packet]
}

// New creates a PacketLogger with the default inbox capacity.
func New() *PacketLogger {
	return &PacketLogger{inbox: mailbox.New[packet.Packet](mailbox.DefaultCapacity)}
}

// Inbox returns the send handle the router registers for both directions.
func (l *PacketLogger) Inbox() mailbox.Sender[packet.Packet] {
	return l.inbox.Sender()
}

// Run receives and logs packets until ctx is cancelled or the inbox closes.
func (l *PacketLogger) Run(ctx context.Context) error {
	for {
		pkt, ok := l.inbox.Recv(ctx)
		if !ok {
			return ctx.Err()
		}
		dlog.SaveInfoLog(pkt.Direction.String(), "len", len(pkt.Payload))
	}
}
