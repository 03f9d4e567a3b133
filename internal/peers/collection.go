// Package peers implements PeerCollection: the registry of live
// PeerSessions, keyed by peer identity (spec §3, §4.6).
//
// Grounded on src/daemon/actors/peer_collection.rs: one map, one message
// inbox (AddPeer/RemovePeer there, AddPeer/DisconnectPeer/PeerExited
// here per spec §4.6), one packet inbox, sequentialized on a single
// select loop so AddPeer/DisconnectPeer/PeerExited on the same identity
// can never race (spec §4.6 "Concurrency note").
package peers

import (
	"context"
	"fmt"

	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/mailbox"
	"github.com/lechos22/p2ptun/internal/packet"
	"github.com/lechos22/p2ptun/internal/peeraddr"
	"github.com/lechos22/p2ptun/internal/session"
)

// messageKind discriminates the three control messages PeerCollection
// accepts on its message inbox.
type messageKind uint8

const (
	msgAddPeer messageKind = iota
	msgDisconnectPeer
	msgPeerExited
)

type message struct {
	kind     messageKind
	identity peeraddr.Identity
	session  *session.Session
}

// entry is what PeerCollection keeps per live identity: the session's
// inbox (to fan Outgoing packets out to), its cancel handle, and the
// session itself — kept so a PeerExited report can be checked against
// the entry still installed for the identity (see handleMessage).
type entry struct {
	inbox   mailbox.Sender[packet.Packet]
	cancel  func()
	session *session.Session
}

// Collection is PeerCollection. It owns its map exclusively; nothing
// outside the Run loop ever reads or writes it (spec §5).
type Collection struct {
	messages *mailbox.Mailbox[message]
	packets  *mailbox.Mailbox[packet.Packet]
	toRouter mailbox.Sender[packet.Packet]

	peerMap map[peeraddr.Identity]entry
}

// New creates a Collection that forwards Incoming packets to toRouter
// (ordinarily the PacketRouter's inbox).
func New(toRouter mailbox.Sender[packet.Packet]) *Collection {
	return &Collection{
		messages: mailbox.New[message](mailbox.DefaultCapacity),
		packets:  mailbox.New[packet.Packet](mailbox.DefaultCapacity),
		toRouter: toRouter,
		peerMap:  make(map[peeraddr.Identity]entry),
	}
}

// PacketInbox returns the send handle for Outgoing packets from the Tun
// agent (via the router) and Incoming packets from any PeerSession.
func (c *Collection) PacketInbox() mailbox.Sender[packet.Packet] {
	return c.packets.Sender()
}

// SendIncoming implements session.PacketSink: a PeerSession forwards its
// received packets here without needing to know Collection's internals.
func (c *Collection) SendIncoming(ctx context.Context, pkt packet.Packet) bool {
	return c.packets.Sender().Send(ctx, pkt)
}

// AddPeer registers newSession under identity. If an entry already exists
// for identity, the old session is cancelled and replaced — the design's
// "last action wins" rule (spec §4.6, invariant 1 and testable property 5).
func (c *Collection) AddPeer(ctx context.Context, identity peeraddr.Identity, newSession *session.Session) bool {
	msg := message{kind: msgAddPeer, identity: identity, session: newSession}
	return c.messages.Sender().Send(ctx, msg)
}

// DisconnectPeer removes identity's entry, if present, and fires its
// cancel token. A DisconnectPeer for an absent identity is a no-op (spec
// §8 idempotence property).
func (c *Collection) DisconnectPeer(ctx context.Context, identity peeraddr.Identity) bool {
	msg := message{kind: msgDisconnectPeer, identity: identity}
	return c.messages.Sender().Send(ctx, msg)
}

// reportExited tells the message loop that s (the session installed under
// identity when its pumps were spawned) has terminated. s is carried along
// so the loop can tell a stale report — from a session a later AddPeer
// already replaced — apart from a report about the entry currently live.
func (c *Collection) reportExited(ctx context.Context, identity peeraddr.Identity, s *session.Session) {
	msg := message{kind: msgPeerExited, identity: identity, session: s}
	c.messages.Sender().Send(ctx, msg)
}

// Run awaits either inbox, handling one message or one packet per
// iteration, until ctx is cancelled.
func (c *Collection) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.messages.Chan():
			if !ok {
				return ctx.Err()
			}
			c.handleMessage(ctx, msg)
		case pkt, ok := <-c.packets.Chan():
			if !ok {
				return ctx.Err()
			}
			c.handlePacket(ctx, pkt)
		}
	}
}

func (c *Collection) handleMessage(ctx context.Context, msg message) {
	switch msg.kind {
	case msgAddPeer:
		c.addPeer(ctx, msg.identity, msg.session)
	case msgDisconnectPeer:
		c.disconnectPeer(msg.identity)
	case msgPeerExited:
		// Only evict the entry if it still holds the session that
		// reported exiting. A replaced session's stale exit (its old
		// pumps finally unwinding after AddPeer installed a newer
		// session under the same identity) must not evict the
		// replacement (spec §4.6 invariant 1, testable property 5).
		if cur, exists := c.peerMap[msg.identity]; exists && cur.session == msg.session {
			delete(c.peerMap, msg.identity)
		}
	}
}

func (c *Collection) addPeer(ctx context.Context, identity peeraddr.Identity, s *session.Session) {
	if old, exists := c.peerMap[identity]; exists {
		old.cancel()
	}
	c.peerMap[identity] = entry{inbox: s.Inbox(), cancel: s.Cancel, session: s}

	go func() {
		err := s.Run()
		if err != nil {
			dlog.SaveDebugLog("peer session ended with error", "peer", identity.Short(), "err", err)
		}
		dlog.SaveInfoLog(fmt.Sprintf("Disconnected from peer %s", identity))
		c.reportExited(ctx, identity, s)
	}()
}

func (c *Collection) disconnectPeer(identity peeraddr.Identity) {
	if e, exists := c.peerMap[identity]; exists {
		e.cancel()
		delete(c.peerMap, identity)
	}
}

func (c *Collection) handlePacket(ctx context.Context, pkt packet.Packet) {
	switch pkt.Direction {
	case packet.Outgoing:
		for _, e := range c.peerMap {
			if !e.inbox.Send(ctx, pkt.Clone()) {
				dlog.SaveDebugLog("peers: dropped outgoing packet, peer session closed")
			}
		}
	case packet.Incoming:
		if !c.toRouter.Send(ctx, pkt) {
			dlog.SaveDebugLog("peers: dropped incoming packet, router inbox closed")
		}
	}
}
