// Package router implements PacketRouter: the central bus that receives
// packets from producers and fans them out by direction to every
// registered receiver.
//
// Grounded on src/daemon/actors/packet_router.rs (registration list +
// fan-out loop) and on the teacher's addToOutboundQueue/addToEncryptionQueue
// "never block the producer forever, drop the slow consumer" idiom from
// bt/controller/send.go — here realized as a bounded Mailbox send that is
// allowed to apply backpressure (per spec §4.1) rather than drop.
package router

import (
	"context"
	"sync"

	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/mailbox"
	"github.com/lechos22/p2ptun/internal/packet"
)

// Router owns two immutable-after-start receiver lists, one per
// packet.Direction. Registration must complete before Run is called: the
// design explicitly forbids dynamic subscription after the main loop
// begins (spec §4.2).
type Router struct {
	inbox *mailbox.Mailbox[packet.Packet]

	mu                sync.Mutex
	sealed            bool
	incomingReceivers []mailbox.Sender[packet.Packet]
	outgoingReceivers []mailbox.Sender[packet.Packet]
}

// New creates an unsealed Router ready for receiver registration.
func New() *Router {
	return &Router{inbox: mailbox.New[packet.Packet](mailbox.DefaultCapacity)}
}

// Inbox returns the send handle producers (Tun agent, PeerCollection) use
// to feed the router.
func (r *Router) Inbox() mailbox.Sender[packet.Packet] {
	return r.inbox.Sender()
}

// AddIncomingReceiver registers a receiver of Incoming packets (e.g. the
// Tun agent, the PacketLogger). Must be called before Run.
func (r *Router) AddIncomingReceiver(s mailbox.Sender[packet.Packet]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic("router: AddIncomingReceiver called after Run")
	}
	r.incomingReceivers = append(r.incomingReceivers, s)
}

// AddOutgoingReceiver registers a receiver of Outgoing packets (e.g. the
// PacketLogger). Must be called before Run.
func (r *Router) AddOutgoingReceiver(s mailbox.Sender[packet.Packet]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic("router: AddOutgoingReceiver called after Run")
	}
	r.outgoingReceivers = append(r.outgoingReceivers, s)
}

// AddReceiver registers a receiver for both directions — the common case
// for PacketLogger, which observes every packet.
func (r *Router) AddReceiver(s mailbox.Sender[packet.Packet]) {
	r.AddIncomingReceiver(s)
	r.AddOutgoingReceiver(s)
}

// Run seals registration and dequeues packets until ctx is cancelled or the
// inbox is closed. For each packet it sends a clone to every receiver
// registered for its direction, in the order of the router's own dequeue
// (no cross-receiver ordering is promised).
func (r *Router) Run(ctx context.Context) error {
	r.mu.Lock()
	r.sealed = true
	incoming := append([]mailbox.Sender[packet.Packet](nil), r.incomingReceivers...)
	outgoing := append([]mailbox.Sender[packet.Packet](nil), r.outgoingReceivers...)
	r.mu.Unlock()

	for {
		pkt, ok := r.inbox.Recv(ctx)
		if !ok {
			return ctx.Err()
		}
		var receivers []mailbox.Sender[packet.Packet]
		if pkt.Direction == packet.Incoming {
			receivers = incoming
		} else {
			receivers = outgoing
		}
		for _, recv := range receivers {
			// A blocking Send here is the backpressure mechanism (spec
			// §4.1): a slow receiver suspends the router, which in turn
			// suspends whichever producer is filling the router's inbox.
			// A closed receiver's send is recovered by Sender.Send and
			// simply reported, never treated as fatal to the router.
			if !recv.Send(ctx, pkt.Clone()) {
				dlog.SaveDebugLog("router: dropped packet, receiver inbox closed or context done", "direction", pkt.Direction.String())
			}
		}
	}
}
