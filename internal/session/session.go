// Package session implements PeerSession: the per-peer bidirectional pump
// (spec §3 "PeerSession state", §4.5).
//
// Grounded on bt/controller/send.go's RoutineSequentialSender (dequeue →
// write to the peer's transport, terminate the routine on write failure)
// and RoutineReadFromTUN's read-then-tag shape, here applied to a single
// peer's bidirectional stream instead of the TUN device. The original
// source's src/daemon/actors/peer.rs stub (two todo!() pumps sharing one
// cancellation) is the direct model for the termination contract.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lechos22/p2ptun/internal/bufpool"
	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/mailbox"
	"github.com/lechos22/p2ptun/internal/packet"
	"github.com/lechos22/p2ptun/internal/peeraddr"
)

// SendStream is the write half of a peer's bidirectional byte stream.
type SendStream interface {
	io.Writer
	Close() error
}

// RecvStream is the read half of a peer's bidirectional byte stream.
type RecvStream interface {
	io.Reader
}

// readDeadliner is the optional capability a RecvStream may satisfy to
// let cancellation interrupt a blocked Read. Both quic.Stream and the
// net.Conn halves net.Pipe hands out in tests satisfy it; a RecvStream
// that doesn't is left to unblock on its own (remote close or error).
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// interruptRead unblocks a pending Read on r, if r supports read
// deadlines, by moving the deadline into the past. RecvStream has no
// context of its own (spec §4.5 names no such hook), so this is the
// mechanism recvPump's cancellation relies on instead.
func interruptRead(r RecvStream) {
	if d, ok := r.(readDeadliner); ok {
		_ = d.SetReadDeadline(time.Now())
	}
}

// PacketSink is the "send(Packet)" capability (spec §9): PeerCollection
// satisfies this for a PeerSession's Incoming packets without the session
// needing to know PeerCollection's concrete type.
type PacketSink interface {
	SendIncoming(ctx context.Context, pkt packet.Packet) bool
}

// Framing is a deliberate deviation call-out (spec §4.5, §9): the
// underlying transport is a byte stream, not a message stream, so one
// Read does not strictly correspond to one packet sent by the peer under
// fragmentation or coalescing. This implementation accepts that, matching
// the source's documented-buggy-under-fragmentation behavior, rather than
// adding a length prefix. MTU-sized datagrams over a single QUIC stream
// in practice arrive as one Read per Write for this daemon's traffic
// pattern, but a correctness-focused port should add a 2-byte
// length-prefix here.

// Session is one live peer connection: the pair of pumps plus the inbox
// for Outgoing packets to ship to the peer.
type Session struct {
	Identity peeraddr.Identity

	send SendStream
	recv RecvStream
	sink PacketSink

	inbox *mailbox.Mailbox[packet.Packet]

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Session. The cancel handle aborts both pumps; a single
// termination is reported to the caller through Run's return value, not via
// a side-channel message — PeerCollection calls Run in its own goroutine
// and acts on its return.
func New(parent context.Context, id peeraddr.Identity, send SendStream, recv RecvStream, sink PacketSink) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		Identity: id,
		send:     send,
		recv:     recv,
		sink:     sink,
		inbox:    mailbox.New[packet.Packet](mailbox.DefaultCapacity),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Inbox returns the send handle for Outgoing packets PeerCollection
// enqueues to ship to this peer.
func (s *Session) Inbox() mailbox.Sender[packet.Packet] {
	return s.inbox.Sender()
}

// Cancel fires the shared cancel token; both pumps stop at their next
// suspension point (spec §5 "Cancellation").
func (s *Session) Cancel() {
	s.cancel()
}

// Run starts the recv and send pumps and blocks until either terminates —
// by stream error, remote close, or cancellation — then cancels the other
// and returns the terminating error (nil on ordinary cancellation).
func (s *Session) Run() error {
	defer s.cancel()

	// recvPump's blocking Read has no context of its own; wake it the
	// moment cancellation fires (from the other pump's error, an
	// explicit DisconnectPeer, or AddPeer replacing this session) so
	// both pumps actually stop within bounded time (spec §4.5, §5).
	go func() {
		<-s.ctx.Done()
		interruptRead(s.recv)
	}()

	errc := make(chan error, 2)
	go func() { errc <- s.recvPump() }()
	go func() { errc <- s.sendPump() }()

	err := <-errc
	s.cancel()
	interruptRead(s.recv)
	<-errc // wait for the other pump to observe cancellation and exit

	// Both pumps are now stopped; release the underlying stream. send and
	// recv are one bidirectional stream under the design's chosen open
	// question decision (spec §9), so closing send's half is sufficient.
	_ = s.send.Close()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// recvPump repeatedly reads a frame from the peer and forwards it to sink
// as Incoming. End-of-stream or a read error terminates the session.
func (s *Session) recvPump() error {
	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		buf := bufpool.Get()
		n, err := s.recv.Read(*buf)
		if err != nil {
			bufpool.Put(buf)
			if s.ctx.Err() != nil {
				// The read was interrupted by interruptRead following
				// cancellation, not a genuine stream error.
				return s.ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("session: recv: %w", err)
		}
		if n == 0 {
			bufpool.Put(buf)
			continue
		}
		payload := make([]byte, n)
		copy(payload, (*buf)[:n])
		bufpool.Put(buf)

		s.sink.SendIncoming(s.ctx, packet.New(packet.Incoming, payload))
	}
}

// sendPump dequeues Outgoing packets from the inbox and writes their full
// payload to the peer stream. A write failure terminates the session.
func (s *Session) sendPump() error {
	for {
		pkt, ok := s.inbox.Recv(s.ctx)
		if !ok {
			return s.ctx.Err()
		}
		if pkt.Direction != packet.Outgoing {
			dlog.SaveWarnLog("session: dropped non-Outgoing packet on send inbox", "peer", s.Identity.Short())
			continue
		}
		if _, err := s.send.Write(pkt.Payload); err != nil {
			return fmt.Errorf("session: send: %w", err)
		}
	}
}
