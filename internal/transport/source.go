// Package transport implements PeerSource: it binds the transport
// endpoint, accepts inbound connections, honors DialPeer commands, and
// hands freshly built PeerSessions to PeerCollection (spec §4.7).
//
// Grounded directly on src/daemon/actors/peer_source.rs: the same
// construction sequence (bind endpoint → wait for a relay → ready to
// advertise a ticket), the same two concurrent loops (accept, dial), and
// the same "spawn a task per dial, extract identity from the peer's
// certificate, hand off AddPeer" shape. Where the Rust original used
// iroh-net's MagicEndpoint, this binds directly to
// github.com/quic-go/quic-go's Transport, the QUIC implementation named
// in the pack's blacktrace-protocol-blacktrace, leebo-zerogo, and
// petervdpas-goop2 manifests.
package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"

	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/mailbox"
	"github.com/lechos22/p2ptun/internal/peeraddr"
	"github.com/lechos22/p2ptun/internal/relay"
	"github.com/lechos22/p2ptun/internal/session"
)

// PeerAdder is the capability PeerSource needs from PeerCollection: add a
// freshly constructed session under an identity (spec §4.6 AddPeer).
type PeerAdder interface {
	AddPeer(ctx context.Context, identity peeraddr.Identity, s *session.Session) bool
}

// Source is PeerSource. Its message inbox carries the one command the
// design names: DialPeer.
type Source struct {
	identity  peeraddr.Identity
	tlsConf   *tls.Config
	transport *quic.Transport
	listener  *quic.Listener
	peers     PeerAdder
	sink      session.PacketSink

	dials *mailbox.Mailbox[peeraddr.Address]

	myRelay *relay.Region
}

// Options configures the endpoint bind and the relay regions polled while
// bootstrapping.
type Options struct {
	SecretKey    ed25519.PrivateKey
	BindAddr     string // "" or ":0" for an OS-chosen port
	RelayRegions []relay.Region
}

// New binds the endpoint, waits for at least one relay region to answer
// (spec §4.7 step 2) when opts.RelayRegions is non-empty (with none
// configured the wait is skipped), and returns a Source ready to accept
// and dial. peers
// is where successfully handshaked sessions are registered; sink is where
// every session forwards its Incoming packets (ordinarily the same
// PeerCollection).
func New(ctx context.Context, opts Options, peers PeerAdder, sink session.PacketSink) (*Source, error) {
	id, err := peeraddr.IdentityFromPublicKey(opts.SecretKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	tlsConf, err := tlsConfig(opts.SecretKey)
	if err != nil {
		return nil, err
	}

	bindAddr := opts.BindAddr
	if bindAddr == "" {
		bindAddr = ":0"
	}
	udpAddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve bind addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind udp: %w", err)
	}
	qt := &quic.Transport{Conn: conn}
	ln, err := qt.Listen(tlsConf, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: listen: %w", err)
	}

	src := &Source{
		identity:  id,
		tlsConf:   tlsConf,
		transport: qt,
		listener:  ln,
		peers:     peers,
		sink:      sink,
		dials:     mailbox.New[peeraddr.Address](mailbox.DefaultCapacity),
	}

	if len(opts.RelayRegions) > 0 {
		prober, err := relay.NewProber()
		if err != nil {
			return nil, err
		}
		region, err := prober.AwaitAny(ctx, opts.RelayRegions)
		if err != nil {
			return nil, err
		}
		src.myRelay = &region
	}

	return src, nil
}

// Inbox returns the send handle for DialPeer commands.
func (s *Source) Inbox() mailbox.Sender[peeraddr.Address] {
	return s.dials.Sender()
}

// DialPeer implements control.PeerDialer: it enqueues a DialPeer command
// (spec §4.7) rather than dialing synchronously, so a slow or unreachable
// peer never blocks the control connection that requested it.
func (s *Source) DialPeer(ctx context.Context, addr peeraddr.Address) bool {
	return s.dials.Sender().Send(ctx, addr)
}

// NodeTicket publishes this source's own PeerAddress (spec §4.7 step 3).
// Only meaningful once bootstrap has reached Ready; callers are expected
// to call this after New returns successfully.
func (s *Source) NodeTicket() peeraddr.NodeTicket {
	addr := peeraddr.Address{Identity: s.identity}
	if s.myRelay != nil {
		region := s.myRelay.ID
		addr.RelayRegion = &region
	}
	if local, ok := s.transport.Conn.LocalAddr().(*net.UDPAddr); ok {
		if ap := local.AddrPort(); ap.IsValid() {
			addr.DirectAddrs = append(addr.DirectAddrs, netip.AddrPortFrom(ap.Addr(), ap.Port()))
		}
	}
	return peeraddr.Serialize(addr)
}

// Run starts the accept loop and the dial-command loop, returning when
// either ends or ctx is cancelled.
func (s *Source) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ctx) })
	g.Go(func() error { return s.dialLoop(ctx) })
	return g.Wait()
}

func (s *Source) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			dlog.SaveDebugLog("transport: accept failed", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn, true)
	}
}

func (s *Source) dialLoop(ctx context.Context) error {
	for {
		addr, ok := s.dials.Recv(ctx)
		if !ok {
			return ctx.Err()
		}
		go s.dialPeer(ctx, addr)
	}
}

// dialPeer tries the peer's direct addresses in order (spec §4.7),
// connecting with ALPN p2ptun, until one connects. Dial failures are
// logged and discarded: the session simply never appears in PeerCollection.
func (s *Source) dialPeer(ctx context.Context, addr peeraddr.Address) {
	if len(addr.DirectAddrs) == 0 {
		dlog.SaveErrLog("transport: dial failed, no direct addresses", "peer", addr.Identity.Short())
		return
	}
	var conn quic.Connection
	var err error
	for _, ap := range addr.DirectAddrs {
		conn, err = s.transport.Dial(ctx, net.UDPAddrFromAddrPort(ap), s.tlsConf, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		dlog.SaveErrLog("transport: dial failed", "peer", addr.Identity.Short(), "err", err)
		return
	}
	s.handleConnection(ctx, conn, false)
}

// handleConnection extracts the remote's PeerIdentity from its
// certificate and opens the bidirectional stream per the channel-side
// rule (spec §4.7): the accepting side awaits the peer's stream open, the
// dialing side initiates it.
func (s *Source) handleConnection(ctx context.Context, conn quic.Connection, accepting bool) {
	state := conn.ConnectionState()
	identity, err := peerIdentityFromCert(state.TLS.PeerCertificates)
	if err != nil {
		dlog.SaveErrLog("transport: couldn't retrieve peer's certificate", "err", err)
		_ = conn.CloseWithError(0, "bad certificate")
		return
	}

	var stream quic.Stream
	if accepting {
		stream, err = conn.AcceptStream(ctx)
	} else {
		stream, err = conn.OpenStreamSync(ctx)
	}
	if err != nil {
		dlog.SaveErrLog("transport: stream open failed", "peer", identity.Short(), "err", err)
		_ = conn.CloseWithError(0, "stream open failed")
		return
	}

	dlog.SaveInfoLog(fmt.Sprintf("Connected to %s", identity))
	sess := session.New(ctx, identity, stream, stream, s.sink)
	if !s.peers.AddPeer(ctx, identity, sess) {
		dlog.SaveDebugLog("transport: AddPeer dropped, PeerCollection inbox closed", "peer", identity.Short())
	}
}
