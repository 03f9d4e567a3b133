// Package daemon is the supervisor: it creates every agent in dependency
// order (leaves first), registers all static PacketRouter subscriptions
// before spawning it, spawns every agent as a sibling, and awaits the
// first of "an agent exited" or "shutdown requested" (spec §4.9).
//
// Grounded on the teacher's top-level process shape — bt/controller's
// device spawns one goroutine per Routine* method and treats any one of
// them returning as fatal to the whole device — generalized here with
// golang.org/x/sync/errgroup, which gives the same "first error cancels
// every sibling" semantics without hand-rolled signal channels.
package daemon

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/lechos22/p2ptun/internal/config"
	"github.com/lechos22/p2ptun/internal/control"
	"github.com/lechos22/p2ptun/internal/diagnostics"
	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/peers"
	"github.com/lechos22/p2ptun/internal/relay"
	"github.com/lechos22/p2ptun/internal/router"
	"github.com/lechos22/p2ptun/internal/transport"
	"github.com/lechos22/p2ptun/internal/tunagent"
)

// Options configures the daemon's control socket and bootstrap relay set.
// ControlListener must be set: Run calls it to bind the control socket and
// has no built-in default.
type Options struct {
	ControlListener func() (net.Listener, bool, error) // returns listener, requireLoopback, error
	RelayRegions    []relay.Region
}

// Run wires every component, spawns them as siblings, and blocks until one
// exits unexpectedly or ctx is cancelled (e.g. by an interrupt signal).
// A nil error on cancellation is a clean shutdown (spec §7 "Agent death").
func Run(parentCtx context.Context, cfg config.Daemon, opts Options) error {
	ctx := parentCtx
	rtr := router.New()
	logger := diagnostics.New()
	rtr.AddReceiver(logger.Inbox())

	pcol := peers.New(rtr.Inbox())
	rtr.AddOutgoingReceiver(pcol.PacketInbox())

	tun, err := tunagent.New(tunagent.Config{Address: cfg.IPAddr, Netmask: cfg.Netmask}, rtr.Inbox())
	if err != nil {
		return fmt.Errorf("daemon: fatal, cannot bind TUN: %w", err)
	}
	rtr.AddIncomingReceiver(tun.Inbox())

	src, err := transport.New(ctx, transport.Options{
		SecretKey:    cfg.SecretKey,
		RelayRegions: opts.RelayRegions,
	}, pcol, pcol)
	if err != nil {
		return fmt.Errorf("daemon: fatal, cannot bind transport endpoint: %w", err)
	}

	ticket := src.NodeTicket()
	fmt.Println(ticket.String())
	dlog.SaveInfoLog("daemon ready", "ticket", ticket.String())

	ln, requireLoopback, err := opts.ControlListener()
	if err != nil {
		return fmt.Errorf("daemon: fatal, cannot bind control socket: %w", err)
	}
	ctrl := control.New(src, pcol, requireLoopback)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rtr.Run(gctx) })
	g.Go(func() error { return logger.Run(gctx) })
	g.Go(func() error { return pcol.Run(gctx) })
	g.Go(func() error { return tun.Run(gctx) })
	g.Go(func() error { return src.Run(gctx) })
	g.Go(func() error { return ctrl.Serve(gctx, ln) })

	err = g.Wait()
	if parentCtx.Err() != nil {
		// The process received an interrupt: every agent was cancelled
		// because the parent context closed, not because one of them
		// died unexpectedly. Per spec §4.9, that is a clean shutdown.
		return nil
	}
	return err
}
