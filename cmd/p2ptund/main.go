// Command p2ptund is the daemon front-end: argument parsing and process
// wiring only (spec §1 names the CLI front-end an external collaborator).
// Grounded on daemon/src/main.rs's startup sequence, rebuilt around
// github.com/spf13/cobra, the CLI library named in the pack's
// blacktrace-protocol-blacktrace manifest.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lechos22/p2ptun/internal/config"
	"github.com/lechos22/p2ptun/internal/daemon"
	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/relay"
)

// unixSocketPath is the conventional Unix control-socket location (spec §6).
const unixSocketPath = "/var/run/p2ptun.sock"

// tcpFallbackAddr is the loopback-only TCP control address used on
// platforms without Unix-domain sockets. It binds the IPv4 loopback
// address on port 2233; the IPv6 loopback address is not bound.
const tcpFallbackAddr = "127.0.0.1:2233"

func main() {
	root := &cobra.Command{
		Use:   "p2ptund",
		Short: "p2ptun daemon",
	}
	root.AddCommand(daemonCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		dlog.SaveErrLog("p2ptund: fatal", "err", err)
		os.Exit(1)
	}
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func runDaemon(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("p2ptund: %w", err)
	}

	opts := daemon.Options{
		ControlListener: controlListener,
		// No relay infrastructure is bundled with this daemon (spec §1:
		// bootstrap relay directory is an external collaborator); an
		// empty region list means PeerSource skips the relay wait and
		// advertises direct addresses only.
		RelayRegions: []relay.Region{},
	}

	err = daemon.Run(ctx, cfg, opts)
	if err != nil {
		os.Exit(1)
	}
	return nil
}

// controlListener binds the platform-appropriate control socket (spec §6).
func controlListener() (net.Listener, bool, error) {
	if runtime.GOOS == "windows" {
		// Named pipes require a third-party package this pack does not
		// carry (e.g. Microsoft/go-winio); the loopback TCP variant from
		// spec §6 is used instead on Windows.
		ln, err := net.Listen("tcp", tcpFallbackAddr)
		return ln, true, err
	}
	_ = os.Remove(unixSocketPath)
	ln, err := net.Listen("unix", unixSocketPath)
	return ln, false, err
}
