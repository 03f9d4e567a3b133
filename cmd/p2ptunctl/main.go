// Command p2ptunctl is the thin control client (spec §6 CLI surface),
// grounded on cli/src/main.rs's add_peer shape — connect, write one line,
// disconnect — rebuilt on github.com/spf13/cobra for argument parsing.
package main

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
)

const unixSocketPath = "/var/run/p2ptun.sock"
const tcpFallbackAddr = "127.0.0.1:2233"

func main() {
	root := &cobra.Command{
		Use:   "p2ptunctl",
		Short: "control client for the p2ptun daemon",
	}
	root.AddCommand(dialPeerCmd(), disconnectPeerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dialPeerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dial-peer <node_ticket>",
		Short: "connect to the daemon and dial a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendLine(fmt.Sprintf("dial_peer %s\n", args[0]))
		},
	}
}

func disconnectPeerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect-peer <peer_id>",
		Short: "connect to the daemon and disconnect a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendLine(fmt.Sprintf("disconnect_peer %s\n", args[0]))
		},
	}
}

func sendLine(line string) error {
	conn, err := dialDaemon()
	if err != nil {
		return fmt.Errorf("p2ptunctl: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("p2ptunctl: write: %w", err)
	}
	return nil
}

func dialDaemon() (net.Conn, error) {
	if runtime.GOOS == "windows" {
		return net.DialTimeout("tcp", tcpFallbackAddr, 5*time.Second)
	}
	return net.DialTimeout("unix", unixSocketPath, 5*time.Second)
}
