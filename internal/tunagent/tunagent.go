// Package tunagent implements the Tun agent: the bridge between the OS TUN
// device and the packet bus (spec §4.4).
//
// Grounded on bt/controller/send.go's RoutineReadFromTUN (pooled read
// buffer, select against a stop signal, zero-length reads skipped, fatal
// I/O errors end the routine) generalized from WireGuard's encrypt/route
// pipeline down to the simpler "wrap one read as one Outgoing packet"
// contract this daemon needs. The device itself is opened with
// github.com/songgao/water, the userspace TUN/TAP library named in the
// pack's leebo-zerogo manifest.
package tunagent

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"

	"github.com/songgao/water"
	"golang.org/x/sync/errgroup"

	"github.com/lechos22/p2ptun/internal/bufpool"
	"github.com/lechos22/p2ptun/internal/dlog"
	"github.com/lechos22/p2ptun/internal/mailbox"
	"github.com/lechos22/p2ptun/internal/packet"
)

// Config mirrors the TUN device contract from spec §6: interface up, an
// optional IPv4 address, an optional IPv4 netmask.
type Config struct {
	Address net.IP
	Netmask net.IPMask
}

// Agent owns the TUN device exclusively: its two pumps (reader, writer)
// are the only code that ever touches it.
type Agent struct {
	iface *water.Interface
	inbox *mailbox.Mailbox[packet.Packet]
	toBus mailbox.Sender[packet.Packet]
}

// New opens the TUN device per cfg and wires it to toBus, the destination
// for Outgoing packets (ordinarily the PacketRouter's inbox).
func New(cfg Config, toBus mailbox.Sender[packet.Packet]) (*Agent, error) {
	iface, err := water.New(water.Config{DeviceType: water.TUN})
	if err != nil {
		return nil, fmt.Errorf("tunagent: open device: %w", err)
	}
	if err := configureInterface(iface.Name(), cfg); err != nil {
		_ = iface.Close()
		return nil, fmt.Errorf("tunagent: configure %s: %w", iface.Name(), err)
	}
	return &Agent{
		iface: iface,
		inbox: mailbox.New[packet.Packet](mailbox.DefaultCapacity),
		toBus: toBus,
	}, nil
}

// Inbox returns the send handle for Incoming packets to be written to the
// device.
func (a *Agent) Inbox() mailbox.Sender[packet.Packet] {
	return a.inbox.Sender()
}

// Run starts both pumps and blocks until either ends or ctx is cancelled.
// A fatal I/O error on either pump ends the agent; the daemon supervisor
// treats that as a sibling exit and initiates shutdown (spec §4.4, §4.9).
func (a *Agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.readLoop(ctx) })
	g.Go(func() error { return a.writeLoop(ctx) })
	err := g.Wait()
	_ = a.iface.Close()
	return err
}

// readLoop is the Reader half: read up to packet.MaxPayload bytes,
// construct Outgoing(bytes), send to the bus.
func (a *Agent) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		buf := bufpool.Get()
		n, err := a.iface.Read(*buf)
		if err != nil {
			bufpool.Put(buf)
			dlog.SaveErrLog("tunagent: fatal read error", "err", err)
			return fmt.Errorf("tunagent: read: %w", err)
		}
		if n == 0 {
			bufpool.Put(buf)
			continue
		}
		payload := make([]byte, n)
		copy(payload, (*buf)[:n])
		bufpool.Put(buf)

		a.toBus.Send(ctx, packet.New(packet.Outgoing, payload))
	}
}

// writeLoop is the Writer half: receive from inbox, write Incoming packets
// to the device. Outgoing packets arriving on this inbox are a protocol
// error and are dropped (spec §4.4).
func (a *Agent) writeLoop(ctx context.Context) error {
	for {
		pkt, ok := a.inbox.Recv(ctx)
		if !ok {
			return ctx.Err()
		}
		if pkt.Direction != packet.Incoming {
			dlog.SaveWarnLog("tunagent: dropped non-Incoming packet on write inbox")
			continue
		}
		if _, err := a.iface.Write(pkt.Payload); err != nil {
			dlog.SaveErrLog("tunagent: fatal write error", "err", err)
			return fmt.Errorf("tunagent: write: %w", err)
		}
	}
}

// configureInterface brings the interface up and assigns the configured
// address/netmask. songgao/water itself only creates the device node; it
// does not assign addresses or bring the link up, so (on the one platform
// this daemon targets for address assignment, Linux) this shells out to
// the "ip" tool the same way most songgao/water consumers do. On other
// platforms this is a deliberate no-op: the operator is expected to
// configure the interface out of band.
func configureInterface(name string, cfg Config) error {
	if runtime.GOOS != "linux" {
		dlog.SaveWarnLog("tunagent: automatic interface configuration only implemented for linux", "goos", runtime.GOOS)
		return nil
	}
	if cfg.Address != nil && cfg.Netmask != nil {
		ones, _ := cfg.Netmask.Size()
		cidr := fmt.Sprintf("%s/%d", cfg.Address.String(), ones)
		if err := run("ip", "addr", "add", cidr, "dev", name); err != nil {
			return err
		}
	}
	return run("ip", "link", "set", "dev", name, "up")
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w (%s)", name, args, err, out)
	}
	return nil
}
