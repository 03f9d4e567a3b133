// Package peeraddr implements the data model and text codec for peer
// identities and addresses (spec §3, §6), grounded on the original
// source's daemon/src/peer_addr.rs dump_peer_addr/parse_peer_addr pair.
package peeraddr

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Identity is the stable cryptographic public key of a remote node:
// equality-comparable, hashable (as a Go array), and printable as a short
// string.
type Identity [ed25519.PublicKeySize]byte

// IdentityFromPublicKey wraps an Ed25519 public key as an Identity.
func IdentityFromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != ed25519.PublicKeySize {
		return id, fmt.Errorf("peeraddr: public key has wrong length %d", len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// PublicKey returns the underlying Ed25519 public key.
func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

// String renders the canonical key encoding: lowercase hex.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// Short renders an abbreviated form suitable for log lines.
func (id Identity) Short() string {
	s := id.String()
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

// ParseIdentity decodes the canonical hex encoding produced by String.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("peeraddr: bad peer id %q: %w", s, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return id, fmt.Errorf("peeraddr: peer id %q has wrong length %d", s, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Address is (Identity, optional relay region, set of direct socket
// addresses). Equality ignores direct-address ordering; serialization
// order is stable (the order the addresses were parsed or appended in).
type Address struct {
	Identity    Identity
	RelayRegion *uint16
	DirectAddrs []netip.AddrPort
}

// NodeTicket is the self-contained textual encoding of an Address.
type NodeTicket string

// errBadAddress is returned for any unparseable PeerAddress text.
var errBadAddress = errors.New("peeraddr: malformed peer address")

// Serialize renders a in the wire format from spec §6:
//
//	<peer_id>;<relay_region_or_empty>;<direct_addr>;<direct_addr>;...
func Serialize(a Address) NodeTicket {
	var b strings.Builder
	b.WriteString(a.Identity.String())
	b.WriteByte(';')
	if a.RelayRegion != nil {
		b.WriteString(strconv.FormatUint(uint64(*a.RelayRegion), 10))
	}
	for _, addr := range a.DirectAddrs {
		b.WriteByte(';')
		b.WriteString(addr.String())
	}
	return NodeTicket(b.String())
}

// Parse decodes the text format produced by Serialize. Unparseable direct
// addresses are skipped rather than failing the whole ticket; an empty
// direct-address section yields an empty set.
func Parse(ticket NodeTicket) (Address, error) {
	parts := strings.Split(string(ticket), ";")
	if len(parts) < 2 {
		return Address{}, errBadAddress
	}
	id, err := ParseIdentity(parts[0])
	if err != nil {
		return Address{}, err
	}
	addr := Address{Identity: id}
	if parts[1] != "" {
		region, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return Address{}, fmt.Errorf("%w: bad relay region %q", errBadAddress, parts[1])
		}
		r := uint16(region)
		addr.RelayRegion = &r
	}
	for _, raw := range parts[2:] {
		if raw == "" {
			continue
		}
		ap, err := netip.ParseAddrPort(raw)
		if err != nil {
			continue // unparseable direct addresses are skipped, not fatal
		}
		addr.DirectAddrs = append(addr.DirectAddrs, ap)
	}
	return addr, nil
}

// String satisfies fmt.Stringer for NodeTicket.
func (t NodeTicket) String() string { return string(t) }
