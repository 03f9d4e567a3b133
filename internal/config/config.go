// Package config resolves the daemon's environment-variable contract
// (spec §6), grounded on daemon/src/main.rs's match-on-env-var-or-default
// shape: each variable is parsed if present, and a malformed value logs a
// warning and falls back to the documented default rather than failing
// startup (spec §7 "Configuration errors").
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"net"
	"os"

	"github.com/lechos22/p2ptun/internal/dlog"
)

// Defaults match spec §6 and the original source's application.rs.
var (
	defaultIPAddr  = net.IPv4(10, 0, 0, 1)
	defaultNetmask = net.IPv4Mask(255, 0, 0, 0)
)

// Daemon is the resolved set of startup parameters.
type Daemon struct {
	SecretKey ed25519.PrivateKey
	IPAddr    net.IP
	Netmask   net.IPMask
}

// Load resolves P2PTUN_SECRET_KEY, P2PTUN_IP_ADDR / TUN_ADDRESS, and
// P2PTUN_NETMASK / TUN_NETMASK (spec §6 names both the primary and the
// alternative variable names).
func Load() (Daemon, error) {
	d := Daemon{IPAddr: defaultIPAddr, Netmask: defaultNetmask}

	key, err := loadSecretKey()
	if err != nil {
		return Daemon{}, err
	}
	d.SecretKey = key

	if addr, ok := firstEnv("P2PTUN_IP_ADDR", "TUN_ADDRESS"); ok {
		if parsed := net.ParseIP(addr).To4(); parsed != nil {
			d.IPAddr = parsed
		} else {
			dlog.SaveWarnLog("config: bad IP address, using default", "value", addr, "default", d.IPAddr.String())
		}
	}

	if mask, ok := firstEnv("P2PTUN_NETMASK", "TUN_NETMASK"); ok {
		if parsed := net.ParseIP(mask).To4(); parsed != nil {
			d.Netmask = net.IPMask(parsed)
		} else {
			dlog.SaveWarnLog("config: bad netmask, using default", "value", mask)
		}
	}

	return d, nil
}

// loadSecretKey parses P2PTUN_SECRET_KEY (hex-encoded Ed25519 seed) or
// generates a fresh key when absent, per spec §6.
func loadSecretKey() (ed25519.PrivateKey, error) {
	raw, ok := os.LookupEnv("P2PTUN_SECRET_KEY")
	if !ok || raw == "" {
		_, priv, err := ed25519.GenerateKey(nil)
		return priv, err
	}
	seed, err := hex.DecodeString(raw)
	if err != nil || len(seed) != ed25519.SeedSize {
		dlog.SaveWarnLog("config: bad P2PTUN_SECRET_KEY, generating a fresh key")
		_, priv, genErr := ed25519.GenerateKey(nil)
		return priv, genErr
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func firstEnv(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
