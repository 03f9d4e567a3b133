package config

import (
	"encoding/hex"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)
	assert.True(t, d.IPAddr.Equal(defaultIPAddr))
	assert.Equal(t, defaultNetmask, d.Netmask)
	assert.Len(t, d.SecretKey.Seed(), 32)
}

func TestLoadSecretKeyFromEnv(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 7
	t.Setenv("P2PTUN_SECRET_KEY", hex.EncodeToString(seed))

	d, err := Load()
	require.NoError(t, err)
	assert.Equal(t, seed, []byte(d.SecretKey.Seed()))
}

func TestLoadMalformedSecretKeyFallsBackToFreshKey(t *testing.T) {
	t.Setenv("P2PTUN_SECRET_KEY", "not-hex")

	d, err := Load()
	require.NoError(t, err)
	assert.Len(t, d.SecretKey.Seed(), 32)
}

func TestLoadIPAddrFromPrimaryVar(t *testing.T) {
	t.Setenv("P2PTUN_IP_ADDR", "10.1.2.3")
	d, err := Load()
	require.NoError(t, err)
	assert.True(t, d.IPAddr.Equal(net.IPv4(10, 1, 2, 3)))
}

func TestLoadIPAddrFallsBackOnBadValue(t *testing.T) {
	t.Setenv("P2PTUN_IP_ADDR", "not-an-ip")
	d, err := Load()
	require.NoError(t, err)
	assert.True(t, d.IPAddr.Equal(defaultIPAddr))
}

func TestLoadNetmaskFromEnv(t *testing.T) {
	t.Setenv("P2PTUN_NETMASK", "255.255.255.0")
	d, err := Load()
	require.NoError(t, err)
	assert.Equal(t, net.IPMask(net.IPv4(255, 255, 255, 0).To4()), d.Netmask)
}
