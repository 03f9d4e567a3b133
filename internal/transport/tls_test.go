package transport

import (
	"crypto/ed25519"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechos22/p2ptun/internal/peeraddr"
)

func TestSelfSignedCertCarriesPublicKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cert, err := selfSignedCert(priv)
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	leafPub, ok := parsed.PublicKey.(ed25519.PublicKey)
	require.True(t, ok)
	assert.Equal(t, pub, leafPub)
}

func TestTLSConfigHasExpectedShape(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg, err := tlsConfig(priv)
	require.NoError(t, err)
	assert.Equal(t, []string{ALPN}, cfg.NextProtos)
	assert.Len(t, cfg.Certificates, 1)
}

func TestPeerIdentityFromCertRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cert, err := selfSignedCert(priv)
	require.NoError(t, err)
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	identity, err := peerIdentityFromCert([]*x509.Certificate{parsed})
	require.NoError(t, err)

	want, err := peeraddr.IdentityFromPublicKey(pub)
	require.NoError(t, err)
	assert.Equal(t, want, identity)
}

func TestPeerIdentityFromCertRejectsEmpty(t *testing.T) {
	_, err := peerIdentityFromCert(nil)
	assert.Error(t, err)
}
