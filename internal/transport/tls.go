package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/lechos22/p2ptun/internal/peeraddr"
)

// ALPN is the application-layer protocol identifier fixed by the design
// (spec §6, GLOSSARY): the literal byte sequence "p2ptun".
const ALPN = "p2ptun"

// selfSignedCert builds a short-lived, self-signed TLS certificate
// carrying priv's Ed25519 public key as the node's stable identity. quic-go
// requires a *tls.Config; generating the certificate itself is plain
// stdlib crypto/tls + crypto/x509 work — no pack library specializes in
// ephemeral self-signed certificate minting distinct from what ships in
// the standard library (see DESIGN.md).
func selfSignedCert(priv ed25519.PrivateKey) (tls.Certificate, error) {
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "p2ptun"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, priv.Public(), priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: create cert: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}

// tlsConfig builds the mutually-authenticating tls.Config quic-go uses for
// both Accept and Dial: each side presents its self-signed certificate and
// accepts the peer's without chain validation (there is no CA — identity
// is the raw public key itself, recovered in peerIdentityFromCert).
func tlsConfig(priv ed25519.PrivateKey) (*tls.Config, error) {
	cert, err := selfSignedCert(priv)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true,
		ClientAuth:         tls.RequireAnyClientCert,
		MinVersion:         tls.VersionTLS13,
	}, nil
}

// peerIdentityFromCert recovers the remote's PeerIdentity from its leaf
// certificate's Ed25519 public key (spec §6: "Each connection exposes a
// remote certificate carrying the remote's PeerIdentity").
func peerIdentityFromCert(certs []*x509.Certificate) (peeraddr.Identity, error) {
	if len(certs) == 0 {
		return peeraddr.Identity{}, fmt.Errorf("transport: peer presented no certificate")
	}
	pub, ok := certs[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return peeraddr.Identity{}, fmt.Errorf("transport: peer certificate is not Ed25519")
	}
	return peeraddr.IdentityFromPublicKey(pub)
}
