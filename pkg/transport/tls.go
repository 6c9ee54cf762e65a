package transport

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
)

// Endpoint defaults.
const (
	DefaultPort = 443
	DefaultPath = "/homeconnect"
)

// NewServerTLSConfig returns the TLS configuration of the appliance
// endpoint. Clients of the protocol speak TLS 1.2.
func NewServerTLSConfig(cert tls.Certificate) (*tls.Config, error) {
	if len(cert.Certificate) == 0 {
		return nil, errors.New("server certificate is required")
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"http/1.1"},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}, nil
}

// NewDynamicServerTLSConfig is NewServerTLSConfig with the certificate
// chosen per handshake, for identities that change at runtime.
func NewDynamicServerTLSConfig(get func(*tls.ClientHelloInfo) (*tls.Certificate, error)) *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: get,
		NextProtos:     []string{"http/1.1"},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}

// NewPinnedClientTLSConfig returns a client configuration that accepts
// exactly the given self-signed certificate. The appliance identity has no
// DNS name, so verification compares the leaf instead of the chain.
func NewPinnedClientTLSConfig(pinned *x509.Certificate) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("no certificate presented")
			}
			if pinned == nil || !bytes.Equal(rawCerts[0], pinned.Raw) {
				return errors.New("peer certificate does not match pinned identity")
			}
			return nil
		},
	}
}
