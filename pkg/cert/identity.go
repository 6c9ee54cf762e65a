package cert

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Identity errors.
var (
	ErrNoPSK      = errors.New("no pre-shared key")
	ErrInvalidPSK = errors.New("invalid pre-shared key")
)

// HKDF parameters of the derived appliance identity.
var (
	identitySalt = []byte("homeconnect-ws-sim")
	identityInfo = []byte("appliance tls identity v1")
)

// Fixed validity window, so the derived certificate is byte-identical for a
// given PSK and common name.
var (
	identityNotBefore = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	identityNotAfter  = time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)
)

// DecodePSK decodes a URL-safe base64 PSK. Padding is optional.
func DecodePSK(psk64 string) ([]byte, error) {
	psk64 = strings.TrimRight(strings.TrimSpace(psk64), "=")
	if psk64 == "" {
		return nil, ErrNoPSK
	}
	psk, err := base64.RawURLEncoding.DecodeString(psk64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPSK, err)
	}
	return psk, nil
}

// DeriveIdentity derives a self-signed Ed25519 TLS identity from the
// appliance PSK. The same PSK and common name always yield the same
// certificate, so clients can pin it.
func DeriveIdentity(psk64, commonName string) (tls.Certificate, error) {
	psk, err := DecodePSK(psk64)
	if err != nil {
		return tls.Certificate{}, err
	}

	kdf := hkdf.New(sha256.New, psk, identitySalt, identityInfo)
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return tls.Certificate{}, fmt.Errorf("derive key: %w", err)
	}
	serial := make([]byte, 16)
	if _, err := io.ReadFull(kdf, serial); err != nil {
		return tls.Certificate{}, fmt.Errorf("derive serial: %w", err)
	}
	key := ed25519.NewKeyFromSeed(seed)

	tmpl := &x509.Certificate{
		SerialNumber:          new(big.Int).SetBytes(serial),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             identityNotBefore,
		NotAfter:              identityNotAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{commonName},
	}
	der, err := x509.CreateCertificate(kdf, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// Fingerprint returns the hex SHA-256 fingerprint of a certificate, as
// printed for client pinning.
func Fingerprint(c *x509.Certificate) string {
	sum := sha256.Sum256(c.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
