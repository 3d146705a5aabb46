// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestSignJWT signs the claims and private claims with the ES256 key.
func TestSignJWT(t *testing.T, key *ecdsa.PrivateKey, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)
	raw, err := jwt.Signed(sig).Claims(claims).Claims(privateClaims).CompactSerialize()
	require.NoError(err)
	return raw
}

// TestGenerateCA returns a pem-encoded, self-signed CA cert for the DNS
// names.
func TestGenerateCA(t *testing.T, dnsNames ...string) string {
	t.Helper()
	require := require.New(t)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixNano()),
		Subject:               pkix.Name{CommonName: "mgtauth test CA"},
		DNSNames:              dnsNames,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

// TestClientID is the client id used by TestConfig
const TestClientID = "test-client-id"

// TestConfig returns a Config for a public client of the TestProvider and
// sets the client's creds on the provider.
func TestConfig(t *testing.T, tp *TestProvider, opt ...Option) *Config {
	t.Helper()
	require := require.New(t)
	tp.SetClientCreds(TestClientID, "")
	opt = append([]Option{WithProviderCA(tp.CACert())}, opt...)
	c, err := NewConfig(tp.Addr(), TestClientID, "", []Alg{ES256}, "https://example.com/callback", opt...)
	require.NoError(err)
	return c
}

// TestNewProvider returns a Provider for the TestProvider, which is released
// when the test completes.
func TestNewProvider(t *testing.T, tp *TestProvider, opt ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(TestConfig(t, tp, opt...))
	require.NoError(t, err)
	t.Cleanup(p.Done)
	return p
}
