// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gopkg.in/square/go-jose.v2/jwt"
)

func Test_NewProvider(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t, 0)

	tests := []struct {
		name      string
		config    func() *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name:   "valid",
			config: func() *Config { return TestConfig(t, tp) },
		},
		{
			name:      "nil-config",
			config:    func() *Config { return nil },
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
		{
			name: "invalid-config",
			config: func() *Config {
				c := TestConfig(t, tp)
				c.ClientID = ""
				return c
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "untrusted-ca",
			config: func() *Config {
				c := TestConfig(t, tp)
				c.ProviderCA = TestGenerateCA(t, "localhost")
				return c
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			p, err := NewProvider(tt.config())
			if tt.wantErr {
				require.Error(err)
				if tt.wantIsErr != nil {
					assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				}
				return
			}
			require.NoError(err)
			defer p.Done()
			assert.Equal(tp.Addr()+"/logout", p.endSessionURL)
		})
	}
}

func TestProvider_Done(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t, 0)
	p := TestNewProvider(t, tp)
	p.Done()
	p.Done()
	var nilProvider *Provider
	nilProvider.Done()
}

func TestProvider_VerifyIDToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t, 0)
	p := TestNewProvider(t, tp)
	priv := tp.SigningKey()

	signed := func(aud string, expiry time.Duration, nonce string) IDToken {
		now := time.Now()
		claims := jwt.Claims{
			Issuer:    tp.Addr(),
			Subject:   "alice",
			Audience:  jwt.Audience{aud},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			Expiry:    jwt.NewNumericDate(now.Add(expiry)),
		}
		return IDToken(TestSignJWT(t, priv, claims, map[string]interface{}{
			"nonce":              nonce,
			"preferred_username": "alice@example.com",
		}))
	}

	tests := []struct {
		name      string
		token     IDToken
		nonce     string
		wantErr   bool
		wantIsErr error
	}{
		{
			name:  "valid",
			token: signed(TestClientID, time.Minute, "n_1"),
			nonce: "n_1",
		},
		{
			name:  "valid-without-nonce-check",
			token: signed(TestClientID, time.Minute, "n_1"),
		},
		{
			name:      "wrong-nonce",
			token:     signed(TestClientID, time.Minute, "n_1"),
			nonce:     "n_2",
			wantErr:   true,
			wantIsErr: ErrInvalidNonce,
		},
		{
			name:      "wrong-audience",
			token:     signed("someone-else", time.Minute, ""),
			wantErr:   true,
			wantIsErr: ErrIdTokenVerificationFailed,
		},
		{
			name:      "expired",
			token:     signed(TestClientID, -time.Minute, ""),
			wantErr:   true,
			wantIsErr: ErrIdTokenVerificationFailed,
		},
		{
			name:      "empty",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			acct, err := p.VerifyIDToken(ctx, tt.token, tt.nonce)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(&Account{Subject: "alice", Issuer: tp.Addr(), Username: "alice@example.com"}, acct)
		})
	}
}

func TestProvider_EndSessionURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t, 0)
	p := TestNewProvider(t, tp, WithPostLogoutRedirectURL("https://example.com/bye"))

	u, err := url.Parse(p.EndSessionURL("hint"))
	require.NoError(err)
	assert.Equal("/logout", u.Path)
	assert.Equal("hint", u.Query().Get("id_token_hint"))
	assert.Equal("https://example.com/bye", u.Query().Get("post_logout_redirect_uri"))

	u, err = url.Parse(p.EndSessionURL(""))
	require.NoError(err)
	assert.False(u.Query().Has("id_token_hint"))

	p.endSessionURL = ""
	assert.Empty(p.EndSessionURL("hint"))
}

func TestClassifyTokenError(t *testing.T) {
	t.Parallel()
	plain := errors.New("connection refused")
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantSame bool
	}{
		{name: "not-retrieve-error", err: plain, wantSame: true},
		{name: "no-code", err: &oauth2.RetrieveError{}, wantSame: true},
		{name: "invalid-grant", err: &oauth2.RetrieveError{ErrorCode: CodeInvalidGrant}, wantCode: CodeInteractionRequired},
		{name: "consent-required", err: &oauth2.RetrieveError{ErrorCode: CodeConsentRequired, ErrorDescription: "AADSTS65001"}, wantCode: CodeConsentRequired},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			got := classifyTokenError(tt.err)
			if tt.wantSame {
				assert.Equal(tt.err, got)
				return
			}
			assert.Equal(tt.wantCode, ErrorCode(got))
			var re *oauth2.RetrieveError
			assert.True(errors.As(got, &re))
		})
	}
}
