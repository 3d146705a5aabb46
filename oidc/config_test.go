// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSecret_String(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert := assert.New(t)
		const want = RedactedClientSecret
		secret := ClientSecret("bob's phone number")
		assert.Equalf(want, secret.String(), "ClientSecret.String() = %v, want %v", secret.String(), want)
	})
}

func TestClientSecret_MarshalJSON(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		want := fmt.Sprintf(`"%s"`, RedactedClientSecret)
		secret := ClientSecret("bob's phone number")
		got, err := secret.MarshalJSON()
		require.NoError(err)
		assert.Equalf([]byte(want), got, "ClientSecret.MarshalJSON() = %s, want %s", got, want)
	})
}

func TestNewConfig(t *testing.T) {
	t.Parallel()
	testCaPem := TestGenerateCA(t, "localhost")

	type args struct {
		issuer      string
		clientID    string
		secret      ClientSecret
		supported   []Alg
		redirectURL string
		opt         []Option
	}
	tests := []struct {
		name      string
		args      args
		want      *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "valid-with-all-valid-opts",
			args: args{
				issuer:      "https://login.example.com/tenant/v2.0",
				clientID:    "YOUR_CLIENT_ID",
				secret:      "YOUR_CLIENT_SECRET",
				supported:   []Alg{RS256, ES256},
				redirectURL: "https://app.example.com/callback",
				opt: []Option{
					WithScopes("User.Read", "Mail.Read"),
					WithAudiences("YOUR_AUD"),
					WithProviderCA(testCaPem),
					WithPopupTimeout(time.Minute),
					WithRequestExpiry(time.Minute),
					WithPostLogoutRedirectURL("https://app.example.com/"),
				},
			},
			want: &Config{
				Issuer:                "https://login.example.com/tenant/v2.0",
				ClientID:              "YOUR_CLIENT_ID",
				ClientSecret:          "YOUR_CLIENT_SECRET",
				SupportedSigningAlgs:  []Alg{RS256, ES256},
				RedirectURL:           "https://app.example.com/callback",
				Scopes:                []string{"User.Read", "Mail.Read"},
				Audiences:             []string{"YOUR_AUD"},
				ProviderCA:            testCaPem,
				PopupTimeout:          time.Minute,
				RequestExpiry:         time.Minute,
				PostLogoutRedirectURL: "https://app.example.com/",
			},
		},
		{
			name: "public-client-with-defaults",
			args: args{
				issuer:      "https://login.example.com",
				clientID:    "YOUR_CLIENT_ID",
				supported:   []Alg{RS256},
				redirectURL: "https://app.example.com/callback",
			},
			want: &Config{
				Issuer:               "https://login.example.com",
				ClientID:             "YOUR_CLIENT_ID",
				SupportedSigningAlgs: []Alg{RS256},
				RedirectURL:          "https://app.example.com/callback",
				PopupTimeout:         DefaultPopupTimeout,
				RequestExpiry:        DefaultRequestExpiry,
			},
		},
		{
			name: "empty-issuer",
			args: args{
				clientID:    "YOUR_CLIENT_ID",
				supported:   []Alg{RS256},
				redirectURL: "https://app.example.com/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "invalid-issuer-scheme",
			args: args{
				issuer:      "ftp://login.example.com",
				clientID:    "YOUR_CLIENT_ID",
				supported:   []Alg{RS256},
				redirectURL: "https://app.example.com/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name: "empty-client-id",
			args: args{
				issuer:      "https://login.example.com",
				supported:   []Alg{RS256},
				redirectURL: "https://app.example.com/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "empty-redirect",
			args: args{
				issuer:    "https://login.example.com",
				clientID:  "YOUR_CLIENT_ID",
				supported: []Alg{RS256},
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "no-algs",
			args: args{
				issuer:      "https://login.example.com",
				clientID:    "YOUR_CLIENT_ID",
				redirectURL: "https://app.example.com/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "unsupported-alg",
			args: args{
				issuer:      "https://login.example.com",
				clientID:    "YOUR_CLIENT_ID",
				supported:   []Alg{"HS256"},
				redirectURL: "https://app.example.com/callback",
			},
			wantErr:   true,
			wantIsErr: ErrUnsupportedAlg,
		},
		{
			name: "negative-popup-timeout",
			args: args{
				issuer:      "https://login.example.com",
				clientID:    "YOUR_CLIENT_ID",
				supported:   []Alg{RS256},
				redirectURL: "https://app.example.com/callback",
				opt:         []Option{WithPopupTimeout(-time.Second)},
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "invalid-ca",
			args: args{
				issuer:      "https://login.example.com",
				clientID:    "YOUR_CLIENT_ID",
				supported:   []Alg{RS256},
				redirectURL: "https://app.example.com/callback",
				opt:         []Option{WithProviderCA("not a cert")},
			},
			wantErr:   true,
			wantIsErr: ErrInvalidCACert,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.args.issuer, tt.args.clientID, tt.args.secret, tt.args.supported, tt.args.redirectURL, tt.args.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestConfig_Now(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &Config{NowFunc: func() time.Time { return fixed }}
	assert.Equal(fixed, c.Now())

	c = &Config{}
	assert.WithinDuration(time.Now(), c.Now(), time.Second)
}

func TestConfig_DefaultScopes(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c := &Config{Scopes: []string{"User.Read", "user.read", " Mail.Read "}}
	assert.Equal([]string{"User.Read", "Mail.Read"}, c.DefaultScopes().Strings())
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c := &Config{ProviderCA: TestGenerateCA(t, "localhost")}
	client, err := c.HTTPClient()
	require.NoError(err)
	assert.NotNil(client.Transport)

	c = &Config{ProviderCA: "bad"}
	_, err = c.HTTPClient()
	require.Error(err)
	assert.Truef(errors.Is(err, ErrInvalidCACert), "wanted \"%s\" but got \"%s\"", ErrInvalidCACert, err)
}
