// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/haugen/mgtauth/scopes"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultPopupTimeout is the time a popup flow waits for the authentication
// response when the config doesn't set PopupTimeout.
const DefaultPopupTimeout = 2 * time.Minute

// DefaultRequestExpiry is how long a pending redirect request remains valid.
const DefaultRequestExpiry = 10 * time.Minute

// Config represents the configuration for an OIDC public or confidential
// client which acquires tokens on behalf of a signed-in user.
type Config struct {
	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret. It may be empty for public
	// clients, since every flow uses PKCE.
	ClientSecret ClientSecret

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms. List of
	// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512,
	// PS256, PS384, PS512
	SupportedSigningAlgs []Alg

	// RedirectURL is the callback URL for redirect flows. It's also the
	// "current redirect target" reported by the Client.
	RedirectURL string

	// Scopes is the default list of scopes requested when a request doesn't
	// provide its own. The required "openid" scope is always requested.
	Scopes []string

	// Audiences is an optional list of case-sensitive strings used when
	// verifying an id_token's "aud" claim
	Audiences []string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// PopupTimeout is how long a popup flow waits for a response.
	PopupTimeout time.Duration

	// RequestExpiry is how long a pending redirect request remains valid.
	RequestExpiry time.Duration

	// PostLogoutRedirectURL is an optional URL the IdP should send the user
	// agent to after logout.
	PostLogoutRedirectURL string

	// NowFunc is an optional function that returns the current time
	NowFunc func() time.Time
}

// configOptions is the set of available options for Config
type configOptions struct {
	withScopes                []string
	withAudiences             []string
	withProviderCA            string
	withPopupTimeout          time.Duration
	withRequestExpiry         time.Duration
	withPostLogoutRedirectURL string
	withNowFunc               func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func configDefaults() configOptions {
	return configOptions{
		withPopupTimeout:  DefaultPopupTimeout,
		withRequestExpiry: DefaultRequestExpiry,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// NewConfig composes a new config for a client.
// Supported options:
//
//	WithScopes
//	WithAudiences
//	WithProviderCA
//	WithPopupTimeout
//	WithRequestExpiry
//	WithPostLogoutRedirectURL
//	WithNow
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, redirectURL string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:                issuer,
		ClientID:              clientID,
		ClientSecret:          clientSecret,
		SupportedSigningAlgs:  supported,
		RedirectURL:           redirectURL,
		Scopes:                opts.withScopes,
		Audiences:             opts.withAudiences,
		ProviderCA:            opts.withProviderCA,
		PopupTimeout:          opts.withPopupTimeout,
		RequestExpiry:         opts.withRequestExpiry,
		PostLogoutRedirectURL: opts.withPostLogoutRedirectURL,
		NowFunc:               opts.withNowFunc,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration. Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable via
// an http request.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%s: discovery URL is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("%s: issuer %s is invalid (%s): %w", op, c.Issuer, err, ErrInvalidIssuer)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%s: issuer %s schema is not http or https: %w", op, c.Issuer, ErrInvalidIssuer)
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	if _, err := url.Parse(c.RedirectURL); err != nil {
		return fmt.Errorf("%s: redirect URL %s is invalid: %w", op, c.RedirectURL, ErrInvalidParameter)
	}
	if len(c.SupportedSigningAlgs) == 0 {
		return fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter)
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			return fmt.Errorf("%s: unsupported algorithm %s: %w", op, a, ErrUnsupportedAlg)
		}
	}
	if c.PopupTimeout < 0 {
		return fmt.Errorf("%s: popup timeout is negative: %w", op, ErrInvalidParameter)
	}
	if c.RequestExpiry < 0 {
		return fmt.Errorf("%s: request expiry is negative: %w", op, ErrInvalidParameter)
	}
	if c.ProviderCA != "" {
		if ok := x509.NewCertPool().AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return fmt.Errorf("%s: %w", op, ErrInvalidCACert)
		}
	}
	return nil
}

// DefaultScopes returns the config's default scopes as a scopes.Set
func (c *Config) DefaultScopes() scopes.Set {
	return scopes.New(c.Scopes...)
}

// Now returns the current time using the optional NowFunc
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

func (c *Config) popupTimeout() time.Duration {
	if c.PopupTimeout == 0 {
		return DefaultPopupTimeout
	}
	return c.PopupTimeout
}

func (c *Config) requestExpiry() time.Duration {
	if c.RequestExpiry == 0 {
		return DefaultRequestExpiry
	}
	return c.RequestExpiry
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// WithScopes provides an optional list of default scopes for the config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudiences provides an optional list of audiences for the config
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = auds
		}
	}
}

// WithProviderCA provides an optional CA cert for the config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithPopupTimeout provides an optional popup timeout for the config
func WithPopupTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withPopupTimeout = d
		}
	}
}

// WithRequestExpiry provides an optional expiry for pending redirect
// requests for the config
func WithRequestExpiry(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRequestExpiry = d
		}
	}
}

// WithPostLogoutRedirectURL provides an optional post logout redirect for
// the config
func WithPostLogoutRedirectURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withPostLogoutRedirectURL = u
		}
	}
}
