// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/scopes"
	"golang.org/x/oauth2"
)

// Provider provides integration with an OIDC provider (IdP). It's created
// once and shared by every Client, since creating it includes the provider
// discovery request.
type Provider struct {
	config   *Config
	provider *oidc.Provider
	client   *http.Client
	logger   hclog.Logger

	// endSessionURL is the optional RP-initiated logout endpoint advertised
	// by the IdP's discovery document
	endSessionURL string

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs key sets, refreshing tokens, etc
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// providerOptions is the set of available options for Provider
type providerOptions struct {
	withLogger hclog.Logger
}

func providerDefaults() providerOptions {
	return providerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// NewProvider creates and initializes a Provider. Initializing the provider
// includes making an http request to the provider's issuer.
//
// See Provider.Done() which must be called to release provider resources.
// Supported options:
//
//	WithLogger
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "oidc.NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getProviderOpts(opt...)

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		logger:              opts.withLogger.Named("oidc"),
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HTTPClient()
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	provider, err := oidc.NewProvider(HTTPClientContext(p.backgroundCtx, client), c.Issuer) // makes http req to issuer for discovery
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	p.provider = provider

	var extra struct {
		EndSessionURL string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to read discovery document: %w", op, err)
	}
	p.endSessionURL = extra.EndSessionURL
	p.logger.Debug("provider discovered", "issuer", c.Issuer, "end_session", p.endSessionURL != "")
	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns the provider's config
func (p *Provider) Config() *Config { return p.config }

// requestScopes returns the scopes sent to the IdP for an interactive
// request: the OIDC scopes followed by the requested scopes.
func requestScopes(requested scopes.Set) scopes.Set {
	return scopes.New(oidc.ScopeOpenID, scopes.Profile, oidc.ScopeOfflineAccess).Union(requested)
}

func (p *Provider) oauth2Config(redirectURL string, requested scopes.Set) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  redirectURL,
		Endpoint:     p.provider.Endpoint(),
		Scopes:       requestScopes(requested).Strings(),
	}
}

// authURL will generate a URL the user agent can use to kick off the
// authorization code flow (with PKCE) for the pending request.
func (p *Provider) authURL(r *pendingRequest) string {
	cfg := p.oauth2Config(r.RedirectURL, scopes.New(r.Scopes...))
	return cfg.AuthCodeURL(r.State, r.authCodeOptions()...)
}

// exchange will request tokens from the token endpoint using the
// authorizationCode received for the pending request. The id_token returned
// is verified, including its nonce.
func (p *Provider) exchange(ctx context.Context, r *pendingRequest, authorizationCode string) (*oauth2.Token, IDToken, *Account, error) {
	const op = "Provider.exchange"
	if authorizationCode == "" {
		return nil, "", nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	cfg := p.oauth2Config(r.RedirectURL, scopes.New(r.Scopes...))
	tk, err := cfg.Exchange(HTTPClientContext(ctx, p.client), authorizationCode, oauth2.VerifierOption(r.Verifier))
	if err != nil {
		return nil, "", nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, classifyTokenError(err))
	}
	if tk.AccessToken == "" {
		return nil, "", nil, fmt.Errorf("%s: %w", op, ErrMissingAccessToken)
	}
	rawIDToken, ok := tk.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, "", nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIdToken)
	}
	acct, err := p.VerifyIDToken(ctx, IDToken(rawIDToken), r.Nonce)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	return tk, IDToken(rawIDToken), acct, nil
}

// refresh uses the refreshToken to get a new access_token without user
// interaction. Errors returned by the IdP are classified as *AuthError.
func (p *Provider) refresh(ctx context.Context, refreshToken string, requested scopes.Set) (*oauth2.Token, error) {
	const op = "Provider.refresh"
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	cfg := p.oauth2Config(p.config.RedirectURL, requested)
	ts := cfg.TokenSource(HTTPClientContext(ctx, p.client), &oauth2.Token{RefreshToken: refreshToken})
	tk, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to refresh token: %w", op, classifyTokenError(err))
	}
	return tk, nil
}

// VerifyIDToken will verify the inbound IDToken and return the Account it
// asserts. It verifies it's been signed by the provider, it validates the
// nonce (when one is given), and performs any additional checks depending on
// the provider's config (audiences, etc).
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken, nonce string) (*Account, error) {
	const op = "Provider.VerifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	verifier := p.provider.Verifier(&oidc.Config{
		SupportedSigningAlgs: algs,
		ClientID:             p.config.ClientID,
		Now:                  p.config.Now,
	})
	oidcIDToken, err := verifier.Verify(HTTPClientContext(ctx, p.client), string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrIdTokenVerificationFailed, err)
	}
	if nonce != "" && oidcIDToken.Nonce != nonce {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidNonce)
	}
	if len(p.config.Audiences) > 0 && !audienceMatch(oidcIDToken.Audience, p.config.Audiences) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidAudience)
	}
	var claims idTokenClaims
	if err := oidcIDToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to read id_token claims: %w", op, err)
	}
	return claims.account(), nil
}

func audienceMatch(got, allowed []string) bool {
	for _, a := range allowed {
		for _, g := range got {
			if a == g {
				return true
			}
		}
	}
	return false
}

// EndSessionURL returns the IdP's RP-initiated logout URL, or "" when the IdP
// doesn't advertise one.
func (p *Provider) EndSessionURL(idTokenHint IDToken) string {
	if p.endSessionURL == "" {
		return ""
	}
	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		p.logger.Warn("invalid end_session_endpoint", "url", p.endSessionURL, "error", err)
		return ""
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if idTokenHint != "" {
		q.Set("id_token_hint", string(idTokenHint))
	}
	if p.config.PostLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", p.config.PostLogoutRedirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// classifyTokenError converts an oauth2 token endpoint error into an
// *AuthError. An invalid_grant means the refresh token or auth code can no
// longer be used without the user, so it's reported as interaction_required.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.ErrorCode == "" {
		return err
	}
	code := re.ErrorCode
	if code == CodeInvalidGrant {
		code = CodeInteractionRequired
	}
	return &AuthError{
		Code:        code,
		Description: re.ErrorDescription,
		URI:         re.ErrorURI,
		Wrapped:     err,
	}
}
