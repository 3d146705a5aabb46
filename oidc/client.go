// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/haugen/mgtauth/broadcast"
	"github.com/haugen/mgtauth/scopes"
	"github.com/haugen/mgtauth/session"
	"golang.org/x/oauth2"
)

// DefaultExpirySkew is subtracted from a cached access_token's expiry when
// deciding if it can still be used.
const DefaultExpirySkew = 5 * time.Minute

// Navigator sends the user agent to a URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc is an adapter which allows a func to be used as a Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

// Navigate implements Navigator
func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }

// SuccessFunc is called with the response after a redirect callback
// completes successfully.
type SuccessFunc func(ctx context.Context, resp *AuthResponse)

// ErrorFunc is called with the error after a redirect callback fails.
// appState is the pending request's AppState, when the request was found.
type ErrorFunc func(ctx context.Context, err error, appState string)

// LoginEvent is the payload published to broadcast.LoginSuccess
type LoginEvent struct {
	SessionID string `json:"session_id,omitempty"`
	AccountID string `json:"account_id"`
	Username  string `json:"username,omitempty"`
}

// clientOptions is the set of available options for Client
type clientOptions struct {
	withNowFunc      func() time.Time
	withLogger       hclog.Logger
	withExpirySkew   time.Duration
	withNavigator    Navigator
	withPopupOpener  Navigator
	withLoopbackAddr string
	withBroadcaster  broadcast.Bus
	withSessionID    string
}

func clientDefaults() clientOptions {
	return clientOptions{
		withLogger:       hclog.NewNullLogger(),
		withExpirySkew:   DefaultExpirySkew,
		withPopupOpener:  NavigatorFunc(func(_ context.Context, u string) error { return OpenURL(u) }),
		withLoopbackAddr: "127.0.0.1:0",
	}
}

func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// Client acquires tokens on behalf of one user agent session. Its token
// cache, pending redirect requests and login-in-progress marker live in the
// session.Store, so a Client may be recreated for every request of a web
// host.
type Client struct {
	provider     *Provider
	store        session.Store
	logger       hclog.Logger
	now          func() time.Time
	expirySkew   time.Duration
	navigator    Navigator
	popupOpener  Navigator
	loopbackAddr string
	bus          broadcast.Bus
	sessionID    string

	// popupLogins counts login popups which haven't completed
	popupLogins atomic.Int32

	mu        sync.Mutex
	onSuccess SuccessFunc
	onError   ErrorFunc
}

// NewClient creates a new Client for the session.Store.
// Supported options:
//
//	WithNow
//	WithLogger
//	WithExpirySkew
//	WithNavigator
//	WithPopupOpener
//	WithLoopbackAddr
//	WithBroadcaster
//	WithSessionID
func NewClient(p *Provider, store session.Store, opt ...Option) (*Client, error) {
	const op = "oidc.NewClient"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	case store == nil:
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	opts := getClientOpts(opt...)
	c := &Client{
		provider:     p,
		store:        store,
		logger:       opts.withLogger.Named("client"),
		now:          opts.withNowFunc,
		expirySkew:   opts.withExpirySkew,
		navigator:    opts.withNavigator,
		popupOpener:  opts.withPopupOpener,
		loopbackAddr: opts.withLoopbackAddr,
		bus:          opts.withBroadcaster,
		sessionID:    opts.withSessionID,
	}
	if c.now == nil {
		c.now = p.config.Now
	}
	return c, nil
}

// Provider returns the client's provider
func (c *Client) Provider() *Provider { return c.provider }

// CurrentRedirectTarget returns the redirect URL used for redirect flows.
func (c *Client) CurrentRedirectTarget() string { return c.provider.config.RedirectURL }

// IsCallback reports whether the query parameters are an authorization
// response: they carry a state along with a code or an error.
func IsCallback(v url.Values) bool {
	return v.Get("state") != "" && (v.Get("code") != "" || v.Get("error") != "")
}

// requestScopes returns the request's scopes, or the config's defaults.
func (c *Client) requestScopes(req *TokenRequest) scopes.Set {
	if req != nil && !req.Scopes.IsEmpty() {
		return req.Scopes
	}
	return c.provider.config.DefaultScopes()
}

// Account returns the signed-in account, or nil when no one is signed in.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	const op = "Client.Account"
	tc, err := c.loadCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tc.Account, nil
}

// LoginInProgress reports whether an interactive login (redirect or popup)
// has started and not yet completed.
func (c *Client) LoginInProgress(ctx context.Context) (bool, error) {
	const op = "Client.LoginInProgress"
	if c.popupLogins.Load() > 0 {
		return true, nil
	}
	_, ok, err := c.store.Get(ctx, loginInProgressKey)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// AcquireTokenSilent acquires an access_token without user interaction,
// either from the token cache or by using the cached refresh_token.
//
// The errors returned are *AuthError with the code login_required when no
// account is signed in, interaction_required when the refresh_token can't be
// used and consent_required when the scopes granted don't cover the request.
func (c *Client) AcquireTokenSilent(ctx context.Context, req *TokenRequest) (*AuthResponse, error) {
	const op = "Client.AcquireTokenSilent"
	requested := c.requestScopes(req)
	tc, err := c.loadCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tc.Account == nil {
		return nil, fmt.Errorf("%s: %w", op, NewAuthError(CodeLoginRequired, "no account is signed in", ErrNoAccount))
	}
	if req != nil && req.Account != nil && req.Account.ID() != tc.Account.ID() {
		return nil, fmt.Errorf("%s: %w", op, NewAuthError(CodeLoginRequired, "account is not signed in", ErrNoAccount))
	}

	now := c.now()
	if at, ok := tc.lookup(requested, now, c.expirySkew); ok {
		return &AuthResponse{
			TokenType:   TokenTypeAccessToken,
			AccessToken: AccessToken(at.AccessToken),
			IDToken:     IDToken(tc.IDToken),
			Scopes:      scopes.New(at.Scopes...),
			ExpiresOn:   at.ExpiresOn,
			Account:     tc.Account,
			FromCache:   true,
		}, nil
	}
	if tc.RefreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, NewAuthError(CodeInteractionRequired, "no refresh token is cached", nil))
	}

	tk, err := c.provider.refresh(ctx, tc.RefreshToken, requested)
	if err != nil {
		c.logger.Debug("silent refresh failed", "code", ErrorCode(err), "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	granted := grantedScopes(tk, requested)
	if !granted.ContainsAll(resourceScopes(requested)) {
		desc := fmt.Sprintf("scopes granted %q don't include the requested %q", granted, requested)
		return nil, fmt.Errorf("%s: %w", op, NewAuthError(CodeConsentRequired, desc, nil))
	}

	if tk.RefreshToken != "" {
		tc.RefreshToken = tk.RefreshToken
	}
	if raw, ok := tk.Extra("id_token").(string); ok && raw != "" {
		acct, err := c.provider.VerifyIDToken(ctx, IDToken(raw), "")
		if err != nil {
			return nil, fmt.Errorf("%s: refreshed id_token failed verification: %w", op, err)
		}
		if acct.ID() != tc.Account.ID() {
			return nil, fmt.Errorf("%s: %w", op, NewAuthError(CodeLoginRequired, "refreshed id_token is for a different account", ErrNoAccount))
		}
		tc.IDToken = raw
		tc.Account = acct
	}
	at := cachedAccessToken{Scopes: granted.Strings(), AccessToken: tk.AccessToken, ExpiresOn: tk.Expiry}
	tc.add(at, now)
	if err := c.saveCache(ctx, tc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &AuthResponse{
		TokenType:   TokenTypeAccessToken,
		AccessToken: AccessToken(tk.AccessToken),
		IDToken:     IDToken(tc.IDToken),
		Scopes:      granted,
		ExpiresOn:   tk.Expiry,
		Account:     tc.Account,
	}, nil
}

// resourceScopes returns the scopes without the OIDC scopes, which IdPs
// don't always report as granted.
func resourceScopes(s scopes.Set) scopes.Set {
	return s.WithoutBaseline().Without(scopes.OfflineAccess)
}

// grantedScopes returns the scopes the token endpoint reports it granted,
// or the requested scopes when it doesn't say.
func grantedScopes(tk *oauth2.Token, requested scopes.Set) scopes.Set {
	if s, ok := tk.Extra("scope").(string); ok && s != "" {
		return scopes.Parse(s)
	}
	return requested
}

// AcquireTokenRedirect starts a redirect flow to acquire an access_token. It
// returns the IdP URL the user agent must be sent to, and when the client has
// a Navigator, it's already been sent there. The flow is completed by
// HandleRedirectResponse.
func (c *Client) AcquireTokenRedirect(ctx context.Context, req *TokenRequest) (string, error) {
	const op = "Client.AcquireTokenRedirect"
	u, err := c.redirect(ctx, req, false)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// LoginRedirect starts a redirect flow to sign in. See AcquireTokenRedirect.
// The client reports a login in progress until the flow's callback is
// handled.
func (c *Client) LoginRedirect(ctx context.Context, req *TokenRequest) (string, error) {
	const op = "Client.LoginRedirect"
	u, err := c.redirect(ctx, req, true)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (c *Client) redirect(ctx context.Context, req *TokenRequest, login bool) (string, error) {
	redirectURL := c.provider.config.RedirectURL
	if req != nil && req.RedirectURL != "" {
		redirectURL = req.RedirectURL
	}
	if redirectURL == "" {
		return "", fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter)
	}
	expireAt := c.now().Add(c.provider.config.requestExpiry())
	r, err := newPendingRequest(req, c.requestScopes(req), redirectURL, login, interactionRedirect, expireAt)
	if err != nil {
		return "", err
	}
	if err := c.savePending(ctx, r); err != nil {
		return "", err
	}
	if login {
		if err := c.store.Set(ctx, loginInProgressKey, r.State); err != nil {
			return "", fmt.Errorf("unable to mark login in progress: %w", err)
		}
	}
	authURL := c.provider.authURL(r)
	c.logger.Debug("redirect started", "login", login, "state", r.State)

	if c.navigator != nil {
		if err := c.navigator.Navigate(ctx, authURL); err != nil {
			c.forgetPending(ctx, r.State)
			return "", fmt.Errorf("unable to navigate to the IdP: %w", err)
		}
	}
	return authURL, nil
}

// forgetPending removes the pending request for state and, when it's the
// login in progress, the login in progress marker.
func (c *Client) forgetPending(ctx context.Context, state string) {
	if err := c.store.Remove(ctx, requestKeyPrefix+state); err != nil {
		c.logger.Warn("unable to remove pending request", "state", state, "error", err)
	}
	inProgress, ok, err := c.store.Get(ctx, loginInProgressKey)
	if err != nil {
		c.logger.Warn("unable to read login in progress", "error", err)
		return
	}
	if ok && inProgress == state {
		if err := c.store.Remove(ctx, loginInProgressKey); err != nil {
			c.logger.Warn("unable to clear login in progress", "error", err)
		}
	}
}

// HandleRedirectCallback registers the funcs called when a redirect flow's
// response is handled. Registering again replaces the previous funcs. Either
// may be nil.
func (c *Client) HandleRedirectCallback(onSuccess SuccessFunc, onError ErrorFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSuccess = onSuccess
	c.onError = onError
}

// HandleRedirectResponse completes a redirect flow with the authorization
// response's query parameters. The registered callbacks are called with the
// result before it's returned. The pending request is consumed whether or
// not the response is successful.
func (c *Client) HandleRedirectResponse(ctx context.Context, v url.Values) (*AuthResponse, error) {
	const op = "Client.HandleRedirectResponse"
	c.mu.Lock()
	onSuccess, onError := c.onSuccess, c.onError
	c.mu.Unlock()

	resp, appState, err := c.handleRedirectResponse(ctx, v)
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		c.logger.Debug("redirect response failed", "code", ErrorCode(err), "error", err)
		if onError != nil {
			onError(ctx, err, appState)
		}
		return nil, err
	}
	if onSuccess != nil {
		onSuccess(ctx, resp)
	}
	return resp, nil
}

func (c *Client) handleRedirectResponse(ctx context.Context, v url.Values) (*AuthResponse, string, error) {
	state := v.Get("state")
	if state == "" {
		return nil, "", fmt.Errorf("missing state: %w", ErrResponseStateInvalid)
	}
	defer c.forgetPending(ctx, state)

	r, err := c.loadPending(ctx, state)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %s", ErrResponseStateInvalid, err)
		}
		return nil, "", err
	}
	if r.InteractKind != interactionRedirect {
		return nil, r.AppState, fmt.Errorf("request is not a redirect request: %w", ErrResponseStateInvalid)
	}
	resp, err := c.complete(ctx, r, v)
	if err != nil {
		return nil, r.AppState, err
	}
	return resp, r.AppState, nil
}

// complete finishes an interactive request with the authorization response:
// the code is exchanged, the id_token verified and the token cache updated.
func (c *Client) complete(ctx context.Context, r *pendingRequest, v url.Values) (*AuthResponse, error) {
	now := c.now()
	switch {
	case r.IsExpired(now):
		return nil, fmt.Errorf("request %q: %w", r.State, ErrExpiredRequest)
	case v.Get("state") != r.State:
		return nil, fmt.Errorf("%w: response state %q doesn't match request", ErrResponseStateInvalid, v.Get("state"))
	case v.Get("error") != "":
		return nil, &AuthError{
			Code:        v.Get("error"),
			Description: v.Get("error_description"),
			URI:         v.Get("error_uri"),
		}
	}

	tk, idToken, acct, err := c.provider.exchange(ctx, r, v.Get("code"))
	if err != nil {
		return nil, err
	}
	requested := scopes.New(r.Scopes...)
	granted := grantedScopes(tk, requested)

	tc, err := c.loadCache(ctx)
	if err != nil {
		return nil, err
	}
	if tc.Account.ID() != acct.ID() {
		tc = &tokenCache{}
	}
	tc.Account = acct
	tc.IDToken = string(idToken)
	if tk.RefreshToken != "" {
		tc.RefreshToken = tk.RefreshToken
	}
	tc.add(cachedAccessToken{Scopes: granted.Strings(), AccessToken: tk.AccessToken, ExpiresOn: tk.Expiry}, now)
	if err := c.saveCache(ctx, tc); err != nil {
		return nil, err
	}

	resp := &AuthResponse{
		TokenType:   TokenTypeAccessToken,
		AccessToken: AccessToken(tk.AccessToken),
		IDToken:     idToken,
		Scopes:      granted,
		ExpiresOn:   tk.Expiry,
		Account:     acct,
		AppState:    r.AppState,
	}
	if r.Login {
		resp.TokenType = TokenTypeIDToken
		c.publishLogin(ctx, acct)
	}
	return resp, nil
}

func (c *Client) publishLogin(ctx context.Context, acct *Account) {
	if c.bus == nil {
		return
	}
	payload, err := json.Marshal(LoginEvent{SessionID: c.sessionID, AccountID: acct.ID(), Username: acct.Username})
	if err != nil {
		c.logger.Error("unable to encode login event", "error", err)
		return
	}
	if err := c.bus.Publish(ctx, broadcast.LoginSuccess, payload); err != nil {
		c.logger.Error("unable to publish login event", "error", err)
	}
}

// Logout removes the signed-in account and its tokens from the session and
// returns the IdP's end session URL ("" when the IdP doesn't have one). When
// the client has a Navigator, the user agent is sent to the end session URL.
// Every step is attempted and their errors are combined.
func (c *Client) Logout(ctx context.Context) (string, error) {
	const op = "Client.Logout"
	var result *multierror.Error

	var idTokenHint IDToken
	tc, err := c.loadCache(ctx)
	switch {
	case err != nil:
		result = multierror.Append(result, err)
	default:
		idTokenHint = IDToken(tc.IDToken)
	}
	if err := c.store.Remove(ctx, cacheKey); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to remove token cache: %w", err))
	}
	if err := c.store.Remove(ctx, loginInProgressKey); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to clear login in progress: %w", err))
	}

	endSessionURL := c.provider.EndSessionURL(idTokenHint)
	if c.navigator != nil && endSessionURL != "" {
		if err := c.navigator.Navigate(ctx, endSessionURL); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to navigate to end session: %w", err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return endSessionURL, fmt.Errorf("%s: %w", op, err)
	}
	return endSessionURL, nil
}
