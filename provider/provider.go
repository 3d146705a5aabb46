// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/broadcast"
	"github.com/haugen/mgtauth/oidc"
	"github.com/haugen/mgtauth/scopes"
	"github.com/haugen/mgtauth/session"
)

// Session store keys
const (
	// RequestedScopesKey holds the scopes of the token redirect awaiting its
	// response.
	RequestedScopesKey = "mgt-requested-scopes"

	// DeniedScopesKey holds the scopes the user declined during the session.
	DeniedScopesKey = "mgt-denied-scopes"
)

// LoginType is the kind of interactive flow a Provider uses.
type LoginType int

const (
	LoginTypeRedirect LoginType = iota
	LoginTypePopup
)

func (t LoginType) String() string {
	if t == LoginTypePopup {
		return "popup"
	}
	return "redirect"
}

// ParseLoginType parses "redirect" or "popup".
func ParseLoginType(s string) (LoginType, error) {
	switch s {
	case "redirect":
		return LoginTypeRedirect, nil
	case "popup":
		return LoginTypePopup, nil
	default:
		return LoginTypeRedirect, fmt.Errorf("provider.ParseLoginType: unknown login type %q: %w", s, ErrInvalidParameter)
	}
}

// DefaultScopes returns the scopes requested when none are given.
func DefaultScopes() scopes.Set {
	return scopes.New("user.read")
}

// Provider acquires access tokens and tracks the sign-in state for one user
// agent session.
type Provider struct {
	client     TokenClient
	adapter    *Adapter
	machine    *StateMachine
	scopeStore *session.ScopeStore
	loginType  LoginType
	logger     hclog.Logger
	metrics    *Metrics

	mu        sync.Mutex
	scopes    scopes.Set
	loginHint string

	unsubscribeBus func()
}

// New creates a Provider and reconciles its state with the client's (see
// TrySilentSignIn). Provider.Done() must be called to release its
// subscriptions.
// Supported options:
//
//	WithLogger
//	WithLoginType
//	WithScopes
//	WithLoginHint
//	WithBroadcaster
//	WithMetrics
func New(ctx context.Context, client TokenClient, store session.Store, opt ...Option) (*Provider, error) {
	const op = "provider.New"
	switch {
	case client == nil:
		return nil, fmt.Errorf("%s: token client is nil: %w", op, ErrNilParameter)
	case store == nil:
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	adapter, err := NewAdapter(client, WithLogger(opts.withLogger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	scopeStore, err := session.NewScopeStore(store)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p := &Provider{
		client:     client,
		adapter:    adapter,
		machine:    NewStateMachine(),
		scopeStore: scopeStore,
		loginType:  opts.withLoginType,
		logger:     opts.withLogger.Named("provider"),
		metrics:    opts.withMetrics,
		scopes:     opts.withScopes,
		loginHint:  opts.withLoginHint,
	}

	client.HandleRedirectCallback(p.tokenReceived, p.errorReceived)

	if opts.withBroadcaster != nil {
		unsubscribe, err := opts.withBroadcaster.Subscribe(broadcast.LoginSuccess, func(ctx context.Context, _ broadcast.Event) {
			p.RefreshState(ctx)
		})
		if err != nil {
			client.HandleRedirectCallback(nil, nil)
			return nil, fmt.Errorf("%s: unable to subscribe to %s: %w", op, broadcast.LoginSuccess, err)
		}
		p.unsubscribeBus = unsubscribe
	}

	p.TrySilentSignIn(ctx)
	return p, nil
}

// Done releases the provider's subscriptions.
func (p *Provider) Done() {
	p.client.HandleRedirectCallback(nil, nil)
	p.mu.Lock()
	unsubscribe := p.unsubscribeBus
	p.unsubscribeBus = nil
	p.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// State returns the current sign-in state
func (p *Provider) State() SignInState { return p.machine.State() }

// Subscribe registers fn for sign-in state changes. fn is called
// immediately with the current state.
func (p *Provider) Subscribe(fn Listener) (unsubscribe func()) {
	return p.machine.Subscribe(fn)
}

// LoginType returns the provider's interactive flow
func (p *Provider) LoginType() LoginType { return p.loginType }

// Scopes returns the default scopes
func (p *Provider) Scopes() scopes.Set {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scopes
}

// UpdateScopes replaces the default scopes.
func (p *Provider) UpdateScopes(s ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scopes = scopes.New(s...)
}

// SetLoginHint replaces the login hint sent with every request.
func (p *Provider) SetLoginHint(hint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginHint = hint
}

func (p *Provider) setState(s SignInState) {
	if p.machine.Set(s) {
		p.logger.Debug("sign-in state changed", "state", s)
		p.metrics.transition(s)
	}
}

// TrySilentSignIn reconciles the state with the client: Loading while a
// redirect login awaits its response, SignedIn when an account is cached and
// a token can be acquired silently, otherwise SignedOut. It never starts an
// interactive flow.
func (p *Provider) TrySilentSignIn(ctx context.Context) SignInState {
	inProgress, err := p.client.LoginInProgress(ctx)
	switch {
	case err != nil:
		p.logger.Warn("unable to read login in progress", "error", err)
		p.setState(SignedOut)
		return SignedOut
	case inProgress:
		// the redirect response resolves the state
		p.setState(Loading)
		return Loading
	}
	acct, err := p.client.Account(ctx)
	if err != nil || acct == nil {
		if err != nil {
			p.logger.Warn("unable to read account", "error", err)
		}
		p.setState(SignedOut)
		return SignedOut
	}
	out := p.adapter.AcquireSilent(ctx, p.tokenRequest(nil))
	p.metrics.acquisition(pathSilent, outcomeResult(out))
	if out.Kind != OutcomeToken {
		p.setState(SignedOut)
		return SignedOut
	}
	p.setState(SignedIn)
	return SignedIn
}

// RefreshState sets the state from the client without acquiring a token:
// Loading while a login is in progress, SignedIn when an account is cached,
// otherwise SignedOut.
func (p *Provider) RefreshState(ctx context.Context) SignInState {
	s := SignedOut
	inProgress, err := p.client.LoginInProgress(ctx)
	switch {
	case err != nil:
		p.logger.Warn("unable to read login in progress", "error", err)
	case inProgress:
		s = Loading
	default:
		acct, err := p.client.Account(ctx)
		if err != nil {
			p.logger.Warn("unable to read account", "error", err)
		}
		if acct != nil {
			s = SignedIn
		}
	}
	p.setState(s)
	return s
}

// tokenRequest returns a request for the scopes, or the default scopes when
// none are given.
func (p *Provider) tokenRequest(requested scopes.Set) *oidc.TokenRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if requested.IsEmpty() {
		requested = p.scopes
	}
	return &oidc.TokenRequest{
		Scopes:    requested,
		LoginHint: p.loginHint,
	}
}

// GetAccessToken returns an access_token for the scopes, or the default
// scopes when none are given.
//
// A token is first acquired silently. When that requires interaction, a
// popup provider acquires the token with a popup. A redirect provider starts
// a redirect and returns an error wrapping a *RedirectPendingError, unless
// the user declined one of the scopes earlier in the session, in which case
// ErrScopeDenied is returned without prompting again. Any other silent
// failure returns ErrFatal and signs the provider out.
func (p *Provider) GetAccessToken(ctx context.Context, requested ...string) (string, error) {
	const op = "Provider.GetAccessToken"
	req := p.tokenRequest(scopes.New(requested...))

	out := p.adapter.AcquireSilent(ctx, req)
	p.metrics.acquisition(pathSilent, outcomeResult(out))
	switch out.Kind {
	case OutcomeToken:
		return out.AccessToken(), nil

	case OutcomeFatal:
		p.setState(SignedOut)
		return "", fmt.Errorf("%s: %w: %w", op, ErrFatal, out.Err)

	case OutcomeInteractionRequired:
		if p.loginType == LoginTypePopup {
			popup := p.adapter.AcquireInteractivePopup(ctx, req)
			if popup.Kind == OutcomeToken {
				p.metrics.acquisition(pathPopup, resultToken)
				return popup.AccessToken(), nil
			}
			p.metrics.acquisition(pathPopup, resultError)
			return "", fmt.Errorf("%s: popup acquisition failed: %w: %w", op, ErrAuthFailure, popup.Err)
		}
		return "", p.acquireRedirect(ctx, req, out)
	}
	return "", fmt.Errorf("%s: %w: %w", op, ErrFatal, ErrNoResult)
}

// acquireRedirect starts a token redirect for req unless the user declined
// one of its scopes.
func (p *Provider) acquireRedirect(ctx context.Context, req *oidc.TokenRequest, silent Outcome) error {
	const op = "Provider.acquireRedirect"
	denied, err := p.DeniedScopes(ctx)
	if err != nil {
		p.metrics.acquisition(pathRedirect, resultError)
		return fmt.Errorf("%s: %w: %w", op, ErrAuthFailure, err)
	}
	if req.Scopes.Intersects(denied) {
		p.metrics.acquisition(pathRedirect, resultDenied)
		return fmt.Errorf("%s: scopes %q were declined: %w: %w", op, req.Scopes.Intersection(denied), ErrScopeDenied, silent.Err)
	}
	if err := p.scopeStore.Set(ctx, RequestedScopesKey, req.Scopes); err != nil {
		p.metrics.acquisition(pathRedirect, resultError)
		return fmt.Errorf("%s: %w: %w", op, ErrAuthFailure, err)
	}

	req.RedirectURL = p.client.CurrentRedirectTarget()
	if acct, err := p.client.Account(ctx); err == nil {
		req.Account = acct
	}
	err = p.adapter.AcquireInteractiveRedirect(ctx, req)
	if !errors.Is(err, ErrRedirectPending) {
		p.metrics.acquisition(pathRedirect, resultError)
		p.clearRequestedScopes(ctx)
		return fmt.Errorf("%s: unable to start redirect: %w: %w", op, ErrAuthFailure, err)
	}
	p.metrics.acquisition(pathRedirect, resultPending)
	p.logger.Debug("token redirect started", "scopes", req.Scopes)
	return fmt.Errorf("%s: %w", op, err)
}

// Login signs in. When req is nil, the default scopes and login hint are
// requested with the select_account prompt.
//
// A popup provider is SignedIn when the popup returns an account and
// SignedOut otherwise. A redirect provider returns an error wrapping a
// *RedirectPendingError and its state is resolved by the redirect response.
func (p *Provider) Login(ctx context.Context, req *oidc.TokenRequest) error {
	const op = "Provider.Login"
	if req == nil {
		req = p.tokenRequest(nil)
		req.Prompt = oidc.PromptSelectAccount
	}

	if p.loginType == LoginTypePopup {
		p.setState(Loading)
		resp, err := p.adapter.LoginPopup(ctx, req)
		if err != nil {
			p.setState(SignedOut)
			return fmt.Errorf("%s: %w: %w", op, ErrAuthFailure, err)
		}
		if resp == nil || resp.Account == nil {
			p.setState(SignedOut)
			return nil
		}
		p.setState(SignedIn)
		return nil
	}

	err := p.adapter.LoginRedirect(ctx, req)
	if !errors.Is(err, ErrRedirectPending) {
		p.setState(SignedOut)
		return fmt.Errorf("%s: %w: %w", op, ErrAuthFailure, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Logout signs out of the client and sets the state to SignedOut, even when
// the client's logout fails. It returns the IdP's end session URL, which may
// be "".
func (p *Provider) Logout(ctx context.Context) string {
	u := p.adapter.Logout(ctx)
	p.setState(SignedOut)
	return u
}

// HandleRedirect completes a redirect flow with the authorization response's
// query parameters. The redirect callbacks run first, then the state is
// refreshed from the client.
func (p *Provider) HandleRedirect(ctx context.Context, v url.Values) (*oidc.AuthResponse, error) {
	const op = "Provider.HandleRedirect"
	resp, err := p.client.HandleRedirectResponse(ctx, v)
	p.RefreshState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrAuthFailure, err)
	}
	return resp, nil
}

// tokenReceived is the client's redirect success callback
func (p *Provider) tokenReceived(ctx context.Context, resp *oidc.AuthResponse) {
	p.clearRequestedScopes(ctx)
	if resp != nil && resp.TokenType == oidc.TokenTypeIDToken {
		p.setState(SignedIn)
	}
}

// errorReceived is the client's redirect error callback. The scopes the
// redirect requested are recorded as denied.
func (p *Provider) errorReceived(ctx context.Context, err error, _ string) {
	p.logger.Debug("redirect failed", "code", oidc.ErrorCode(err), "error", err)
	requested, ok, getErr := p.scopeStore.Get(ctx, RequestedScopesKey)
	switch {
	case getErr != nil:
		p.logger.Warn("unable to read requested scopes", "error", getErr)
	case ok:
		if err := p.AddDeniedScopes(ctx, requested...); err != nil {
			p.logger.Warn("unable to record denied scopes", "error", err)
		}
	}
	p.clearRequestedScopes(ctx)
	if p.machine.State() == Loading {
		p.setState(SignedOut)
	}
}

func (p *Provider) clearRequestedScopes(ctx context.Context) {
	if err := p.scopeStore.Delete(ctx, RequestedScopesKey); err != nil {
		p.logger.Warn("unable to clear requested scopes", "error", err)
	}
}

// RequestedScopes returns the scopes of the token redirect awaiting its
// response, if there is one.
func (p *Provider) RequestedScopes(ctx context.Context) (scopes.Set, bool, error) {
	const op = "Provider.RequestedScopes"
	s, ok, err := p.scopeStore.Get(ctx, RequestedScopesKey)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return s, ok, nil
}

// DeniedScopes returns the scopes the user declined during the session.
func (p *Provider) DeniedScopes(ctx context.Context) (scopes.Set, error) {
	const op = "Provider.DeniedScopes"
	s, _, err := p.scopeStore.Get(ctx, DeniedScopesKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// AddDeniedScopes records the scopes as declined. openid and profile are
// never recorded.
func (p *Provider) AddDeniedScopes(ctx context.Context, s ...string) error {
	const op = "Provider.AddDeniedScopes"
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, _, err := p.scopeStore.Get(ctx, DeniedScopesKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	denied := existing.Union(scopes.New(s...)).WithoutBaseline()
	if err := p.scopeStore.Set(ctx, DeniedScopesKey, denied); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.metrics.denied(len(denied) - len(existing.WithoutBaseline()))
	return nil
}

func outcomeResult(o Outcome) string {
	switch o.Kind {
	case OutcomeToken:
		return resultToken
	case OutcomeInteractionRequired:
		return resultInteractionRequired
	default:
		return resultFatal
	}
}
