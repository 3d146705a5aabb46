// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/haugen/mgtauth/oidc"
	"github.com/haugen/mgtauth/scopes"
	"github.com/haugen/mgtauth/session"
	"github.com/stretchr/testify/require"
)

const (
	testAuthURL   = "https://idp.example.com/auth?state=st_1"
	testLogoutURL = "https://idp.example.com/logout"
	testTarget    = "https://app.example.com/callback"
)

var testAccount = &oidc.Account{Subject: "alice", Issuer: "https://idp.example.com", Username: "alice@example.com"}

// fakeClient is a TokenClient which returns canned results and records its
// calls.
type fakeClient struct {
	mu sync.Mutex

	account         *oidc.Account
	loginInProgress bool
	inProgressErr   error
	silentResp      *oidc.AuthResponse
	silentErr       error
	popupResp       *oidc.AuthResponse
	popupErr        error
	loginPopupResp  *oidc.AuthResponse
	loginPopupErr   error
	redirectErr     error
	logoutErr       error
	callbackResp    *oidc.AuthResponse
	callbackErr     error

	silentCalls        int
	redirectCalls      int
	popupCalls         int
	loginRedirectCalls int
	loginPopupCalls    int
	logoutCalls        int
	silentReqs         []*oidc.TokenRequest
	redirectReqs       []*oidc.TokenRequest
	loginReqs          []*oidc.TokenRequest

	onSuccess oidc.SuccessFunc
	onError   oidc.ErrorFunc
}

// ensure that fakeClient implements the TokenClient interface
var _ TokenClient = (*fakeClient)(nil)

func (f *fakeClient) AcquireTokenSilent(_ context.Context, req *oidc.TokenRequest) (*oidc.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silentCalls++
	f.silentReqs = append(f.silentReqs, req)
	return f.silentResp, f.silentErr
}

func (f *fakeClient) AcquireTokenRedirect(_ context.Context, req *oidc.TokenRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirectCalls++
	f.redirectReqs = append(f.redirectReqs, req)
	if f.redirectErr != nil {
		return "", f.redirectErr
	}
	return testAuthURL, nil
}

func (f *fakeClient) LoginRedirect(_ context.Context, req *oidc.TokenRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginRedirectCalls++
	f.loginReqs = append(f.loginReqs, req)
	if f.redirectErr != nil {
		return "", f.redirectErr
	}
	f.loginInProgress = true
	return testAuthURL, nil
}

func (f *fakeClient) AcquireTokenPopup(_ context.Context, req *oidc.TokenRequest) (*oidc.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.popupCalls++
	return f.popupResp, f.popupErr
}

func (f *fakeClient) LoginPopup(_ context.Context, req *oidc.TokenRequest) (*oidc.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginPopupCalls++
	f.loginReqs = append(f.loginReqs, req)
	if f.loginPopupErr == nil && f.loginPopupResp != nil {
		f.account = f.loginPopupResp.Account
	}
	return f.loginPopupResp, f.loginPopupErr
}

func (f *fakeClient) Logout(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.account = nil
	return testLogoutURL, f.logoutErr
}

func (f *fakeClient) Account(context.Context) (*oidc.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, nil
}

func (f *fakeClient) LoginInProgress(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginInProgress, f.inProgressErr
}

func (f *fakeClient) CurrentRedirectTarget() string { return testTarget }

func (f *fakeClient) HandleRedirectCallback(onSuccess oidc.SuccessFunc, onError oidc.ErrorFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSuccess, f.onError = onSuccess, onError
}

// HandleRedirectResponse ignores v and completes with callbackResp or
// callbackErr.
func (f *fakeClient) HandleRedirectResponse(ctx context.Context, _ url.Values) (*oidc.AuthResponse, error) {
	f.mu.Lock()
	resp, err := f.callbackResp, f.callbackErr
	onSuccess, onError := f.onSuccess, f.onError
	f.loginInProgress = false
	if err == nil && resp != nil && resp.Account != nil {
		f.account = resp.Account
	}
	f.mu.Unlock()

	if err != nil {
		if onError != nil {
			onError(ctx, err, "")
		}
		return nil, err
	}
	if onSuccess != nil {
		onSuccess(ctx, resp)
	}
	return resp, nil
}

func (f *fakeClient) interactiveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redirectCalls + f.popupCalls
}

func tokenResponse(token string, s ...string) *oidc.AuthResponse {
	return &oidc.AuthResponse{
		TokenType:   oidc.TokenTypeAccessToken,
		AccessToken: oidc.AccessToken(token),
		Scopes:      scopes.New(s...),
		Account:     testAccount,
	}
}

func interactionErr(code string) error {
	return oidc.NewAuthError(code, "", nil)
}

// testProvider returns a new Provider for the fake client and the session
// store it uses.
func testProvider(t *testing.T, f *fakeClient, opt ...Option) (*Provider, *session.MemStore) {
	t.Helper()
	store := session.NewMemStore()
	p, err := New(context.Background(), f, store, opt...)
	require.NoError(t, err)
	t.Cleanup(p.Done)
	return p, store
}

// recordStates subscribes to p and returns the states it's notified of.
func recordStates(p *Provider) *[]SignInState {
	var mu sync.Mutex
	states := &[]SignInState{}
	p.Subscribe(func(s SignInState) {
		mu.Lock()
		defer mu.Unlock()
		*states = append(*states, s)
	})
	return states
}
