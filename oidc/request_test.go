// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/haugen/mgtauth/scopes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

func TestNewPendingRequest(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	expireAt := time.Now().Add(time.Minute)
	req := &TokenRequest{
		LoginHint: "alice@example.com",
		Prompt:    PromptSelectAccount,
		Account:   &Account{Issuer: "https://idp", Subject: "alice"},
		UILocales: []language.Tag{language.Norwegian, language.AmericanEnglish},
		AppState:  "/inbox",
	}
	r, err := newPendingRequest(req, scopes.New("Mail.Read"), "https://app/callback", true, interactionRedirect, expireAt)
	require.NoError(err)
	assert.True(strings.HasPrefix(r.State, "st_"))
	assert.True(strings.HasPrefix(r.Nonce, "n_"))
	assert.NotEmpty(r.Verifier)
	assert.Equal([]string{"Mail.Read"}, r.Scopes)
	assert.Equal("https://app/callback", r.RedirectURL)
	assert.Equal("/inbox", r.AppState)
	assert.True(r.Login)
	assert.Equal("https://idp#alice", r.AccountID)
	assert.Equal([]string{"no", "en-US"}, r.UILocales)
	assert.False(r.IsExpired(time.Now()))
	assert.True(r.IsExpired(expireAt))

	other, err := newPendingRequest(nil, nil, "https://app/callback", false, interactionPopup, expireAt)
	require.NoError(err)
	assert.NotEqual(r.State, other.State)
	assert.NotEqual(r.Verifier, other.Verifier)
	assert.Empty(other.AccountID)
}

func TestPendingRequest_authCodeOptions(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	r, err := newPendingRequest(&TokenRequest{
		LoginHint: "alice@example.com",
		Prompt:    PromptConsent,
		UILocales: []language.Tag{language.Norwegian},
	}, scopes.New("Mail.Read"), "https://app/callback", false, interactionRedirect, time.Now().Add(time.Minute))
	require.NoError(err)

	cfg := &oauth2.Config{ClientID: "client", Endpoint: oauth2.Endpoint{AuthURL: "https://idp/auth"}}
	u, err := url.Parse(cfg.AuthCodeURL(r.State, r.authCodeOptions()...))
	require.NoError(err)
	q := u.Query()
	assert.Equal(r.State, q.Get("state"))
	assert.Equal(r.Nonce, q.Get("nonce"))
	assert.Equal("S256", q.Get("code_challenge_method"))
	assert.Equal(oauth2.S256ChallengeFromVerifier(r.Verifier), q.Get("code_challenge"))
	assert.Equal("alice@example.com", q.Get("login_hint"))
	assert.Equal("consent", q.Get("prompt"))
	assert.Equal("no", q.Get("ui_locales"))

	r.LoginHint, r.Prompt, r.UILocales = "", "", nil
	u, err = url.Parse(cfg.AuthCodeURL(r.State, r.authCodeOptions()...))
	require.NoError(err)
	q = u.Query()
	assert.False(q.Has("login_hint"))
	assert.False(q.Has("prompt"))
	assert.False(q.Has("ui_locales"))
}

func TestNewID(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	id, err := NewID("")
	require.NoError(err)
	assert.Len(id, 36)

	prefixed, err := NewID("st")
	require.NoError(err)
	assert.True(strings.HasPrefix(prefixed, "st_"))
	assert.NotEqual(id, strings.TrimPrefix(prefixed, "st_"))
}
