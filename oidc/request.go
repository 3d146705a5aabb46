// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/haugen/mgtauth/scopes"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// Prompt is the OIDC prompt parameter
type Prompt string

const (
	PromptNone          Prompt = "none"
	PromptLogin         Prompt = "login"
	PromptConsent       Prompt = "consent"
	PromptSelectAccount Prompt = "select_account"
)

// TokenRequest is the set of parameters for one token acquisition or login.
// It's constructed fresh for every call.
type TokenRequest struct {
	// Scopes requested. When empty, the Config's default scopes are used.
	Scopes scopes.Set

	// LoginHint is an optional hint about the login identifier the user
	// might use.
	LoginHint string

	// Prompt is an optional prompt for interactive requests.
	Prompt Prompt

	// RedirectURL optionally overrides the Config's RedirectURL for a
	// redirect flow.
	RedirectURL string

	// Account optionally identifies the account the token is for.
	Account *Account

	// UILocales is an optional list of preferred languages for the IdP's
	// user interface.
	UILocales []language.Tag

	// AppState is optional caller state which is returned to the redirect
	// callbacks.
	AppState string
}

// pendingRequest is the persisted state of one interactive request. For
// redirect flows, it's how the request survives until its callback.
type pendingRequest struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	Verifier     string    `json:"verifier"`
	Scopes       []string  `json:"scopes"`
	RedirectURL  string    `json:"redirect_url"`
	AppState     string    `json:"app_state,omitempty"`
	Login        bool      `json:"login,omitempty"`
	Expiration   time.Time `json:"expiration"`
	LoginHint    string    `json:"login_hint,omitempty"`
	Prompt       Prompt    `json:"prompt,omitempty"`
	UILocales    []string  `json:"ui_locales,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	InteractKind string    `json:"interaction,omitempty"`
}

const (
	interactionRedirect = "redirect"
	interactionPopup    = "popup"
)

// newPendingRequest creates a pendingRequest with a unique state, nonce and
// PKCE verifier.
func newPendingRequest(req *TokenRequest, requested scopes.Set, redirectURL string, login bool, kind string, expireAt time.Time) (*pendingRequest, error) {
	const op = "oidc.newPendingRequest"
	state, err := NewID("st")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	nonce, err := NewID("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}
	p := &pendingRequest{
		State:        state,
		Nonce:        nonce,
		Verifier:     oauth2.GenerateVerifier(),
		Scopes:       requested.Strings(),
		RedirectURL:  redirectURL,
		Login:        login,
		Expiration:   expireAt,
		InteractKind: kind,
	}
	if req != nil {
		p.AppState = req.AppState
		p.LoginHint = req.LoginHint
		p.Prompt = req.Prompt
		p.AccountID = req.Account.ID()
		for _, t := range req.UILocales {
			p.UILocales = append(p.UILocales, t.String())
		}
	}
	return p, nil
}

// IsExpired reports whether the request has expired at now.
func (p *pendingRequest) IsExpired(now time.Time) bool {
	return !p.Expiration.After(now)
}

// authCodeOptions returns the auth URL parameters for the request.
func (p *pendingRequest) authCodeOptions() []oauth2.AuthCodeOption {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", p.Nonce),
		oauth2.S256ChallengeOption(p.Verifier),
	}
	if p.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", p.LoginHint))
	}
	if p.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", string(p.Prompt)))
	}
	if len(p.UILocales) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("ui_locales", strings.Join(p.UILocales, " ")))
	}
	return opts
}

// NewID generates an ID with an optional prefix. The ID generated is
// suitable for a request's state or nonce.
func NewID(optionalPrefix string) (string, error) {
	const op = "oidc.NewID"
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", op, ErrIdGeneratorFailed, err)
	}
	if optionalPrefix != "" {
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	}
	return id, nil
}
