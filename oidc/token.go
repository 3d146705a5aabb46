// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"github.com/haugen/mgtauth/scopes"
)

// Token types reported by an AuthResponse.
const (
	// TokenTypeIDToken is reported for responses to login requests.
	TokenTypeIDToken = "id_token"

	// TokenTypeAccessToken is reported for responses to token requests.
	TokenTypeAccessToken = "access_token"
)

// AuthResponse is the result of a successful token acquisition or login.
type AuthResponse struct {
	// TokenType is TokenTypeIDToken for logins and TokenTypeAccessToken for
	// token acquisitions.
	TokenType string

	AccessToken AccessToken
	IDToken     IDToken

	// Scopes granted for the AccessToken
	Scopes scopes.Set

	// ExpiresOn is the AccessToken's expiry. It's zero when the IdP didn't
	// provide one.
	ExpiresOn time.Time

	// Account is the signed-in account
	Account *Account

	// AppState is the caller's state carried through a redirect
	AppState string

	// FromCache is true when the AccessToken came from the token cache
	// without a request to the IdP.
	FromCache bool
}

// Account is the identity of the signed-in user, as asserted by the id_token.
type Account struct {
	Subject  string `json:"sub"`
	Issuer   string `json:"iss"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// ID returns a stable identifier for the account.
func (a *Account) ID() string {
	if a == nil {
		return ""
	}
	return a.Issuer + "#" + a.Subject
}

// idTokenClaims are the id_token claims used to create an Account
type idTokenClaims struct {
	Subject           string `json:"sub"`
	Issuer            string `json:"iss"`
	Nonce             string `json:"nonce"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

func (c idTokenClaims) account() *Account {
	username := c.PreferredUsername
	if username == "" {
		username = c.Email
	}
	return &Account{
		Subject:  c.Subject,
		Issuer:   c.Issuer,
		Username: username,
		Name:     c.Name,
	}
}
