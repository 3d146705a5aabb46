// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrNilParameter              = errors.New("nil parameter")
	ErrInvalidCACert             = errors.New("invalid CA certificate")
	ErrInvalidIssuer             = errors.New("invalid issuer")
	ErrUnsupportedAlg            = errors.New("unsupported signing algorithm")
	ErrIdGeneratorFailed         = errors.New("id generation failed")
	ErrExpiredRequest            = errors.New("request is expired")
	ErrResponseStateInvalid      = errors.New("oidc response state")
	ErrMissingIdToken            = errors.New("id_token is missing")
	ErrMissingAccessToken        = errors.New("access_token is missing")
	ErrIdTokenVerificationFailed = errors.New("id_token verification failed")
	ErrInvalidNonce              = errors.New("invalid nonce")
	ErrInvalidAudience           = errors.New("invalid audience")
	ErrNotFound                  = errors.New("not found")
	ErrLoginFailed               = errors.New("login failed")
	ErrNoAccount                 = errors.New("no account")
	ErrPopupFailed               = errors.New("popup failed")
	ErrCache                     = errors.New("token cache")
)

// OAuth and OIDC error codes which are returned by an IdP or produced by the
// Client.
const (
	CodeLoginRequired       = "login_required"
	CodeConsentRequired     = "consent_required"
	CodeInteractionRequired = "interaction_required"
	CodeAccessDenied        = "access_denied"
	CodeInvalidGrant        = "invalid_grant"
	CodeUserCancelled       = "user_cancelled"
	CodePopupTimeout        = "popup_window_timeout"
	CodePopupError          = "popup_window_error"
)

// AuthError represents an OAuth2 error response, or an error the Client
// classifies with an OAuth2 error code. See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthError struct {
	// Code is the error code (for example: login_required)
	Code string

	// Description is the optional human readable error_description
	Description string

	// URI is the optional error_uri
	URI string

	// Wrapped is the optional underlying error
	Wrapped error
}

// ensure that AuthError implements the error interface
var _ error = (*AuthError)(nil)

// NewAuthError creates a new AuthError
func NewAuthError(code, description string, wrapped error) *AuthError {
	return &AuthError{
		Code:        code,
		Description: description,
		Wrapped:     wrapped,
	}
}

// Error implements the error interface
func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, ": %s", e.Wrapped)
	}
	return b.String()
}

// ErrorCode returns the error's code
func (e *AuthError) ErrorCode() string { return e.Code }

// Unwrap returns the wrapped error
func (e *AuthError) Unwrap() error { return e.Wrapped }

// ErrorCode returns the OAuth2 error code of the first error in err's chain
// which has one, or "" if none do.
func ErrorCode(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}
