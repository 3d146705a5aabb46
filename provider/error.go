// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")

	// ErrAuthFailure is returned when a token or login can't be obtained.
	ErrAuthFailure = errors.New("authentication failure")

	// ErrScopeDenied is returned when an interaction is required for scopes
	// the user already declined during this session.
	ErrScopeDenied = fmt.Errorf("scope denied: %w", ErrAuthFailure)

	// ErrFatal is returned for errors which can't be recovered with user
	// interaction. The provider is signed out when it's returned.
	ErrFatal = fmt.Errorf("unrecoverable: %w", ErrAuthFailure)

	// ErrNoResult is the cause of an ErrFatal when acquisition completes
	// without a token or an error.
	ErrNoResult = errors.New("no token acquisition result")

	// ErrRedirectPending is returned when the user agent must be sent to the
	// IdP. The result arrives later with the redirect response. Use errors.As
	// with a *RedirectPendingError to get the URL.
	ErrRedirectPending = errors.New("redirect pending")
)

// RedirectPendingError carries the IdP URL the user agent must be sent to in
// order to continue.
type RedirectPendingError struct {
	URL string
}

// ensure that RedirectPendingError implements the error interface
var _ error = (*RedirectPendingError)(nil)

func (e *RedirectPendingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRedirectPending, e.URL)
}

// Unwrap returns ErrRedirectPending
func (e *RedirectPendingError) Unwrap() error { return ErrRedirectPending }

// RedirectURL returns the URL of the *RedirectPendingError in err's chain, or
// "" if there isn't one.
func RedirectURL(err error) string {
	var rp *RedirectPendingError
	if errors.As(err, &rp) {
		return rp.URL
	}
	return ""
}
