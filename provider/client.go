// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"context"
	"net/url"

	"github.com/haugen/mgtauth/oidc"
)

// TokenClient is the OAuth client a Provider acquires tokens with.
type TokenClient interface {
	AcquireTokenSilent(ctx context.Context, req *oidc.TokenRequest) (*oidc.AuthResponse, error)

	// AcquireTokenRedirect and LoginRedirect start a redirect flow and return
	// the IdP URL the user agent must be sent to.
	AcquireTokenRedirect(ctx context.Context, req *oidc.TokenRequest) (string, error)
	LoginRedirect(ctx context.Context, req *oidc.TokenRequest) (string, error)

	AcquireTokenPopup(ctx context.Context, req *oidc.TokenRequest) (*oidc.AuthResponse, error)
	LoginPopup(ctx context.Context, req *oidc.TokenRequest) (*oidc.AuthResponse, error)

	// Logout returns the IdP's end session URL, which may be "".
	Logout(ctx context.Context) (string, error)

	Account(ctx context.Context) (*oidc.Account, error)
	LoginInProgress(ctx context.Context) (bool, error)
	CurrentRedirectTarget() string

	// HandleRedirectCallback registers the funcs called by
	// HandleRedirectResponse.
	HandleRedirectCallback(onSuccess oidc.SuccessFunc, onError oidc.ErrorFunc)
	HandleRedirectResponse(ctx context.Context, v url.Values) (*oidc.AuthResponse, error)
}

// ensure that *oidc.Client implements the TokenClient interface
var _ TokenClient = (*oidc.Client)(nil)
