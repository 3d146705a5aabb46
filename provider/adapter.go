// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/oidc"
)

// Adapter wraps a TokenClient and classifies its results.
type Adapter struct {
	client TokenClient
	logger hclog.Logger
}

// NewAdapter creates an Adapter.
// Supported options:
//
//	WithLogger
func NewAdapter(client TokenClient, opt ...Option) (*Adapter, error) {
	const op = "provider.NewAdapter"
	if client == nil {
		return nil, fmt.Errorf("%s: token client is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	return &Adapter{
		client: client,
		logger: opts.withLogger.Named("adapter"),
	}, nil
}

// AcquireSilent acquires a token without user interaction.
func (a *Adapter) AcquireSilent(ctx context.Context, req *oidc.TokenRequest) Outcome {
	out := Classify(a.client.AcquireTokenSilent(ctx, req))
	if out.Kind != OutcomeToken {
		a.logger.Debug("silent acquisition failed", "outcome", out.Kind, "code", out.ErrorCode, "error", out.Err)
	}
	return out
}

// AcquireInteractiveRedirect starts a redirect flow for a token. Once it's
// started, the error returned is a *RedirectPendingError.
func (a *Adapter) AcquireInteractiveRedirect(ctx context.Context, req *oidc.TokenRequest) error {
	const op = "Adapter.AcquireInteractiveRedirect"
	u, err := a.client.AcquireTokenRedirect(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &RedirectPendingError{URL: u}
}

// AcquireInteractivePopup acquires a token with a popup.
func (a *Adapter) AcquireInteractivePopup(ctx context.Context, req *oidc.TokenRequest) Outcome {
	return Classify(a.client.AcquireTokenPopup(ctx, req))
}

// LoginRedirect starts a redirect flow to sign in. Once it's started, the
// error returned is a *RedirectPendingError.
func (a *Adapter) LoginRedirect(ctx context.Context, req *oidc.TokenRequest) error {
	const op = "Adapter.LoginRedirect"
	u, err := a.client.LoginRedirect(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &RedirectPendingError{URL: u}
}

// LoginPopup signs in with a popup.
func (a *Adapter) LoginPopup(ctx context.Context, req *oidc.TokenRequest) (*oidc.AuthResponse, error) {
	const op = "Adapter.LoginPopup"
	resp, err := a.client.LoginPopup(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// Logout signs out of the client. It always succeeds: errors are logged and
// the end session URL, which may be "", is returned.
func (a *Adapter) Logout(ctx context.Context) string {
	u, err := a.client.Logout(ctx)
	if err != nil {
		a.logger.Warn("logout failed", "error", err)
	}
	return u
}
