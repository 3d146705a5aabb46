// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/oidc"
	"github.com/haugen/mgtauth/provider"
)

// cliSessionID is the session of the command line. Without redis the
// session ends with the command.
const cliSessionID = "cli"

// cliProvider creates a popup Provider for the command line. The popup's
// redirect URL is replaced with the loopback listener's, so the configured
// redirect URL only needs to be valid.
func cliProvider(ctx context.Context, cfg *config, logger hclog.Logger, clientOpts ...oidc.Option) (p *provider.Provider, cleanup func(), err error) {
	const op = "cliProvider"
	oc, err := cfg.oidcConfig(cfg.RedirectURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	idp, err := oidc.NewProvider(oc, oidc.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	rdb, err := newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		idp.Done()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	cleanup = func() {
		if p != nil {
			p.Done()
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		idp.Done()
	}
	store, err := newStore(rdb, cliSessionID, cfg.SessionTTL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	clientOpts = append([]oidc.Option{oidc.WithLogger(logger)}, clientOpts...)
	client, err := oidc.NewClient(idp, store, clientOpts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err = provider.New(ctx, client, store, cfg.providerOptions(provider.LoginTypePopup, logger)...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, cleanup, nil
}

func cliLogin(ctx context.Context, cfg *config, logger hclog.Logger, out io.Writer, clientOpts ...oidc.Option) error {
	const op = "cliLogin"
	p, cleanup, err := cliProvider(ctx, cfg, logger, clientOpts...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cleanup()
	if err := p.Login(ctx, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	fmt.Fprintf(out, "%s\n", p.State())
	return nil
}

// cliToken prints an access token for the scopes, signing in with the
// browser when needed.
func cliToken(ctx context.Context, cfg *config, logger hclog.Logger, out io.Writer, scopes []string, clientOpts ...oidc.Option) error {
	const op = "cliToken"
	p, cleanup, err := cliProvider(ctx, cfg, logger, clientOpts...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cleanup()
	token, err := p.GetAccessToken(ctx, scopes...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	fmt.Fprintf(out, "%s\n", token)
	return nil
}

func cliLogout(ctx context.Context, cfg *config, logger hclog.Logger, out io.Writer, clientOpts ...oidc.Option) error {
	const op = "cliLogout"
	p, cleanup, err := cliProvider(ctx, cfg, logger, clientOpts...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cleanup()
	if u := p.Logout(ctx); u != "" {
		fmt.Fprintf(out, "end the IdP session at %s\n", u)
	}
	fmt.Fprintf(out, "%s\n", p.State())
	return nil
}
