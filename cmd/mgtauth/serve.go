// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/broadcast"
	"github.com/haugen/mgtauth/handler"
	"github.com/haugen/mgtauth/oidc"
	"github.com/haugen/mgtauth/provider"
	"github.com/haugen/mgtauth/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app is the web application: one Provider per session over a shared IdP
// and broadcast bus.
type app struct {
	router   http.Handler
	sessions *handler.Sessions
	closers  []func()
}

// Close releases the app's resources, last acquired first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config, logger hclog.Logger, reg *prometheus.Registry, clientOpts ...oidc.Option) (*app, error) {
	const op = "newApp"
	loginType, err := cfg.loginType()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := &app{}
	oc, err := cfg.oidcConfig(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	idp, err := oidc.NewProvider(oc, oidc.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.closers = append(a.closers, idp.Done)

	rdb, err := newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var bus broadcast.Bus = broadcast.NewMemBus()
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		rb, err := broadcast.NewRedisBus(rdb, broadcast.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, func() { _ = rb.Close() })
		bus = rb
	}

	metrics := provider.NewMetrics(reg)
	clientOpts = append([]oidc.Option{oidc.WithLogger(logger), oidc.WithBroadcaster(bus)}, clientOpts...)
	newProvider := func(ctx context.Context, sessionID string) (*provider.Provider, error) {
		store, err := newStore(rdb, sessionID, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		client, err := oidc.NewClient(idp, store, append([]oidc.Option{oidc.WithSessionID(sessionID)}, clientOpts...)...)
		if err != nil {
			return nil, err
		}
		opts := append(cfg.providerOptions(loginType, logger.With("session", sessionID)),
			provider.WithMetrics(metrics),
		)
		return provider.New(ctx, client, store, opts...)
	}
	sessionOpts := []handler.Option{
		handler.WithLogger(logger),
		handler.WithCookieTTL(cfg.SessionTTL),
		handler.WithSecureCookie(cfg.SecureCookie),
		// the bus is subscribed once, not per session
		handler.WithBroadcaster(bus),
	}
	if rdb != nil {
		sessionOpts = append(sessionOpts, handler.WithSessionLookup(func(ctx context.Context, sessionID string) (bool, error) {
			store, err := session.NewRedisStore(rdb, sessionID, session.WithTTL(cfg.SessionTTL))
			if err != nil {
				return false, err
			}
			return store.Exists(ctx)
		}))
	}
	a.sessions, err = handler.NewSessions(newProvider, sessionOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.closers = append(a.closers, a.sessions.Close)

	a.router, err = handler.NewRouter(a.sessions,
		handler.WithLogger(logger),
		handler.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// serve serves the app until ctx is done.
func serve(ctx context.Context, cfg *config, logger hclog.Logger) error {
	const op = "serve"
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer a.Close()

	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	srv := &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	srvCh := make(chan error, 1)
	go func() {
		srvCh <- srv.Serve(l)
	}()
	logger.Info("serving", "addr", l.Addr().String(), "redirect_url", cfg.RedirectURL)

	select {
	case err := <-srvCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server closed with error: %w", op, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
