// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
)

// Routes served by NewRouter
const (
	LoginPath    = "/login"
	CallbackPath = "/callback"
	TokenPath    = "/token"
	StatePath    = "/state"
	LogoutPath   = "/logout"
	MetricsPath  = "/metrics"
)

// NewRouter creates a router which serves the handlers of the package for
// the ProviderSource.
// Supported options:
//
//	WithLogger
//	WithHomeURL
//	WithSuccessFn
//	WithErrorFn
//	WithMetricsHandler
func NewRouter(src ProviderSource, opt ...Option) (http.Handler, error) {
	const op = "handler.NewRouter"
	if src == nil {
		return nil, fmt.Errorf("%s: provider source is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)

	login, err := Login(src, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	callback, err := Callback(src, opts.withSuccessFn, opts.withErrorFn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token, err := Token(src, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	state, err := State(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logout, err := Logout(src, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.withLogger.Named("http")))

	r.Get(LoginPath, login)
	r.Get(CallbackPath, callback)
	r.Post(CallbackPath, callback)
	r.Get(TokenPath, token)
	r.Get(StatePath, state)
	r.Get(LogoutPath, logout)
	r.Post(LogoutPath, logout)
	if opts.withMetricsHandler != nil {
		r.Method(http.MethodGet, MetricsPath, opts.withMetricsHandler)
	}
	return r, nil
}

func requestLogger(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			logger.Debug("request",
				"request_id", middleware.GetReqID(req.Context()),
				"method", req.Method,
				"path", req.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
