// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/broadcast"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// DefaultCookieName is the name of the session cookie
const DefaultCookieName = "mgtauth_session"

// options is the set of available options for the handlers and Sessions
type options struct {
	withLogger         hclog.Logger
	withHomeURL        string
	withSuccessFn      SuccessResponseFunc
	withErrorFn        ErrorResponseFunc
	withMetricsHandler http.Handler
	withCookieName     string
	withSecureCookie   bool
	withCookieTTL      time.Duration
	withSessionLookup  SessionLookupFunc
	withBroadcaster    broadcast.Bus
	withNowFunc        func() time.Time
}

func defaults() options {
	return options{
		withLogger:     hclog.NewNullLogger(),
		withHomeURL:    "/",
		withSuccessFn:  SuccessPage,
		withErrorFn:    ErrorPage,
		withCookieName: DefaultCookieName,
		withCookieTTL:  8 * time.Hour,
		withNowFunc:    time.Now,
	}
}

func getOpts(opt ...Option) options {
	opts := defaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		if o, ok := o.(*options); ok {
			o.withLogger = l
		}
	}
}

// WithHomeURL provides an optional URL the user agent is sent to after a
// popup login or a logout without an end session URL. The default is "/".
func WithHomeURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && u != "" {
			o.withHomeURL = u
		}
	}
}

// WithSuccessFn provides an optional SuccessResponseFunc for the redirect
// callback. The default is SuccessPage.
func WithSuccessFn(fn SuccessResponseFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && fn != nil {
			o.withSuccessFn = fn
		}
	}
}

// WithErrorFn provides an optional ErrorResponseFunc. The default is
// ErrorPage.
func WithErrorFn(fn ErrorResponseFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && fn != nil {
			o.withErrorFn = fn
		}
	}
}

// WithMetricsHandler provides an optional handler which NewRouter serves at
// /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withMetricsHandler = h
		}
	}
}

// WithCookieName provides an optional session cookie name. The default is
// DefaultCookieName.
func WithCookieName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && name != "" {
			o.withCookieName = name
		}
	}
}

// WithSecureCookie marks the session cookie as Secure
func WithSecureCookie(secure bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withSecureCookie = secure
		}
	}
}

// WithCookieTTL provides an optional session lifetime: the session cookie's
// max age and how long an idle session stays live. The default is 8h.
func WithCookieTTL(ttl time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && ttl > 0 {
			o.withCookieTTL = ttl
		}
	}
}

// SessionLookupFunc reports whether a session id which isn't live in this
// process was issued earlier, for example by another replica sharing the
// session store.
type SessionLookupFunc func(ctx context.Context, sessionID string) (bool, error)

// WithSessionLookup provides an optional SessionLookupFunc. Without one, a
// session cookie is only accepted while its session is live in this process.
func WithSessionLookup(fn SessionLookupFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withSessionLookup = fn
		}
	}
}

// WithBroadcaster provides an optional broadcast.Bus. Sessions subscribes to
// broadcast.LoginSuccess once and refreshes the state of the live session an
// event names.
func WithBroadcaster(b broadcast.Bus) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withBroadcaster = b
		}
	}
}

// WithNow provides an optional func for the current time
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
