// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/broadcast"
	"github.com/haugen/mgtauth/scopes"
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

// options is the set of available options for Provider and Adapter
type options struct {
	withLogger      hclog.Logger
	withLoginType   LoginType
	withScopes      scopes.Set
	withLoginHint   string
	withBroadcaster broadcast.Bus
	withMetrics     *Metrics
}

func defaults() options {
	return options{
		withLogger:    hclog.NewNullLogger(),
		withLoginType: LoginTypeRedirect,
		withScopes:    DefaultScopes(),
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

// WithLoginType provides an optional interactive flow. The default is
// LoginTypeRedirect.
func WithLoginType(t LoginType) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withLoginType = t
		}
	}
}

// WithScopes provides an optional set of default scopes. The default is
// DefaultScopes().
func WithScopes(s ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withScopes = scopes.New(s...)
		}
	}
}

// WithLoginHint provides an optional login hint
func WithLoginHint(hint string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withLoginHint = hint
		}
	}
}

// WithBroadcaster provides an optional broadcast.Bus. The Provider refreshes
// its state whenever a broadcast.LoginSuccess event is received. Each Provider
// holds its own subscription, so it suits a host with a single session.
func WithBroadcaster(b broadcast.Bus) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withBroadcaster = b
		}
	}
}

// WithMetrics provides optional Metrics
func WithMetrics(m *Metrics) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withMetrics = m
		}
	}
}
