// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
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

// WithNow provides an optional func for determining what the current time it
// is, for: Config, Client
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *configOptions:
			v.withNowFunc = now
		case *clientOptions:
			v.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger for: Provider, Client
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *providerOptions:
			v.withLogger = l
		case *clientOptions:
			v.withLogger = l
		}
	}
}

// WithExpirySkew provides an optional expiry skew used when deciding if a
// cached access_token can still be used, for: Client
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withExpirySkew = d
		}
	}
}

// WithNavigator provides an optional Navigator which the Client uses to send
// the user agent to the IdP for redirect flows and to the end session
// endpoint on logout.
func WithNavigator(n Navigator) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withNavigator = n
		}
	}
}

// WithPopupOpener provides an optional Navigator used to open the "popup"
// (usually the system browser) for popup flows. The default is OpenURL.
func WithPopupOpener(n Navigator) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withPopupOpener = n
		}
	}
}

// WithLoopbackAddr provides an optional host:port for the popup flow's
// loopback listener. The default is 127.0.0.1:0 (any free port).
func WithLoopbackAddr(addr string) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withLoopbackAddr = addr
		}
	}
}

// WithBroadcaster provides an optional broadcast.Bus. The Client publishes a
// broadcast.LoginSuccess event after every successful interactive login.
func WithBroadcaster(b broadcast.Bus) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withBroadcaster = b
		}
	}
}

// WithSessionID provides an optional id of the client's session, which is
// sent with its broadcast.LoginSuccess events.
func WithSessionID(id string) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withSessionID = id
		}
	}
}
