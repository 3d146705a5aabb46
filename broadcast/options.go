// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package broadcast

import "github.com/hashicorp/go-hclog"

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

type redisOptions struct {
	withChannelPrefix string
	withLogger        hclog.Logger
}

func redisDefaults() redisOptions {
	return redisOptions{
		withChannelPrefix: DefaultChannelPrefix,
		withLogger:        hclog.NewNullLogger(),
	}
}

func getRedisOpts(opt ...Option) redisOptions {
	opts := redisDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithChannelPrefix provides an optional channel prefix for a RedisBus
func WithChannelPrefix(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*redisOptions); ok {
			o.withChannelPrefix = p
		}
	}
}

// WithLogger provides an optional logger for a RedisBus
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		if o, ok := o.(*redisOptions); ok {
			o.withLogger = l
		}
	}
}
