// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is prepended to every topic to create its Redis
// channel name.
const DefaultChannelPrefix = "mgtauth:broadcast:"

// RedisBus is a Bus which uses Redis pub/sub. Handlers are called from a
// goroutine per subscription, in the order events are received.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger hclog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*redis.PubSub]struct{}
}

// ensure that RedisBus implements the Bus interface
var _ Bus = (*RedisBus)(nil)

// NewRedisBus creates a new RedisBus.
// Supported options:
//
//	WithChannelPrefix
//	WithLogger
func NewRedisBus(client *redis.Client, opt ...Option) (*RedisBus, error) {
	const op = "broadcast.NewRedisBus"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	opts := getRedisOpts(opt...)
	return &RedisBus{
		client: client,
		prefix: opts.withChannelPrefix,
		logger: opts.withLogger.Named("broadcast"),
		subs:   map[*redis.PubSub]struct{}{},
	}, nil
}

// Channel returns the Redis channel name for topic
func (b *RedisBus) Channel(topic string) string {
	return b.prefix + topic
}

// Publish implements Bus
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	const op = "RedisBus.Publish"
	if topic == "" {
		return fmt.Errorf("%s: topic is empty: %w", op, ErrInvalidParameter)
	}
	if err := b.client.Publish(ctx, b.Channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("%s: unable to publish %q: %w", op, topic, err)
	}
	return nil
}

// Subscribe implements Bus. The subscription is confirmed with Redis before
// Subscribe returns.
func (b *RedisBus) Subscribe(topic string, h Handler) (func(), error) {
	const op = "RedisBus.Subscribe"
	switch {
	case topic == "":
		return nil, fmt.Errorf("%s: topic is empty: %w", op, ErrInvalidParameter)
	case h == nil:
		return nil, fmt.Errorf("%s: handler is nil: %w", op, ErrNilParameter)
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrClosed)
	}
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	ps := b.client.Subscribe(ctx, b.Channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("%s: unable to subscribe to %q: %w", op, topic, err)
	}

	b.mu.Lock()
	b.subs[ps] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			h(ctx, Event{Topic: topic, Payload: []byte(msg.Payload)})
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ps)
			b.mu.Unlock()
			if err := ps.Close(); err != nil {
				b.logger.Warn("unable to close subscription", "topic", topic, "error", err)
			}
			cancel()
			<-done
		})
	}, nil
}

// Close removes every subscription. It doesn't close the redis client.
func (b *RedisBus) Close() error {
	const op = "RedisBus.Close"
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = map[*redis.PubSub]struct{}{}
	b.mu.Unlock()

	var firstErr error
	for ps := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", op, err)
		}
	}
	return firstErr
}
