// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// LoginSuccess is the topic published after a successful interactive login.
const LoginSuccess = "msal:loginSuccess"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrClosed           = errors.New("bus is closed")
)

// Event is a published event.
type Event struct {
	Topic   string
	Payload []byte
}

// Handler is called for every event published to a subscribed topic.
type Handler func(ctx context.Context, e Event)

// Bus defines a publish/subscribe event bus.
type Bus interface {
	// Publish sends the payload to every subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers h for topic. The returned func removes the
	// subscription and is safe to call more than once.
	Subscribe(topic string, h Handler) (unsubscribe func(), err error)
}

// MemBus is an in-process Bus. Handlers are called synchronously by Publish,
// in the order they subscribed.
type MemBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
}

type subscription struct {
	id int
	h  Handler
}

// ensure that MemBus implements the Bus interface
var _ Bus = (*MemBus)(nil)

// NewMemBus creates a new in-process Bus
func NewMemBus() *MemBus {
	return &MemBus{subs: map[string][]subscription{}}
}

// Publish implements Bus
func (b *MemBus) Publish(ctx context.Context, topic string, payload []byte) error {
	const op = "MemBus.Publish"
	if topic == "" {
		return fmt.Errorf("%s: topic is empty: %w", op, ErrInvalidParameter)
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	e := Event{Topic: topic, Payload: payload}
	for _, s := range subs {
		s.h(ctx, e)
	}
	return nil
}

// Subscribe implements Bus
func (b *MemBus) Subscribe(topic string, h Handler) (func(), error) {
	const op = "MemBus.Subscribe"
	switch {
	case topic == "":
		return nil, fmt.Errorf("%s: topic is empty: %w", op, ErrInvalidParameter)
	case h == nil:
		return nil, fmt.Errorf("%s: handler is nil: %w", op, ErrNilParameter)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[topic]
			for i, s := range subs {
				if s.id == id {
					b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// Subscribers returns the number of subscriptions to topic
func (b *MemBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
