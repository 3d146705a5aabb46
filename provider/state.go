// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"fmt"
	"strings"
	"sync"
)

// SignInState is the sign-in state of a Provider. The zero value is
// SignedOut.
type SignInState int

const (
	SignedOut SignInState = iota
	Loading
	SignedIn
)

var stateNames = map[SignInState]string{
	SignedOut: "SignedOut",
	Loading:   "Loading",
	SignedIn:  "SignedIn",
}

func (s SignInState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("SignInState(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s SignInState) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("provider.SignInState.MarshalText: unknown state %d: %w", int(s), ErrInvalidParameter)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names are case
// insensitive.
func (s *SignInState) UnmarshalText(b []byte) error {
	for st, n := range stateNames {
		if strings.EqualFold(n, string(b)) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("provider.SignInState.UnmarshalText: unknown state %q: %w", b, ErrInvalidParameter)
}

// Listener is notified of SignInState changes.
type Listener func(SignInState)

// StateMachine owns a SignInState. Every listener is notified of each change
// in the order the changes were made, starting with the state at the time it
// subscribed. Notifications are delivered one at a time: a change made while
// another call (or a listener) is delivering is queued, and the delivering
// call notifies it before returning.
type StateMachine struct {
	mu         sync.Mutex
	state      SignInState
	nextID     int
	subs       []stateSubscriber
	pending    []notification
	delivering bool
}

type stateSubscriber struct {
	id int
	fn Listener
}

type notification struct {
	state SignInState
	subs  []stateSubscriber
}

// NewStateMachine creates a StateMachine in the SignedOut state.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: SignedOut}
}

// State returns the current state
func (m *StateMachine) State() SignInState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set changes the state and notifies the listeners. It returns false, without
// notifying anyone, when the state is unchanged.
func (m *StateMachine) Set(s SignInState) bool {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return false
	}
	m.state = s
	subs := make([]stateSubscriber, len(m.subs))
	copy(subs, m.subs)
	m.enqueue(notification{state: s, subs: subs})
	return true
}

// Subscribe registers fn and calls it with the current state before any later
// change. The returned func removes the subscription and is safe to call more
// than once. A nil fn is ignored.
func (m *StateMachine) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	sub := stateSubscriber{id: id, fn: fn}
	m.subs = append(m.subs, sub)
	m.enqueue(notification{state: m.state, subs: []stateSubscriber{sub}})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, sub := range m.subs {
				if sub.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// enqueue queues n and delivers the queue unless another call is already
// delivering it. m.mu must be held; it is released before enqueue returns.
func (m *StateMachine) enqueue(n notification) {
	m.pending = append(m.pending, n)
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]
		for _, sub := range next.subs {
			if !m.subscribed(sub.id) {
				continue
			}
			m.mu.Unlock()
			m.notify(sub.fn, next.state)
			m.mu.Lock()
		}
	}
	m.delivering = false
	m.mu.Unlock()
}

// notify calls fn with m.mu released. A panicking listener drops the queue so
// later calls can deliver again.
func (m *StateMachine) notify(fn Listener, s SignInState) {
	defer func() {
		if r := recover(); r != nil {
			m.mu.Lock()
			m.delivering = false
			m.pending = nil
			m.mu.Unlock()
			panic(r)
		}
	}()
	fn(s)
}

// subscribed reports whether the subscription id is still registered. m.mu
// must be held.
func (m *StateMachine) subscribed(id int) bool {
	for _, sub := range m.subs {
		if sub.id == id {
			return true
		}
	}
	return false
}
