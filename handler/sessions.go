// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/broadcast"
	"github.com/haugen/mgtauth/oidc"
	"github.com/haugen/mgtauth/provider"
	"github.com/haugen/mgtauth/session"
	"golang.org/x/sync/singleflight"
)

// ProviderSource resolves the Provider for a request's session.
//
// Implementations must be concurrently safe, since the source will be used
// within a concurrent http.Handler.
type ProviderSource interface {
	Provider(w http.ResponseWriter, req *http.Request) (*provider.Provider, error)
}

// ProviderFunc is an adapter which allows a func to be used as a
// ProviderSource.
type ProviderFunc func(w http.ResponseWriter, req *http.Request) (*provider.Provider, error)

// Provider calls f(w, req)
func (f ProviderFunc) Provider(w http.ResponseWriter, req *http.Request) (*provider.Provider, error) {
	return f(w, req)
}

// NewProviderFunc creates the Provider for a session.
type NewProviderFunc func(ctx context.Context, sessionID string) (*provider.Provider, error)

// maxSweepInterval bounds how often idle sessions are looked for
const maxSweepInterval = time.Minute

// Sessions is a ProviderSource which keeps one Provider per session cookie.
//
// Only session ids issued by Sessions are accepted: a request without a
// session cookie, or with an id which is neither live nor known to the
// SessionLookupFunc, starts a new session with a new cookie. A session which
// isn't used for the cookie TTL is evicted and its Provider released. It is
// concurrently safe.
type Sessions struct {
	newProvider NewProviderFunc
	lookup      SessionLookupFunc
	cookieName  string
	secure      bool
	ttl         time.Duration
	now         func() time.Time
	logger      hclog.Logger

	// creating ensures a session's Provider is created once, without
	// holding mu while it signs in
	creating singleflight.Group

	mu             sync.Mutex
	live           map[string]*liveSession
	lastSweep      time.Time
	closed         bool
	unsubscribeBus func()
}

type liveSession struct {
	provider *provider.Provider
	lastUsed time.Time
}

// ensure that Sessions implements the ProviderSource interface
var _ ProviderSource = (*Sessions)(nil)

// NewSessions creates a Sessions which creates Providers with fn.
// Supported options:
//
//	WithLogger
//	WithCookieName
//	WithSecureCookie
//	WithCookieTTL
//	WithSessionLookup
//	WithBroadcaster
//	WithNow
func NewSessions(fn NewProviderFunc, opt ...Option) (*Sessions, error) {
	const op = "handler.NewSessions"
	if fn == nil {
		return nil, fmt.Errorf("%s: new provider func is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	s := &Sessions{
		newProvider: fn,
		lookup:      opts.withSessionLookup,
		cookieName:  opts.withCookieName,
		secure:      opts.withSecureCookie,
		ttl:         opts.withCookieTTL,
		now:         opts.withNowFunc,
		logger:      opts.withLogger.Named("sessions"),
		live:        map[string]*liveSession{},
	}
	if opts.withBroadcaster != nil {
		unsubscribe, err := opts.withBroadcaster.Subscribe(broadcast.LoginSuccess, s.loginSucceeded)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to subscribe to %s: %w", op, broadcast.LoginSuccess, err)
		}
		s.unsubscribeBus = unsubscribe
	}
	return s, nil
}

// Provider returns the Provider for the request's session, creating the
// session when the request doesn't have a valid one. It satisfies the
// ProviderSource interface.
func (s *Sessions) Provider(w http.ResponseWriter, req *http.Request) (*provider.Provider, error) {
	const op = "Sessions.Provider"
	ctx := req.Context()
	s.sweep()

	id := ""
	if c, err := req.Cookie(s.cookieName); err == nil && c.Value != "" {
		if p, ok := s.touch(c.Value); ok {
			return p, nil
		}
		known, err := s.known(ctx, c.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if known {
			id = c.Value
		} else {
			s.logger.Debug("unknown session replaced")
		}
	}
	if id == "" {
		var err error
		if id, err = session.NewID(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    id,
			Path:     "/",
			MaxAge:   int(s.ttl.Seconds()),
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
		s.logger.Debug("session started", "session", id)
	}

	p, err := s.create(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// create returns the session's Provider, creating it when it isn't live.
// Concurrent calls for the same id share one creation.
func (s *Sessions) create(ctx context.Context, id string) (*provider.Provider, error) {
	v, err, _ := s.creating.Do(id, func() (interface{}, error) {
		if p, ok := s.touch(id); ok {
			return p, nil
		}
		p, err := s.newProvider(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("unable to create provider: %w", err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			p.Done()
			return nil, ErrClosed
		}
		s.live[id] = &liveSession{provider: p, lastUsed: s.now()}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*provider.Provider), nil
}

// touch returns the live session's Provider and marks it used. An idle
// session is evicted instead.
func (s *Sessions) touch(id string) (*provider.Provider, bool) {
	now := s.now()
	s.mu.Lock()
	ls, ok := s.live[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if now.Sub(ls.lastUsed) >= s.ttl {
		delete(s.live, id)
		s.mu.Unlock()
		ls.provider.Done()
		return nil, false
	}
	ls.lastUsed = now
	s.mu.Unlock()
	return ls.provider, true
}

// known reports whether an id which isn't live was issued earlier.
func (s *Sessions) known(ctx context.Context, id string) (bool, error) {
	if s.lookup == nil {
		return false, nil
	}
	known, err := s.lookup(ctx, id)
	if err != nil {
		return false, fmt.Errorf("unable to look up session: %w", err)
	}
	return known, nil
}

// sweep evicts the idle sessions, at most once per sweep interval.
func (s *Sessions) sweep() {
	now := s.now()
	s.mu.Lock()
	if now.Sub(s.lastSweep) < min(s.ttl, maxSweepInterval) {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	var idle []*provider.Provider
	for id, ls := range s.live {
		if now.Sub(ls.lastUsed) >= s.ttl {
			idle = append(idle, ls.provider)
			delete(s.live, id)
		}
	}
	s.mu.Unlock()

	for _, p := range idle {
		p.Done()
	}
	if len(idle) > 0 {
		s.logger.Debug("idle sessions evicted", "count", len(idle))
	}
}

// loginSucceeded refreshes the state of the live session a login event
// names. Events for other sessions are ignored.
func (s *Sessions) loginSucceeded(ctx context.Context, e broadcast.Event) {
	var le oidc.LoginEvent
	if err := json.Unmarshal(e.Payload, &le); err != nil {
		s.logger.Warn("unable to decode login event", "error", err)
		return
	}
	if le.SessionID == "" {
		return
	}
	s.mu.Lock()
	ls, ok := s.live[le.SessionID]
	s.mu.Unlock()
	if ok {
		ls.provider.RefreshState(ctx)
	}
}

// Len returns the number of live sessions
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close releases every session's Provider and the bus subscription. Later
// sessions can't be created.
func (s *Sessions) Close() {
	s.mu.Lock()
	s.closed = true
	unsubscribe := s.unsubscribeBus
	s.unsubscribeBus = nil
	live := s.live
	s.live = map[string]*liveSession{}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, ls := range live {
		ls.provider.Done()
	}
}
