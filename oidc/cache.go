// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haugen/mgtauth/scopes"
)

// Keys the Client uses in its session.Store
const (
	cacheKey           = "mgtauth.token-cache"
	requestKeyPrefix   = "mgtauth.request."
	loginInProgressKey = "mgtauth.login-in-progress"
)

// cachedAccessToken is an access_token and the scopes it was granted for.
type cachedAccessToken struct {
	Scopes      []string  `json:"scopes"`
	AccessToken string    `json:"access_token"`
	ExpiresOn   time.Time `json:"expires_on,omitempty"`
}

// tokenCache is everything the Client knows about the signed-in account.
// Tokens are stored as plain strings since the token types redact
// themselves when marshaled.
type tokenCache struct {
	Account      *Account            `json:"account,omitempty"`
	IDToken      string              `json:"id_token,omitempty"`
	RefreshToken string              `json:"refresh_token,omitempty"`
	AccessTokens []cachedAccessToken `json:"access_tokens,omitempty"`
}

// lookup returns an unexpired access_token granted for every requested scope.
func (tc *tokenCache) lookup(requested scopes.Set, now time.Time, skew time.Duration) (cachedAccessToken, bool) {
	for _, at := range tc.AccessTokens {
		if !at.ExpiresOn.IsZero() && !at.ExpiresOn.After(now.Add(skew)) {
			continue
		}
		if scopes.New(at.Scopes...).ContainsAll(resourceScopes(requested)) {
			return at, true
		}
	}
	return cachedAccessToken{}, false
}

// add stores at, replacing any token for the same scopes and dropping
// tokens which have expired.
func (tc *tokenCache) add(at cachedAccessToken, now time.Time) {
	granted := scopes.New(at.Scopes...)
	kept := tc.AccessTokens[:0]
	for _, existing := range tc.AccessTokens {
		if granted.Equal(scopes.New(existing.Scopes...)) {
			continue
		}
		if !existing.ExpiresOn.IsZero() && !existing.ExpiresOn.After(now) {
			continue
		}
		kept = append(kept, existing)
	}
	tc.AccessTokens = append(kept, at)
}

func (c *Client) loadCache(ctx context.Context) (*tokenCache, error) {
	const op = "Client.loadCache"
	raw, ok, err := c.store.Get(ctx, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrCache, err)
	}
	tc := &tokenCache{}
	if !ok || raw == "" {
		return tc, nil
	}
	if err := json.Unmarshal([]byte(raw), tc); err != nil {
		// an unreadable cache is the same as an empty one
		c.logger.Warn("discarding unreadable token cache", "error", err)
		return &tokenCache{}, nil
	}
	return tc, nil
}

func (c *Client) saveCache(ctx context.Context, tc *tokenCache) error {
	const op = "Client.saveCache"
	b, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrCache, err)
	}
	if err := c.store.Set(ctx, cacheKey, string(b)); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrCache, err)
	}
	return nil
}

func (c *Client) savePending(ctx context.Context, r *pendingRequest) error {
	const op = "Client.savePending"
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.store.Set(ctx, requestKeyPrefix+r.State, string(b)); err != nil {
		return fmt.Errorf("%s: unable to store request: %w", op, err)
	}
	return nil
}

// loadPending returns the pending request for state, or ErrNotFound.
func (c *Client) loadPending(ctx context.Context, state string) (*pendingRequest, error) {
	const op = "Client.loadPending"
	raw, ok, err := c.store.Get(ctx, requestKeyPrefix+state)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read request: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: no request for state %q: %w", op, state, ErrNotFound)
	}
	var r pendingRequest
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("%s: unable to decode request: %w", op, err)
	}
	return &r, nil
}
