// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haugen/mgtauth/scopes"
)

// ScopeStore persists scopes.Set values in a Store as JSON arrays.
type ScopeStore struct {
	store Store
}

// NewScopeStore creates a ScopeStore on top of the store.
func NewScopeStore(store Store) (*ScopeStore, error) {
	const op = "session.NewScopeStore"
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	return &ScopeStore{store: store}, nil
}

// Set the scopes for the key.
func (s *ScopeStore) Set(ctx context.Context, key string, set scopes.Set) error {
	const op = "ScopeStore.Set"
	b, err := json.Marshal(set.Strings())
	if err != nil {
		return fmt.Errorf("%s: unable to encode scopes: %w", op, err)
	}
	if err := s.store.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get the scopes for the key. A missing key returns ok == false.
func (s *ScopeStore) Get(ctx context.Context, key string) (set scopes.Set, ok bool, err error) {
	const op = "ScopeStore.Get"
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false, fmt.Errorf("%s: %w: %s", op, ErrDecode, err)
	}
	if values == nil {
		// a stored JSON null is treated like a missing key
		return nil, false, nil
	}
	return scopes.New(values...), true, nil
}

// Delete the key.
func (s *ScopeStore) Delete(ctx context.Context, key string) error {
	const op = "ScopeStore.Delete"
	if err := s.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
