// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"
)

// Store defines the session scoped key/value persistence used to carry state
// across the phases of an authentication flow. A missing key is reported by
// ok == false and is never an error. Implementations must be concurrently
// safe.
type Store interface {
	// Set the value for the key, replacing any existing value.
	Set(ctx context.Context, key, value string) error

	// Get the value for the key.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Remove the key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// MemStore is a Store that lives as long as the process which created it.
type MemStore struct {
	mu sync.Mutex
	m  map[string]string
}

// ensure that MemStore implements the Store interface
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore
func NewMemStore() *MemStore {
	return &MemStore{m: map[string]string{}}
}

// Set implements the Store.Set() interface function
func (s *MemStore) Set(_ context.Context, key, value string) error {
	const op = "MemStore.Set"
	if key == "" {
		return fmt.Errorf("%s: missing key: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

// Get implements the Store.Get() interface function
func (s *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

// Remove implements the Store.Remove() interface function
func (s *MemStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Len returns the number of keys in the store.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
