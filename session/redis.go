// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix is the RedisStore key prefix used when WithKeyPrefix is
	// not provided.
	DefaultKeyPrefix = "mgtauth:session:"

	// DefaultTTL is the RedisStore session lifetime used when WithTTL is not
	// provided.
	DefaultTTL = 8 * time.Hour
)

// RedisStore is a Store for a single session. Every session is one redis
// hash and each write resets the hash's expiration, so an idle session
// disappears after its TTL.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// ensure that RedisStore implements the Store interface
var _ Store = (*RedisStore)(nil)

type redisOptions struct {
	withKeyPrefix string
	withTTL       time.Duration
}

func redisDefaults() redisOptions {
	return redisOptions{
		withKeyPrefix: DefaultKeyPrefix,
		withTTL:       DefaultTTL,
	}
}

func getRedisOpts(opt ...Option) redisOptions {
	opts := redisDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// NewRedisStore creates a RedisStore for the session ID.
// Supported options:
//
//	WithKeyPrefix
//	WithTTL
func NewRedisStore(client redis.Cmdable, sessionID string, opt ...Option) (*RedisStore, error) {
	const op = "session.NewRedisStore"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%s: session id is empty: %w", op, ErrInvalidParameter)
	}
	opts := getRedisOpts(opt...)
	if opts.withTTL <= 0 {
		return nil, fmt.Errorf("%s: ttl must be greater than zero: %w", op, ErrInvalidParameter)
	}
	return &RedisStore{
		client: client,
		key:    opts.withKeyPrefix + sessionID,
		ttl:    opts.withTTL,
	}, nil
}

// Key returns the redis key of the session's hash.
func (s *RedisStore) Key() string { return s.key }

// Set implements the Store.Set() interface function
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	const op = "RedisStore.Set"
	if key == "" {
		return fmt.Errorf("%s: missing key: %w", op, ErrInvalidParameter)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, key, value)
		pipe.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrStore, err)
	}
	return nil
}

// Get implements the Store.Get() interface function
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "RedisStore.Get"
	v, err := s.client.HGet(ctx, s.key, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("%s: %w: %s", op, ErrStore, err)
	}
	return v, true, nil
}

// Remove implements the Store.Remove() interface function
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	const op = "RedisStore.Remove"
	if err := s.client.HDel(ctx, s.key, key).Err(); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrStore, err)
	}
	return nil
}

// Clear removes every key of the session.
func (s *RedisStore) Clear(ctx context.Context) error {
	const op = "RedisStore.Clear"
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrStore, err)
	}
	return nil
}

// Exists reports whether the session has any keys in redis. An expired
// session doesn't exist.
func (s *RedisStore) Exists(ctx context.Context) (bool, error) {
	const op = "RedisStore.Exists"
	n, err := s.client.Exists(ctx, s.key).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w: %s", op, ErrStore, err)
	}
	return n > 0, nil
}
