// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/haugen/mgtauth/session"
	"github.com/redis/go-redis/v9"
)

// newRedisClient connects to the Redis URL, or returns nil when it's "".
func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	const op = "newRedisClient"
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: unable to reach redis: %w", op, err)
	}
	return rdb, nil
}

// newStore returns the session's store: a RedisStore when there's a redis
// client and a MemStore otherwise.
func newStore(rdb *redis.Client, sessionID string, ttl time.Duration) (session.Store, error) {
	if rdb == nil {
		return session.NewMemStore(), nil
	}
	return session.NewRedisStore(rdb, sessionID, session.WithTTL(ttl))
}
