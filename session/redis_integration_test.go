// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build integration

package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	require := require.New(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	conn, err := container.ConnectionString(ctx)
	require.NoError(err)
	opts, err := redis.ParseURL(conn)
	require.NoError(err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(client.Ping(ctx).Err())
	return client
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	client := startRedis(t)

	t.Run("round-trip", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, err := NewRedisStore(client, "alice", WithTTL(time.Minute))
		require.NoError(err)

		_, ok, err := s.Get(ctx, "k")
		require.NoError(err)
		assert.False(ok)

		require.NoError(s.Set(ctx, "k", "v"))
		got, ok, err := s.Get(ctx, "k")
		require.NoError(err)
		assert.True(ok)
		assert.Equal("v", got)

		ttl, err := client.TTL(ctx, s.Key()).Result()
		require.NoError(err)
		assert.Greater(ttl, time.Duration(0))

		require.NoError(s.Remove(ctx, "k"))
		_, ok, err = s.Get(ctx, "k")
		require.NoError(err)
		assert.False(ok)
	})
	t.Run("sessions-are-isolated", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewRedisStore(client, "a")
		require.NoError(err)
		b, err := NewRedisStore(client, "b")
		require.NoError(err)
		require.NoError(a.Set(ctx, "k", "from-a"))
		_, ok, err := b.Get(ctx, "k")
		require.NoError(err)
		assert.False(ok)
		exists, err := a.Exists(ctx)
		require.NoError(err)
		assert.True(exists)
		exists, err = b.Exists(ctx)
		require.NoError(err)
		assert.False(exists)

		require.NoError(a.Clear(ctx))
		_, ok, err = a.Get(ctx, "k")
		require.NoError(err)
		assert.False(ok)
		exists, err = a.Exists(ctx)
		require.NoError(err)
		assert.False(exists)
	})
	t.Run("scope-store", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rs, err := NewRedisStore(client, "scopes")
		require.NoError(err)
		s, err := NewScopeStore(rs)
		require.NoError(err)
		require.NoError(s.Set(ctx, "denied", []string{"mail.read"}))
		got, ok, err := s.Get(ctx, "denied")
		require.NoError(err)
		assert.True(ok)
		assert.Equal([]string{"mail.read"}, got.Strings())
	})
}
