// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package broadcast

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

// testRedisClient returns a client which is never dialed.
func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = c.Close() })
	return c
}
