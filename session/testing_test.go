// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import "github.com/redis/go-redis/v9"

// testRedisClient returns a client which is never dialed; it's only useful
// for tests which don't send commands.
func testRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
}
