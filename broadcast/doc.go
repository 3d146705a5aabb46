// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package broadcast provides a small publish/subscribe event bus which delivers
authentication events (like LoginSuccess) to interested listeners.

MemBus delivers events synchronously within a process. RedisBus delivers
events through Redis pub/sub, so every replica of a web host sees a login
completed by any other replica.
*/
package broadcast
