// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
session is a package for key/value persistence scoped to one user session.

A Store survives the two phases of a redirect based authentication (the
request which sends the user agent to the IdP and the later callback
request), but it must not outlive the user's session.

Primary types provided by the package

* Store: the raw string key/value interface.

* MemStore: a process lifetime Store, useful for CLIs and tests.

* RedisStore: a Store backed by a redis hash per session with a sliding TTL.

* ScopeStore: a typed wrapper which persists scopes.Set values as JSON.
*/
package session
