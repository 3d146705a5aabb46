// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// mgtauth signs users in to an OIDC provider and acquires access tokens for
// them, tracking each session's sign-in state.
//
// The packages are layered:
//
//	scopes     case-insensitive OAuth2 scope sets
//	session    per-session key/value stores (in memory or Redis)
//	broadcast  login notifications between components (in memory or Redis)
//	oidc       the OIDC client: silent, redirect and popup token acquisition
//	provider   the sign-in state machine and the denied-scope policy
//	handler    http.HandlerFuncs which expose a Provider to a web application
//
// See cmd/mgtauth for a server and command line built from them.
package mgtauth
