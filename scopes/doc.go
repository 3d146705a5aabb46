// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
scopes provides Set, an ordered and case-insensitive collection of OAuth
scope names, along with the baseline OIDC identity scopes (openid, profile)
which must never be treated as denied by a user.
*/
package scopes
