// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package provider tracks a user's sign-in state and acquires access tokens on
their behalf, escalating from silent acquisition to an interactive flow when
the IdP requires it.

A Provider composes:

  - an Adapter, which wraps a TokenClient (usually an *oidc.Client) and
    classifies each acquisition as an Outcome: a token, an interaction
    required, or a fatal error

  - a StateMachine, which owns the SignInState (SignedOut, Loading or
    SignedIn) and notifies subscribers of every change

  - a session.ScopeStore, which remembers the scopes awaiting consent during a
    redirect and the scopes the user has declined, so a declined scope is
    never prompted for again in the same session

A Provider is created once per user agent session and passed to whatever
needs tokens or the sign-in state.

	p, err := provider.New(ctx, client, store, provider.WithLoginType(provider.LoginTypePopup))
	if err != nil {
		// handle error
	}
	token, err := p.GetAccessToken(ctx, "User.Read")
*/
package provider
