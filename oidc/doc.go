// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc acquires tokens from an OIDC provider (IdP) for a signed-in user,
using the authorization code flow with PKCE.

Provider is created once per IdP. It performs discovery, id_token
verification and the token endpoint requests.

Client is created for one user agent session. Its token cache and pending
requests are kept in a session.Store, so a web host can create a Client for
every inbound request. A Client acquires tokens:

  - silently: from its cache or with the cached refresh_token
    (AcquireTokenSilent)

  - with a redirect: the user agent is sent to the IdP and the flow completes
    when the IdP redirects back (LoginRedirect, AcquireTokenRedirect and
    HandleRedirectResponse)

  - with a popup: the IdP's page is opened in the system browser and the
    response is received by a loopback listener (LoginPopup,
    AcquireTokenPopup)

Errors which carry an OAuth2 error code are *AuthError. Use ErrorCode to get
the code from any error returned.

TestProvider is an in-process IdP which makes writing tests much easier.
*/
package oidc
