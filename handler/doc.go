// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
handler is a package that provides http.HandlerFuncs which expose a
provider.Provider to a web application: login, the redirect callback, token
acquisition, the sign-in state and logout.

Every handler resolves the Provider for the request's session through a
ProviderSource. Sessions is a ProviderSource which keeps one Provider per
session cookie.

	src, _ := handler.NewSessions(newProvider)
	defer src.Close()
	router, _ := handler.NewRouter(src)
	_ = http.ListenAndServe(":8080", router)
*/
package handler
