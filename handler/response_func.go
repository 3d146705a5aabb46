// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"errors"
	"net/http"

	"github.com/haugen/mgtauth/oidc"
)

// SuccessResponseFunc is used by Callback to create a http response when the
// redirect response is handled successfully.
//
// The AuthResponse is the result of the redirect flow: TokenType is
// oidc.TokenTypeIDToken for a login. The function should use the
// http.ResponseWriter to send back whatever content (headers, html, JSON,
// etc) it wishes to the user agent.
type SuccessResponseFunc func(resp *oidc.AuthResponse, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by the handlers to create a http response when a
// request fails.
//
// respErr is set when the failure carries an OAuth2 error code, either from
// the IdP's error response or from a token acquisition. e is always the error
// which caused the failure.
type ErrorResponseFunc func(respErr *AuthErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthErrorResponse represents OAuth2 error responses. See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

// authErrorResponse returns the AuthErrorResponse for the first error in
// err's chain with an OAuth2 error code, or nil when there's none.
func authErrorResponse(err error) *AuthErrorResponse {
	var ae *oidc.AuthError
	if errors.As(err, &ae) {
		return &AuthErrorResponse{
			Error:       ae.Code,
			Description: ae.Description,
			Uri:         ae.URI,
		}
	}
	if code := oidc.ErrorCode(err); code != "" {
		return &AuthErrorResponse{Error: code}
	}
	return nil
}
