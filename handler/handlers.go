// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/haugen/mgtauth/oidc"
	"github.com/haugen/mgtauth/provider"
	"github.com/haugen/mgtauth/scopes"
)

// Login creates a handler which signs the session in. A redirect provider
// sends the user agent to the IdP; a popup provider completes the login and
// sends the user agent to the home URL. An optional login_hint parameter
// replaces the provider's login hint.
// Supported options:
//
//	WithLogger
//	WithHomeURL
//	WithErrorFn
func Login(src ProviderSource, opt ...Option) (http.HandlerFunc, error) {
	const op = "handler.Login"
	if src == nil {
		return nil, fmt.Errorf("%s: provider source is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	logger := opts.withLogger.Named("login")
	return func(w http.ResponseWriter, req *http.Request) {
		p, err := src.Provider(w, req)
		if err != nil {
			opts.withErrorFn(nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		if hint := req.FormValue("login_hint"); hint != "" {
			p.SetLoginHint(hint)
		}
		err = p.Login(req.Context(), nil)
		switch {
		case errors.Is(err, provider.ErrRedirectPending):
			http.Redirect(w, req, provider.RedirectURL(err), http.StatusFound)
		case err != nil:
			logger.Debug("login failed", "error", err)
			opts.withErrorFn(authErrorResponse(err), err, w, req)
		default:
			http.Redirect(w, req, opts.withHomeURL, http.StatusFound)
		}
	}, nil
}

// Callback creates a handler for the IdP's redirect response, which may be a
// query or a form post. The SuccessResponseFunc is used to create a response
// when the response is handled successfully. The ErrorResponseFunc is used to
// create a response when it fails.
func Callback(src ProviderSource, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "handler.Callback"
	switch {
	case src == nil:
		return nil, fmt.Errorf("%s: provider source is nil: %w", op, ErrNilParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, ErrNilParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, ErrNilParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseForm(); err != nil {
			eFn(nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidParameter, err), w, req)
			return
		}
		if !oidc.IsCallback(req.Form) {
			eFn(nil, fmt.Errorf("%s: %w", op, ErrNotCallback), w, req)
			return
		}
		p, err := src.Provider(w, req)
		if err != nil {
			eFn(nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		resp, err := p.HandleRedirect(req.Context(), req.Form)
		if err != nil {
			eFn(authErrorResponse(err), err, w, req)
			return
		}
		sFn(resp, w, req)
	}, nil
}

// TokenResponse is the JSON body written by Token
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	Scopes      []string `json:"scopes"`
}

// Token creates a handler which writes an access_token, as a TokenResponse,
// for the space separated scopes of the scope parameter, or for the
// provider's default scopes when there are none.
//
// When the token needs a redirect, the user agent is sent to the IdP. A scope
// the user declined earlier in the session is refused with 403 and a
// scope_denied error. Other failures are 401 with the OAuth2 error code when
// there is one.
// Supported options:
//
//	WithLogger
func Token(src ProviderSource, opt ...Option) (http.HandlerFunc, error) {
	const op = "handler.Token"
	if src == nil {
		return nil, fmt.Errorf("%s: provider source is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	logger := opts.withLogger.Named("token")
	return func(w http.ResponseWriter, req *http.Request) {
		p, err := src.Provider(w, req)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, &AuthErrorResponse{Error: "server_error", Description: err.Error()})
			return
		}
		requested := scopes.Parse(req.FormValue("scope"))
		token, err := p.GetAccessToken(req.Context(), requested...)
		switch {
		case err == nil:
			if requested.IsEmpty() {
				requested = p.Scopes()
			}
			writeJSON(w, http.StatusOK, &TokenResponse{AccessToken: token, Scopes: requested.Strings()})
		case errors.Is(err, provider.ErrRedirectPending):
			http.Redirect(w, req, provider.RedirectURL(err), http.StatusFound)
		case errors.Is(err, provider.ErrScopeDenied):
			writeJSONError(w, http.StatusForbidden, &AuthErrorResponse{Error: "scope_denied", Description: err.Error()})
		default:
			logger.Debug("token acquisition failed", "error", err)
			respErr := authErrorResponse(err)
			if respErr == nil {
				respErr = &AuthErrorResponse{Error: "unauthorized", Description: err.Error()}
			}
			writeJSONError(w, http.StatusUnauthorized, respErr)
		}
	}, nil
}

// StateResponse is the JSON body written by State
type StateResponse struct {
	State           provider.SignInState `json:"state"`
	LoginType       string               `json:"login_type"`
	Scopes          []string             `json:"scopes"`
	RequestedScopes []string             `json:"requested_scopes,omitempty"`
	DeniedScopes    []string             `json:"denied_scopes"`
}

// State creates a handler which refreshes the session's sign-in state from
// its client and writes it as a StateResponse.
func State(src ProviderSource) (http.HandlerFunc, error) {
	const op = "handler.State"
	if src == nil {
		return nil, fmt.Errorf("%s: provider source is nil: %w", op, ErrNilParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		p, err := src.Provider(w, req)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, &AuthErrorResponse{Error: "server_error", Description: err.Error()})
			return
		}
		ctx := req.Context()
		denied, err := p.DeniedScopes(ctx)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, &AuthErrorResponse{Error: "server_error", Description: err.Error()})
			return
		}
		requested, _, err := p.RequestedScopes(ctx)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, &AuthErrorResponse{Error: "server_error", Description: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, &StateResponse{
			State:           p.RefreshState(ctx),
			LoginType:       p.LoginType().String(),
			Scopes:          p.Scopes().Strings(),
			RequestedScopes: requested.Strings(),
			DeniedScopes:    append([]string{}, denied...),
		})
	}, nil
}

// Logout creates a handler which signs the session out and sends the user
// agent to the IdP's end session URL, or to the home URL when there's none.
// Supported options:
//
//	WithHomeURL
//	WithErrorFn
func Logout(src ProviderSource, opt ...Option) (http.HandlerFunc, error) {
	const op = "handler.Logout"
	if src == nil {
		return nil, fmt.Errorf("%s: provider source is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	return func(w http.ResponseWriter, req *http.Request) {
		p, err := src.Provider(w, req)
		if err != nil {
			opts.withErrorFn(nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		u := p.Logout(req.Context())
		if u == "" {
			u = opts.withHomeURL
		}
		http.Redirect(w, req, u, http.StatusFound)
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, respErr *AuthErrorResponse) {
	writeJSON(w, status, respErr)
}
