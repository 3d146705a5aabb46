// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"
)

// PopupCallbackPath is the path of the popup flow's loopback redirect URL.
const PopupCallbackPath = "/callback"

var popupPage = template.Must(template.New("popup").Parse(`<!DOCTYPE html>
<html>
<head><title>{{ .Title }}</title></head>
<body>
<h1 id="status">{{ .Title }}</h1>
{{- if .Code }}
<p id="error-code">{{ .Code }}</p>
<p id="error-description">{{ .Description }}</p>
{{- else }}
<p>You can close this window and return to the application.</p>
{{- end }}
</body>
</html>
`))

type popupPageData struct {
	Title       string
	Code        string
	Description string
}

type popupResult struct {
	resp *AuthResponse
	err  error
}

// AcquireTokenPopup acquires an access_token interactively using a "popup":
// the IdP's auth URL is opened with the client's popup opener (by default
// the system browser), and the authorization response is received by a
// loopback listener. It blocks until the response arrives, ctx is done, or
// the Config's PopupTimeout elapses.
//
// Errors are *AuthError with the IdP's error code, or with user_cancelled,
// popup_window_timeout or popup_window_error when the popup doesn't complete.
func (c *Client) AcquireTokenPopup(ctx context.Context, req *TokenRequest) (*AuthResponse, error) {
	const op = "Client.AcquireTokenPopup"
	resp, err := c.popup(ctx, req, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// LoginPopup signs in using a popup. See AcquireTokenPopup.
func (c *Client) LoginPopup(ctx context.Context, req *TokenRequest) (*AuthResponse, error) {
	const op = "Client.LoginPopup"
	resp, err := c.popup(ctx, req, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

func (c *Client) popup(ctx context.Context, req *TokenRequest, login bool) (*AuthResponse, error) {
	if c.popupOpener == nil {
		return nil, NewAuthError(CodePopupError, "no popup opener", ErrPopupFailed)
	}
	l, err := net.Listen("tcp", c.loopbackAddr)
	if err != nil {
		return nil, NewAuthError(CodePopupError, "unable to start loopback listener", err)
	}
	redirectURL := fmt.Sprintf("http://%s%s", l.Addr().String(), PopupCallbackPath)

	timeout := c.provider.config.popupTimeout()
	r, err := newPendingRequest(req, c.requestScopes(req), redirectURL, login, interactionPopup, c.now().Add(timeout))
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	if login {
		c.popupLogins.Add(1)
		defer c.popupLogins.Add(-1)
	}

	// the result is buffered so the handler never blocks after the caller
	// has given up
	resultCh := make(chan popupResult, 1)
	var once sync.Once
	mux := http.NewServeMux()
	mux.HandleFunc(PopupCallbackPath, func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !IsCallback(req.Form) {
			http.Error(w, "not an authorization response", http.StatusBadRequest)
			return
		}
		if req.Form.Get("state") != r.State {
			// not the response to this popup, keep waiting
			http.Error(w, "unknown state", http.StatusBadRequest)
			return
		}
		handled := false
		once.Do(func() {
			handled = true
			resp, err := c.complete(ctx, r, req.Form)
			resultCh <- popupResult{resp: resp, err: err}
			writePopupPage(w, err)
		})
		if !handled {
			http.Error(w, "authorization response already received", http.StatusConflict)
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Warn("loopback listener failed", "error", err)
		}
	}()
	defer srv.Close()

	authURL := c.provider.authURL(r)
	c.logger.Debug("popup started", "login", login, "redirect_url", redirectURL)
	if err := c.popupOpener.Navigate(ctx, authURL); err != nil {
		return nil, NewAuthError(CodePopupError, "unable to open popup", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, NewAuthError(CodeUserCancelled, "popup was cancelled", ctx.Err())
	case <-timer.C:
		return nil, NewAuthError(CodePopupTimeout, fmt.Sprintf("no response within %s", timeout), ErrPopupFailed)
	}
}

func writePopupPage(w http.ResponseWriter, err error) {
	data := popupPageData{Title: "Authentication complete"}
	status := http.StatusOK
	if err != nil {
		data.Title = "Authentication failed"
		data.Code = ErrorCode(err)
		if data.Code == "" {
			data.Code = "server_error"
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			data.Description = authErr.Description
		}
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = popupPage.Execute(w, data)
}
