// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/haugen/mgtauth/broadcast"
	"github.com/haugen/mgtauth/scopes"
	"github.com/haugen/mgtauth/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_LoginPopup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t, 0)
		p := TestNewProvider(t, tp)
		bus := broadcast.NewMemBus()
		published := 0
		_, err := bus.Subscribe(broadcast.LoginSuccess, func(context.Context, broadcast.Event) { published++ })
		require.NoError(err)

		var c *Client
		var inProgressDuringPopup bool
		userAgent := tp.UserAgent()
		opener := NavigatorFunc(func(ctx context.Context, u string) error {
			var err error
			inProgressDuringPopup, err = c.LoginInProgress(ctx)
			if err != nil {
				return err
			}
			assert.True(strings.Contains(u, "redirect_uri=http%3A%2F%2F127.0.0.1%3A"))
			return userAgent.Navigate(ctx, u)
		})
		c, err = NewClient(p, session.NewMemStore(), WithPopupOpener(opener), WithBroadcaster(bus))
		require.NoError(err)

		resp, err := c.LoginPopup(ctx, &TokenRequest{Scopes: scopes.New("Mail.Read")})
		require.NoError(err)
		assert.True(inProgressDuringPopup)
		assert.Equal(TokenTypeIDToken, resp.TokenType)
		assert.Equal("alice@example.com", resp.Account.Username)
		assert.Equal(1, published)

		inProgress, err := c.LoginInProgress(ctx)
		require.NoError(err)
		assert.False(inProgress)

		silent, err := c.AcquireTokenSilent(ctx, &TokenRequest{Scopes: scopes.New("Mail.Read")})
		require.NoError(err)
		assert.True(silent.FromCache)
		assert.Equal(resp.AccessToken, silent.AccessToken)
	})
	t.Run("acquire-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t, 0)
		c, err := NewClient(TestNewProvider(t, tp), session.NewMemStore(), WithPopupOpener(tp.UserAgent()))
		require.NoError(err)
		resp, err := c.AcquireTokenPopup(ctx, &TokenRequest{Scopes: scopes.New("Files.Read")})
		require.NoError(err)
		assert.Equal(TokenTypeAccessToken, resp.TokenType)
		assert.True(resp.Scopes.Contains("Files.Read"))
	})
	t.Run("idp-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t, 0)
		tp.SetAuthError(CodeConsentRequired, "AADSTS65001")
		client := tp.HTTPClient()
		var page string
		opener := NavigatorFunc(func(ctx context.Context, u string) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			b, err := io.ReadAll(resp.Body)
			page = string(b)
			return err
		})
		c, err := NewClient(TestNewProvider(t, tp), session.NewMemStore(), WithPopupOpener(opener))
		require.NoError(err)

		_, err = c.LoginPopup(ctx, nil)
		require.Error(err)
		assert.Equal(CodeConsentRequired, ErrorCode(err))
		assert.Contains(page, "Authentication failed")
		assert.Contains(page, "AADSTS65001")
	})
	t.Run("stray-callback-ignored", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t, 0)
		userAgent := tp.UserAgent()
		var strayStatus int
		opener := NavigatorFunc(func(ctx context.Context, u string) error {
			authURL, err := url.Parse(u)
			if err != nil {
				return err
			}
			stray := authURL.Query().Get("redirect_uri") + "?code=forged&state=forged"
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, stray, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			strayStatus = resp.StatusCode
			_ = resp.Body.Close()
			return userAgent.Navigate(ctx, u)
		})
		c, err := NewClient(TestNewProvider(t, tp), session.NewMemStore(), WithPopupOpener(opener))
		require.NoError(err)

		resp, err := c.LoginPopup(ctx, nil)
		require.NoError(err)
		assert.Equal(http.StatusBadRequest, strayStatus)
		assert.Equal("alice@example.com", resp.Account.Username)
	})
	t.Run("timeout", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t, 0)
		p := TestNewProvider(t, tp, WithPopupTimeout(50*time.Millisecond))
		c, err := NewClient(p, session.NewMemStore(), WithPopupOpener(NavigatorFunc(func(context.Context, string) error { return nil })))
		require.NoError(err)
		_, err = c.LoginPopup(ctx, nil)
		require.Error(err)
		assert.Equal(CodePopupTimeout, ErrorCode(err))

		inProgress, err := c.LoginInProgress(ctx)
		require.NoError(err)
		assert.False(inProgress)
	})
	t.Run("cancelled", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t, 0)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		c, err := NewClient(TestNewProvider(t, tp), session.NewMemStore(), WithPopupOpener(NavigatorFunc(func(context.Context, string) error {
			cancel()
			return nil
		})))
		require.NoError(err)
		_, err = c.AcquireTokenPopup(ctx, nil)
		require.Error(err)
		assert.Equal(CodeUserCancelled, ErrorCode(err))
		assert.Truef(errors.Is(err, context.Canceled), "wanted \"%s\" but got \"%s\"", context.Canceled, err)
	})
	t.Run("opener-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t, 0)
		c, err := NewClient(TestNewProvider(t, tp), session.NewMemStore(), WithPopupOpener(NavigatorFunc(func(context.Context, string) error {
			return errors.New("popup blocked")
		})))
		require.NoError(err)
		_, err = c.LoginPopup(ctx, nil)
		require.Error(err)
		assert.Equal(CodePopupError, ErrorCode(err))
	})
}

func TestWritePopupPage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "success",
			wantStatus: http.StatusOK,
			wantBody:   []string{"Authentication complete"},
		},
		{
			name:       "auth-error",
			err:        &AuthError{Code: CodeAccessDenied, Description: "<script>"},
			wantStatus: http.StatusUnauthorized,
			wantBody:   []string{"Authentication failed", "access_denied", "&lt;script&gt;"},
		},
		{
			name:       "other-error",
			err:        ErrExpiredRequest,
			wantStatus: http.StatusUnauthorized,
			wantBody:   []string{"server_error"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			w := httptest.NewRecorder()
			writePopupPage(w, tt.err)
			assert.Equal(tt.wantStatus, w.Code)
			for _, want := range tt.wantBody {
				assert.Contains(w.Body.String(), want)
			}
		})
	}
}
