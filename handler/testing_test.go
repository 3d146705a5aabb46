// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haugen/mgtauth/oidc"
	"github.com/haugen/mgtauth/provider"
	"github.com/haugen/mgtauth/session"
	"github.com/stretchr/testify/require"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

// testEnv is an application served by NewRouter for a TestProvider.
type testEnv struct {
	tp       *oidc.TestProvider
	sessions *Sessions
	srv      *httptest.Server
}

func newTestEnv(t *testing.T, loginType provider.LoginType, opt ...Option) *testEnv {
	t.Helper()
	require := require.New(t)
	tp := oidc.StartTestProvider(t, 0)
	op := oidc.TestNewProvider(t, tp)
	sessions, err := NewSessions(func(ctx context.Context, _ string) (*provider.Provider, error) {
		store := session.NewMemStore()
		c, err := oidc.NewClient(op, store, oidc.WithPopupOpener(tp.UserAgent()))
		if err != nil {
			return nil, err
		}
		return provider.New(ctx, c, store, provider.WithLoginType(loginType))
	}, opt...)
	require.NoError(err)
	t.Cleanup(sessions.Close)

	router, err := NewRouter(sessions, opt...)
	require.NoError(err)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{tp: tp, sessions: sessions, srv: srv}
}

// userAgent returns a client with its own cookie jar which doesn't follow
// redirects.
func (e *testEnv) userAgent(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// get requests the path and returns the response with its body read.
func (e *testEnv) get(t *testing.T, ua *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := ua.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// state returns the session's StateResponse
func (e *testEnv) state(t *testing.T, ua *http.Client) StateResponse {
	t.Helper()
	resp, body := e.get(t, ua, StatePath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s StateResponse
	require.NoError(t, json.Unmarshal([]byte(body), &s))
	return s
}

// pageText returns the text of the page's element with the id.
func pageText(t *testing.T, body, id string) (string, bool) {
	t.Helper()
	root, err := html.Parse(strings.NewReader(body))
	require.NoError(t, err)
	n, ok := scrape.Find(root, scrape.ById(id))
	if !ok {
		return "", false
	}
	return scrape.Text(n), true
}
