// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/haugen/mgtauth/scopes"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is local server that supports test provider capabilities which
// make writing tests much easier. It implements the authorization code flow
// with PKCE, the refresh_token grant and RP-initiated logout.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	allowLoopback       bool
	replySubject        string
	replyUsername       string
	replyName           string
	customClaims        map[string]interface{}
	deniedScopes        scopes.Set
	expiresIn           time.Duration
	omitIDToken         bool
	omitRefreshToken    bool
	disableEndSession   bool
	authErrorCode       string
	authErrorDesc       string
	refreshErrorCode    string
	refreshErrorDesc    string

	nextID        int
	codes         map[string]testAuthCode
	refreshTokens map[string]testGrant
	grantCounts   map[string]int

	signingKey *ecdsa.PrivateKey

	t *testing.T
}

// testAuthCode is an issued authorization code and the request it was
// issued for.
type testAuthCode struct {
	nonce         string
	challenge     string
	redirectURI   string
	scopes        scopes.Set
	subject       string
	username      string
	name          string
	customClaims  map[string]interface{}
	codeExpiresAt time.Time
}

// testGrant is what a refresh_token was issued for.
type testGrant struct {
	scopes   scopes.Set
	subject  string
	username string
	name     string
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider. When port is zero, any
// free port is used.
func StartTestProvider(t *testing.T, port int) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		allowedRedirectURIs: []string{
			"https://example.com/callback",
		},
		allowLoopback: true,
		replySubject:  "alice",
		replyUsername: "alice@example.com",
		replyName:     "Alice Anderson",
		expiresIn:     time.Hour,
		codes:         map[string]testAuthCode{},
		refreshTokens: map[string]testGrant{},
		grantCounts:   map[string]int{},
		t:             t,
	}
	var err error
	p.signingKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	p.jwks = &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{Key: &p.signingKey.PublicKey, Algorithm: string(ES256), Use: "sig"},
		},
	}

	p.httpServer = httptestNewUnstartedServerWithPort(t, p, port)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows. An empty clientSecret configures a public client.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. If not configured a sample of
// "https://example.com/callback" is used. Loopback redirect URIs are allowed
// unless DisallowLoopback is called.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// DisallowLoopback rejects http://127.0.0.1 redirect URIs which aren't
// explicitly allowed.
func (p *TestProvider) DisallowLoopback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowLoopback = false
}

// SetUser configures the user the provider authenticates.
func (p *TestProvider) SetUser(subject, username, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = subject
	p.replyUsername = username
	p.replyName = name
}

// SetCustomClaims lets you set claims to return in the id_tokens issued by
// the OIDC workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetDeniedScopes configures scopes the user never consents to. They're
// removed from the scopes granted.
func (p *TestProvider) SetDeniedScopes(s ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deniedScopes = scopes.New(s...)
}

// SetExpiresIn configures the lifetime of issued access_tokens.
func (p *TestProvider) SetExpiresIn(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = d
}

// SetAuthError makes /auth redirect with the error code and description. An
// empty code clears it.
func (p *TestProvider) SetAuthError(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authErrorCode = code
	p.authErrorDesc = description
}

// SetRefreshError makes the refresh_token grant fail with the error code and
// description. An empty code clears it.
func (p *TestProvider) SetRefreshError(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshErrorCode = code
	p.refreshErrorDesc = description
}

// OmitIDTokens forces an error state where the /token endpoint does not return
// id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitRefreshTokens makes the /token endpoint stop issuing refresh_tokens.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// DisableEndSession omits the end_session_endpoint from the discovery
// document.
func (p *TestProvider) DisableEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableEndSession = true
}

// GrantCount returns how many successful /token requests were made with the
// grant type.
func (p *TestProvider) GrantCount(grantType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grantCounts[grantType]
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKey returns the ES256 key the provider signs id_tokens with.
func (p *TestProvider) SigningKey() *ecdsa.PrivateKey { return p.signingKey }

// HTTPClient returns an http.Client which trusts the provider's CA cert and
// follows redirects, so it can play the user agent.
func (p *TestProvider) HTTPClient() *http.Client {
	p.t.Helper()
	pool := x509.NewCertPool()
	require.True(p.t, pool.AppendCertsFromPEM([]byte(p.caCert)))
	tr := cleanhttp.DefaultTransport()
	tr.TLSClientConfig = &tls.Config{RootCAs: pool}
	return &http.Client{Transport: tr}
}

// UserAgent returns a Navigator which plays the user agent: it requests the
// URL and follows the redirects, so an auth URL ends at the client's
// redirect URL.
func (p *TestProvider) UserAgent() Navigator {
	client := p.HTTPClient()
	return NavigatorFunc(func(ctx context.Context, u string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Body.Close()
	})
}

// Authorize performs the /auth request for the auth URL like a user agent,
// but returns the authorization response's query parameters instead of
// following the redirect to the client.
func (p *TestProvider) Authorize(authURL string) (url.Values, error) {
	client := p.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Get(authURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("unexpected status %d from /auth", resp.StatusCode)
	}
	loc, err := resp.Location()
	if err != nil {
		return nil, err
	}
	return loc.Query(), nil
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// redirectAllowed must be called with p.mu held
func (p *TestProvider) redirectAllowed(redirectURI string) bool {
	for _, u := range p.allowedRedirectURIs {
		if u == redirectURI {
			return true
		}
	}
	if !p.allowLoopback {
		return false
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return false
	}
	return u.Scheme == "http" && u.Hostname() == "127.0.0.1"
}

// newID must be called with p.mu held
func (p *TestProvider) newID(prefix string) string {
	p.nextID++
	return prefix + "_" + strconv.Itoa(p.nextID)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reply := struct {
			Issuer             string   `json:"issuer"`
			AuthEndpoint       string   `json:"authorization_endpoint"`
			TokenEndpoint      string   `json:"token_endpoint"`
			JWKSURI            string   `json:"jwks_uri"`
			EndSessionEndpoint string   `json:"end_session_endpoint,omitempty"`
			Algorithms         []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:             p.Addr(),
			AuthEndpoint:       p.Addr() + "/auth",
			TokenEndpoint:      p.Addr() + "/token",
			JWKSURI:            p.Addr() + "/certs",
			EndSessionEndpoint: p.Addr() + "/logout",
			Algorithms:         []string{string(ES256)},
		}
		if p.disableEndSession {
			reply.EndSessionEndpoint = ""
		}

		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/auth":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		redirectURI := qv.Get("redirect_uri")
		if !p.redirectAllowed(redirectURI) {
			w.WriteHeader(http.StatusBadRequest)
			_ = p.writeJSON(w, map[string]string{"error": "invalid_request", "error_description": "redirect_uri is not allowed"})
			return
		}

		requested := scopes.Parse(qv.Get("scope"))
		switch {
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "unknown client_id")
			return
		case !requested.Contains(scopes.OpenID):
			p.writeAuthErrorResponse(w, req, "invalid_scope", "openid scope is required")
			return
		case qv.Get("state") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		case qv.Get("code_challenge") == "" || qv.Get("code_challenge_method") != "S256":
			p.writeAuthErrorResponse(w, req, "invalid_request", "S256 code_challenge is required")
			return
		case p.authErrorCode != "":
			p.writeAuthErrorResponse(w, req, p.authErrorCode, p.authErrorDesc)
			return
		}

		code := p.newID("code")
		p.codes[code] = testAuthCode{
			nonce:         qv.Get("nonce"),
			challenge:     qv.Get("code_challenge"),
			redirectURI:   redirectURI,
			scopes:        requested.Without(p.deniedScopes...),
			subject:       p.replySubject,
			username:      p.replyUsername,
			name:          p.replyName,
			customClaims:  p.customClaims,
			codeExpiresAt: time.Now().Add(time.Minute),
		}

		redirectURI += "?state=" + url.QueryEscape(qv.Get("state")) +
			"&code=" + url.QueryEscape(code)

		http.Redirect(w, req, redirectURI, http.StatusFound)

		return

	case "/certs":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := p.writeJSON(w, p.jwks); err != nil {
			return
		}

	case "/logout":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><h1>Signed out</h1></body></html>"))

	case "/token":
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := req.ParseForm(); err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		clientID, clientSecret, ok := req.BasicAuth()
		if !ok {
			clientID, clientSecret = req.PostFormValue("client_id"), req.PostFormValue("client_secret")
		}
		if clientID != p.clientID || clientSecret != p.clientSecret {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}

		switch grantType := req.PostFormValue("grant_type"); grantType {
		case "authorization_code":
			p.serveAuthCodeGrant(w, req)
		case "refresh_token":
			p.serveRefreshGrant(w, req)
		default:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// serveAuthCodeGrant must be called with p.mu held
func (p *TestProvider) serveAuthCodeGrant(w http.ResponseWriter, req *http.Request) {
	code := req.PostFormValue("code")
	ac, ok := p.codes[code]
	// codes are single use
	delete(p.codes, code)
	switch {
	case !ok || time.Now().After(ac.codeExpiresAt):
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
		return
	case req.PostFormValue("redirect_uri") != ac.redirectURI:
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "redirect_uri doesn't match")
		return
	case s256(req.PostFormValue("code_verifier")) != ac.challenge:
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code_verifier doesn't match")
		return
	}
	g := testGrant{scopes: ac.scopes, subject: ac.subject, username: ac.username, name: ac.name}
	p.grantCounts["authorization_code"]++
	p.writeTokenReply(w, g, ac.nonce, ac.customClaims, true)
}

// serveRefreshGrant must be called with p.mu held
func (p *TestProvider) serveRefreshGrant(w http.ResponseWriter, req *http.Request) {
	if p.refreshErrorCode != "" {
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, p.refreshErrorCode, p.refreshErrorDesc)
		return
	}
	g, ok := p.refreshTokens[req.PostFormValue("refresh_token")]
	if !ok {
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unknown refresh_token")
		return
	}
	p.grantCounts["refresh_token"]++
	p.writeTokenReply(w, g, "", p.customClaims, false)
}

// writeTokenReply must be called with p.mu held
func (p *TestProvider) writeTokenReply(w http.ResponseWriter, g testGrant, nonce string, customClaims map[string]interface{}, withIDToken bool) {
	now := time.Now()
	reply := struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
		RefreshToken string `json:"refresh_token,omitempty"`
		IDToken      string `json:"id_token,omitempty"`
		Scope        string `json:"scope"`
	}{
		AccessToken: p.newID("at"),
		TokenType:   "Bearer",
		ExpiresIn:   int64(p.expiresIn / time.Second),
		Scope:       g.scopes.String(),
	}
	if !p.omitRefreshToken {
		reply.RefreshToken = p.newID("rt")
		p.refreshTokens[reply.RefreshToken] = g
	}
	if withIDToken && !p.omitIDToken {
		stdClaims := jwt.Claims{
			Subject:   g.subject,
			Issuer:    p.Addr(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
			Audience:  jwt.Audience{p.clientID},
		}
		privateClaims := map[string]interface{}{
			"preferred_username": g.username,
			"name":               g.name,
		}
		if nonce != "" {
			privateClaims["nonce"] = nonce
		}
		for k, v := range customClaims {
			privateClaims[k] = v
		}
		reply.IDToken = TestSignJWT(p.t, p.signingKey, stdClaims, privateClaims)
	}
	_ = p.writeJSON(w, &reply)
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
