// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/haugen/mgtauth/oidc"
)

// Element ids of the pages written by SuccessPage and ErrorPage
const (
	StatusID           = "status"
	UsernameID         = "username"
	ErrorCodeID        = "error-code"
	ErrorDescriptionID = "error-description"
)

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<p id="status">{{.Status}}</p>
{{- if .Username}}
<p id="username">{{.Username}}</p>
{{- end}}
{{- if .Code}}
<p id="error-code">{{.Code}}</p>
<p id="error-description">{{.Description}}</p>
{{- end}}
{{- if .HomeURL}}
<p><a href="{{.HomeURL}}">Continue</a></p>
{{- end}}
</body>
</html>
`))

type pageData struct {
	Title       string
	Status      string
	Username    string
	Code        string
	Description string
	HomeURL     string
}

func writePage(w http.ResponseWriter, status int, d pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = page.Execute(w, d)
}

// SuccessPage is the default SuccessResponseFunc. It writes an HTML page
// with the status "signed-in" for a login and "token-acquired" otherwise.
func SuccessPage(resp *oidc.AuthResponse, w http.ResponseWriter, _ *http.Request) {
	d := pageData{Title: "Signed in", Status: "token-acquired", HomeURL: "/"}
	if resp != nil && resp.TokenType == oidc.TokenTypeIDToken {
		d.Status = "signed-in"
	}
	if resp != nil && resp.Account != nil {
		d.Username = resp.Account.Username
	}
	writePage(w, http.StatusOK, d)
}

// ErrorPage is the default ErrorResponseFunc. It writes an HTML page with the
// status "error": 401 when there's an OAuth2 error code, 400 for a request
// which isn't an authorization response and 500 otherwise.
func ErrorPage(respErr *AuthErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	d := pageData{Title: "Sign in failed", Status: "error", HomeURL: "/"}
	switch {
	case respErr != nil:
		d.Code = respErr.Error
		d.Description = respErr.Description
		writePage(w, http.StatusUnauthorized, d)
		return
	case errors.Is(e, ErrNotCallback), errors.Is(e, ErrInvalidParameter):
		d.Code = "invalid_request"
		d.Description = e.Error()
		writePage(w, http.StatusBadRequest, d)
		return
	}
	d.Code = "server_error"
	if e != nil {
		d.Description = e.Error()
	}
	writePage(w, http.StatusInternalServerError, d)
}
