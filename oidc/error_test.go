// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      *AuthError
		wantMsg  string
		wantCode string
	}{
		{
			name:     "code-only",
			err:      &AuthError{Code: CodeLoginRequired},
			wantMsg:  "login_required",
			wantCode: CodeLoginRequired,
		},
		{
			name:     "with-description",
			err:      &AuthError{Code: CodeConsentRequired, Description: "AADSTS65001"},
			wantMsg:  "consent_required: AADSTS65001",
			wantCode: CodeConsentRequired,
		},
		{
			name:     "with-wrapped",
			err:      NewAuthError(CodeLoginRequired, "no account", ErrNoAccount),
			wantMsg:  "login_required: no account: no account",
			wantCode: CodeLoginRequired,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			assert.Equal(tt.wantMsg, tt.err.Error())
			assert.Equal(tt.wantCode, tt.err.ErrorCode())
		})
	}
}

func TestErrorCode(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	wrapped := fmt.Errorf("Client.AcquireTokenSilent: %w", NewAuthError(CodeInteractionRequired, "", ErrNoAccount))
	assert.Equal(CodeInteractionRequired, ErrorCode(wrapped))
	assert.Truef(errors.Is(wrapped, ErrNoAccount), "wanted \"%s\" but got \"%s\"", ErrNoAccount, wrapped)

	var authErr *AuthError
	assert.True(errors.As(wrapped, &authErr))

	assert.Equal("", ErrorCode(errors.New("plain")))
	assert.Equal("", ErrorCode(nil))
}
