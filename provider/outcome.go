// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"strings"

	"github.com/haugen/mgtauth/oidc"
)

// OutcomeKind is the kind of an Outcome
type OutcomeKind int

const (
	// OutcomeFatal is the zero value so an uninitialized Outcome is never
	// mistaken for a token.
	OutcomeFatal OutcomeKind = iota
	OutcomeToken
	OutcomeInteractionRequired
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeToken:
		return "token"
	case OutcomeInteractionRequired:
		return "interaction_required"
	default:
		return "fatal"
	}
}

// Outcome is the classified result of a token acquisition.
type Outcome struct {
	Kind OutcomeKind

	// Response is set for OutcomeToken
	Response *oidc.AuthResponse

	// ErrorCode is the error's OAuth2 code, when it has one
	ErrorCode string

	// Err is set for OutcomeInteractionRequired and OutcomeFatal
	Err error
}

// AccessToken returns the outcome's access_token, or "" when it isn't an
// OutcomeToken.
func (o Outcome) AccessToken() string {
	if o.Kind != OutcomeToken || o.Response == nil {
		return ""
	}
	return string(o.Response.AccessToken)
}

// Token creates an OutcomeToken
func Token(resp *oidc.AuthResponse) Outcome {
	return Outcome{Kind: OutcomeToken, Response: resp}
}

// InteractionRequired creates an OutcomeInteractionRequired
func InteractionRequired(code string, err error) Outcome {
	return Outcome{Kind: OutcomeInteractionRequired, ErrorCode: code, Err: err}
}

// Fatal creates an OutcomeFatal
func Fatal(err error) Outcome {
	if err == nil {
		err = ErrNoResult
	}
	return Outcome{Kind: OutcomeFatal, ErrorCode: oidc.ErrorCode(err), Err: err}
}

// interactionCodes are the error codes which a user can resolve by
// interacting with the IdP.
var interactionCodes = []string{
	oidc.CodeConsentRequired,
	oidc.CodeInteractionRequired,
	oidc.CodeLoginRequired,
}

// RequiresInteraction reports whether the error code contains one of
// consent_required, interaction_required or login_required.
func RequiresInteraction(code string) bool {
	if code == "" {
		return false
	}
	for _, c := range interactionCodes {
		if strings.Contains(code, c) {
			return true
		}
	}
	return false
}

// Classify converts the result of a token acquisition into an Outcome.
func Classify(resp *oidc.AuthResponse, err error) Outcome {
	switch {
	case err != nil:
		if code := oidc.ErrorCode(err); RequiresInteraction(code) {
			return InteractionRequired(code, err)
		}
		return Fatal(err)
	case resp == nil:
		return Fatal(ErrNoResult)
	default:
		return Token(resp)
	}
}
