// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scopes

import (
	"strings"

	"golang.org/x/text/cases"
)

const (
	// OpenID is the scope every OIDC authentication request carries.
	OpenID = "openid"

	// Profile is the default claims scope.
	Profile = "profile"

	// OfflineAccess asks the IdP for a refresh_token.
	OfflineAccess = "offline_access"
)

// Baseline returns the identity scopes that are always retried and are
// never recorded as denied.
func Baseline() Set {
	return Set{OpenID, Profile}
}

// Set is an ordered collection of scope names. Membership tests are case
// insensitive and order irrelevant. Use New or Parse to build a Set so
// duplicates and empty entries are dropped.
type Set []string

// New creates a Set from the scopes, trimming whitespace and dropping empty
// and duplicate entries. The first spelling of a duplicated scope wins.
func New(scopes ...string) Set {
	s := make(Set, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, sc := range scopes {
		sc = strings.TrimSpace(sc)
		if sc == "" {
			continue
		}
		k := fold(sc)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		s = append(s, sc)
	}
	return s
}

// Parse creates a Set from a string of scopes separated by spaces and/or
// commas.
func Parse(scopes string) Set {
	return New(strings.FieldsFunc(scopes, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})...)
}

// Strings returns a copy of the scopes as a []string.
func (s Set) Strings() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// String returns the space delimited form used on the wire.
func (s Set) String() string {
	return strings.Join(s, " ")
}

// IsEmpty is true when the set has no scopes.
func (s Set) IsEmpty() bool { return len(s) == 0 }

// Contains reports whether scope is a member of the set.
func (s Set) Contains(scope string) bool {
	k := fold(strings.TrimSpace(scope))
	for _, sc := range s {
		if fold(sc) == k {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every scope of other is a member of s.
func (s Set) ContainsAll(other Set) bool {
	for _, sc := range other {
		if !s.Contains(sc) {
			return false
		}
	}
	return true
}

// Intersects reports whether s and other share at least one scope.
func (s Set) Intersects(other Set) bool {
	for _, sc := range other {
		if s.Contains(sc) {
			return true
		}
	}
	return false
}

// Intersection returns the scopes of s which are also members of other, in
// the order of s.
func (s Set) Intersection(other Set) Set {
	out := Set{}
	for _, sc := range s {
		if other.Contains(sc) {
			out = append(out, sc)
		}
	}
	return out
}

// Union returns the scopes of s followed by the scopes of other that s does
// not already contain.
func (s Set) Union(other Set) Set {
	all := make([]string, 0, len(s)+len(other))
	all = append(all, s...)
	all = append(all, other...)
	return New(all...)
}

// Without returns s minus the scopes given.
func (s Set) Without(scopes ...string) Set {
	remove := New(scopes...)
	out := Set{}
	for _, sc := range s {
		if !remove.Contains(sc) {
			out = append(out, sc)
		}
	}
	return out
}

// WithoutBaseline returns s minus the Baseline scopes.
func (s Set) WithoutBaseline() Set {
	return s.Without(Baseline()...)
}

// Equal reports whether s and other hold the same scopes, ignoring order.
func (s Set) Equal(other Set) bool {
	a, b := New(s...), New(other...)
	if len(a) != len(b) {
		return false
	}
	return a.ContainsAll(b)
}

// fold returns the case folded form of a scope. A Caser is stateful, so a
// new one is used for every call.
func fold(scope string) string {
	return cases.Fold().String(scope)
}
