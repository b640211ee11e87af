// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"fmt"
)

// Identity represents an authenticated user derived from a verified token.
type Identity struct {
	// Subject is the unique identifier for the principal (from 'sub' claim).
	Subject string

	// Username is the preferred username, if present in the token.
	Username string

	// Email is the email address, if present in the token.
	Email string

	// Roles are the role names asserted by the token (realm roles plus the
	// resource roles of the configured client).
	Roles []string

	// ExtensionClaims holds the extra claims requested from the guard.
	// A requested claim that is absent from the token is present here with a
	// nil value, so callers can distinguish "absent" from "not requested".
	ExtensionClaims map[string]any

	// Token is the original bearer token (for pass-through scenarios).
	// This is redacted in String() and MarshalJSON() to prevent leakage.
	Token string
}

// HasRole reports whether the identity carries the given role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// String returns a representation with sensitive fields redacted, so the
// Identity can be logged without leaking the bearer token.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q, Username:%q}", i.Subject, i.Username)
}

// MarshalJSON implements json.Marshaler to redact the token during JSON
// serialization.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	type safeIdentity struct {
		Subject         string         `json:"subject"`
		Username        string         `json:"username,omitempty"`
		Email           string         `json:"email,omitempty"`
		Roles           []string       `json:"roles"`
		ExtensionClaims map[string]any `json:"extensionClaims,omitempty"`
		Token           string         `json:"token,omitempty"`
	}

	token := i.Token
	if token != "" {
		token = "REDACTED"
	}

	return json.Marshal(&safeIdentity{
		Subject:         i.Subject,
		Username:        i.Username,
		Email:           i.Email,
		Roles:           i.Roles,
		ExtensionClaims: i.ExtensionClaims,
		Token:           token,
	})
}
