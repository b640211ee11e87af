// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/realmkit/pkg/telemetry"
)

// GuardConfig configures a request-authentication guard.
type GuardConfig struct {
	// Audience is checked against every token's aud claim. For Keycloak user
	// tokens this is normally "account".
	Audience string

	// ClientID selects which resource_access entry contributes roles to the
	// authenticated identity, in addition to the realm roles.
	ClientID string

	// RequiredRoles must all be present in the token's role collection.
	// Empty means any authenticated user is accepted.
	RequiredRoles []string

	// ExtraClaims are copied from the decoded token into the identity's
	// extension bag. A claim absent from the token is recorded as nil rather
	// than treated as an error.
	ExtraClaims []string
}

// Guard is a request-scoped authentication dependency: it extracts a bearer
// token, verifies it locally, enforces the required-role set, and stores the
// resulting Identity in the request context.
//
// Once the verifier's key resolver is warm the guard performs no network I/O,
// so it is safe to run on every request.
type Guard struct {
	verifier *Verifier
	config   GuardConfig
}

// NewGuard creates a guard from a verifier and configuration.
func NewGuard(verifier *Verifier, config GuardConfig) *Guard {
	return &Guard{
		verifier: verifier,
		config:   config,
	}
}

// Authenticate verifies a bearer token and returns the authenticated-user
// view. It is the transport-agnostic core of the middleware, usable directly
// from non-HTTP call sites.
func (g *Guard) Authenticate(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := g.verifier.Decode(ctx, tokenString, g.config.Audience)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	identity := &Identity{
		Subject: sub,
		Roles:   rolesFromClaims(claims, g.config.ClientID),
		Token:   tokenString,
	}
	if username, ok := claims["preferred_username"].(string); ok {
		identity.Username = username
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}

	// Fail fast on the first missing role so the response can name it.
	for _, role := range g.config.RequiredRoles {
		if !identity.HasRole(role) {
			return nil, &MissingRoleError{Role: role}
		}
	}

	if len(g.config.ExtraClaims) > 0 {
		identity.ExtensionClaims = make(map[string]any, len(g.config.ExtraClaims))
		for _, name := range g.config.ExtraClaims {
			identity.ExtensionClaims[name] = claims[name]
		}
	}

	return identity, nil
}

// MissingRoleError is the authorization failure for a valid token that lacks
// a required role. It names the first missing role.
type MissingRoleError struct {
	Role string
}

// Error implements the error interface.
func (e *MissingRoleError) Error() string {
	return fmt.Sprintf("role %q is required to perform this action", e.Role)
}

// Middleware returns an HTTP middleware enforcing the guard's configuration.
// Authentication failures produce 401 (with a WWW-Authenticate challenge),
// authorization failures 403.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			g.unauthorized(w, "Authorization header required")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			g.unauthorized(w, "Invalid Authorization header format")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		identity, err := g.Authenticate(r.Context(), tokenString)
		if err != nil {
			var missingRole *MissingRoleError
			switch {
			case errors.As(err, &missingRole):
				telemetry.TokenValidations.WithLabelValues(telemetry.ResultForbidden).Inc()
				http.Error(w, missingRole.Error(), http.StatusForbidden)
			case errors.Is(err, ErrTokenExpired):
				// Expired is authentication, not authorization: the caller
				// should re-authenticate.
				telemetry.TokenValidations.WithLabelValues(telemetry.ResultExpired).Inc()
				g.unauthorized(w, "Access token has expired")
			default:
				telemetry.TokenValidations.WithLabelValues(telemetry.ResultInvalid).Inc()
				g.unauthorized(w, fmt.Sprintf("Invalid token: %v", err))
			}
			return
		}

		telemetry.TokenValidations.WithLabelValues(telemetry.ResultOK).Inc()
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// unauthorized writes a 401 with an RFC 6750 WWW-Authenticate challenge.
func (g *Guard) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, message, http.StatusUnauthorized)
}
