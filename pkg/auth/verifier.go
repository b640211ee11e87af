// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	// ErrNoToken is returned when no bearer token was provided.
	ErrNoToken = errors.New("no token provided")
	// ErrTokenExpired is returned for tokens whose signature verified but
	// whose exp claim is in the past. Callers should treat it as
	// "re-authenticate", distinct from malformed or forged tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken is returned for malformed tokens and signature failures.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidClaims is returned when the signature verified but a claim
	// (such as the audience) did not match expectations.
	ErrInvalidClaims = errors.New("invalid claims")
)

// Verifier decodes and validates Keycloak-issued JWTs against the realm's
// public key. Once the key resolver has cached its key material, verification
// performs no network I/O and is cheap enough to run on every request.
type Verifier struct {
	resolver KeyResolver
	parser   *jwt.Parser
}

// NewVerifier creates a Verifier backed by the given key resolver.
func NewVerifier(resolver KeyResolver) *Verifier {
	return &Verifier{
		resolver: resolver,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Decode verifies the token's signature and expiry and returns its claims.
// The audience claim is checked only when audience is non-empty, and must
// exactly match one of the token's aud entries.
//
// The signature is always verified against the resolver's key; no claim is
// trusted on a token that fails verification.
func (v *Verifier) Decode(ctx context.Context, tokenString, audience string) (jwt.MapClaims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := v.parser.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return v.resolver.Key(ctx, token)
	})
	if err != nil {
		// golang-jwt only reports expiry after the signature verified, so an
		// expired outcome here still implies an authentic token.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	if audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
		}
		found := false
		for _, aud := range audiences {
			if aud == audience {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: audience %q not present", ErrInvalidClaims, audience)
		}
	}

	return claims, nil
}

// IsValid reports whether Decode succeeds for the token.
func (v *Verifier) IsValid(ctx context.Context, tokenString, audience string) bool {
	_, err := v.Decode(ctx, tokenString, audience)
	return err == nil
}
