// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth provides local token verification and the request
// authentication middleware for Keycloak-issued JWTs.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/stacklok/realmkit/pkg/networking"
)

// KeyResolver supplies the verification key for a parsed (but not yet
// verified) token. Implementations cache key material so that verification
// does not require a network round trip in the common case.
type KeyResolver interface {
	// Key returns the public key to verify the given token with.
	Key(ctx context.Context, token *jwt.Token) (any, error)
}

// RealmKeyResolver fetches the realm's signing key from the Keycloak realm
// descriptor and caches it for the lifetime of the process.
//
// Keycloak publishes the key as base64 DER in the realm descriptor's
// "public_key" field; the resolver wraps it in a PEM envelope before parsing.
// There is no automatic rotation handling: if the realm key rotates, call
// [RealmKeyResolver.Invalidate] or restart the process.
type RealmKeyResolver struct {
	realmURL string
	client   *http.Client

	mu  sync.RWMutex
	key any
}

// NewRealmKeyResolver creates a resolver for the given realm endpoint
// (e.g. https://auth.example.com/realms/master). If client is nil a default
// client with the package timeout is used.
func NewRealmKeyResolver(realmURL string, client *http.Client) (*RealmKeyResolver, error) {
	if realmURL == "" {
		return nil, errors.New("realm URL must not be empty")
	}
	if client == nil {
		var err error
		client, err = networking.NewHttpClientBuilder().Build()
		if err != nil {
			return nil, err
		}
	}
	return &RealmKeyResolver{
		realmURL: strings.TrimSuffix(realmURL, "/"),
		client:   client,
	}, nil
}

// Key implements KeyResolver. Only RSA-family signing methods are accepted;
// Keycloak realm keys are RSA.
func (r *RealmKeyResolver) Key(ctx context.Context, token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return r.publicKey(ctx)
}

// publicKey returns the cached key, fetching it on first use. A race on first
// access may fetch redundantly; the fetch is idempotent and last-writer-wins
// is acceptable because the key value is stable.
func (r *RealmKeyResolver) publicKey(ctx context.Context) (any, error) {
	r.mu.RLock()
	key := r.key
	r.mu.RUnlock()
	if key != nil {
		return key, nil
	}

	pemKey, err := r.fetchPEM(ctx)
	if err != nil {
		return nil, err
	}

	parsed, err := jwk.ParseKey([]byte(pemKey), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse realm public key: %w", err)
	}
	var raw any
	if err := jwk.Export(parsed, &raw); err != nil {
		return nil, fmt.Errorf("failed to export realm public key: %w", err)
	}

	r.mu.Lock()
	r.key = raw
	r.mu.Unlock()
	return raw, nil
}

// fetchPEM fetches the realm descriptor and wraps its public key in the
// expected PEM envelope.
func (r *RealmKeyResolver) fetchPEM(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.realmURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create realm request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch realm descriptor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", networking.NewHTTPError(resp)
	}

	var descriptor struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&descriptor); err != nil {
		return "", fmt.Errorf("failed to decode realm descriptor: %w", err)
	}
	if descriptor.PublicKey == "" {
		return "", errors.New("realm descriptor missing public_key")
	}

	return fmt.Sprintf("-----BEGIN PUBLIC KEY-----\n%s\n-----END PUBLIC KEY-----", descriptor.PublicKey), nil
}

// Invalidate drops the cached key so the next verification refetches it.
func (r *RealmKeyResolver) Invalidate() {
	r.mu.Lock()
	r.key = nil
	r.mu.Unlock()
}

// JWKSKeyResolver resolves verification keys from the realm's JWKS endpoint
// using an auto-refreshing cache. This is the recommended mode for
// deployments where the realm key may rotate.
type JWKSKeyResolver struct {
	jwksURL    string
	jwksClient *jwk.Cache

	// Lazy JWKS registration
	jwksRegistered      bool
	jwksRegistrationMu  sync.Mutex
	jwksRegistrationErr error
}

// NewJWKSKeyResolver creates a resolver for the given JWKS endpoint. If
// client is nil a default client with the package timeout is used.
func NewJWKSKeyResolver(ctx context.Context, jwksURL string, client *http.Client) (*JWKSKeyResolver, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL must not be empty")
	}
	if client == nil {
		var err error
		client, err = networking.NewHttpClientBuilder().Build()
		if err != nil {
			return nil, err
		}
	}

	httprcClient := httprc.NewClient(httprc.WithHTTPClient(client))
	cache, err := jwk.NewCache(ctx, httprcClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	// JWKS registration is deferred to first use to avoid blocking startup.
	return &JWKSKeyResolver{
		jwksURL:    jwksURL,
		jwksClient: cache,
	}, nil
}

// ensureRegistered registers the JWKS URL with the cache on first use.
func (r *JWKSKeyResolver) ensureRegistered(ctx context.Context) error {
	r.jwksRegistrationMu.Lock()
	defer r.jwksRegistrationMu.Unlock()

	if r.jwksRegistered {
		return r.jwksRegistrationErr
	}

	registrationCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.jwksClient.Register(registrationCtx, r.jwksURL); err != nil {
		r.jwksRegistrationErr = fmt.Errorf("failed to register JWKS URL: %w", err)
	} else {
		r.jwksRegistrationErr = nil
	}

	r.jwksRegistered = true
	return r.jwksRegistrationErr
}

// Key implements KeyResolver by looking up the token's key ID in the JWKS.
func (r *JWKSKeyResolver) Key(ctx context.Context, token *jwt.Token) (any, error) {
	if err := r.ensureRegistered(ctx); err != nil {
		return nil, fmt.Errorf("JWKS registration failed: %w", err)
	}

	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	keySet, err := r.jwksClient.Lookup(ctx, r.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}

	return rawKey, nil
}
