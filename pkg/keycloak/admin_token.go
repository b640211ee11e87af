// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/realmkit/pkg/auth"
	"github.com/stacklok/realmkit/pkg/logger"
	"github.com/stacklok/realmkit/pkg/telemetry"
)

// expirySkew is subtracted from the token lifetime so a token nearing expiry
// is refreshed before the server would reject it.
const expirySkew = 10 * time.Second

// adminTokenManager acquires and caches the service-account token used for
// admin API calls. Concurrent refreshes are collapsed into a single
// client-credentials grant, and a refresh is never retried more than once per
// call chain; a grant failure is surfaced to the caller instead.
type adminTokenManager struct {
	client *Client
	group  singleflight.Group

	mu      sync.RWMutex
	token   string
	expires time.Time
}

func newAdminTokenManager(client *Client) *adminTokenManager {
	return &adminTokenManager{client: client}
}

// Token returns a cached admin token, refreshing it when missing or within
// the expiry skew.
func (m *adminTokenManager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	result, err, _ := m.group.Do("admin-token", func() (any, error) {
		// A caller that lost the race reuses the token the winner stored.
		if token, ok := m.cached(); ok {
			return token, nil
		}
		return m.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Refresh drops the cached token and acquires a fresh one. Concurrent
// callers share a single grant.
func (m *adminTokenManager) Refresh(ctx context.Context) (string, error) {
	m.Invalidate()
	return m.Token(ctx)
}

func (m *adminTokenManager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token != "" && time.Now().Before(m.expires) {
		return m.token, true
	}
	return "", false
}

// fetch performs the client-credentials grant and validates that the service
// account actually carries admin capabilities before caching the token.
func (m *adminTokenManager) fetch(ctx context.Context) (string, error) {
	doc, err := m.client.OpenIDConfiguration(ctx)
	if err != nil {
		return "", err
	}

	cfg := m.client.Config()
	grant := clientcredentials.Config{
		ClientID:     cfg.AdminClientID,
		ClientSecret: cfg.AdminClientSecret,
		TokenURL:     doc.TokenEndpoint,
	}

	// Route the grant through the client's transport so TLS and timeout
	// settings apply.
	grantCtx := context.WithValue(ctx, oauth2.HTTPClient, m.client.httpClient)
	tok, err := grant.Token(grantCtx)
	if err != nil {
		// A 400/401 means the admin credentials themselves are wrong, which
		// is an operator mistake; anything else is the upstream failing.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			(retrieveErr.Response.StatusCode == http.StatusBadRequest ||
				retrieveErr.Response.StatusCode == http.StatusUnauthorized) {
			return "", &ConfigError{
				Reason: fmt.Sprintf("admin client-credentials grant rejected for client %q", cfg.AdminClientID),
				Err:    err,
			}
		}
		return "", fmt.Errorf("admin token grant failed: %w", err)
	}
	telemetry.AdminTokenRefreshes.Inc()

	if err := m.validateCapabilities(tok.AccessToken); err != nil {
		return "", err
	}

	expires := tok.Expiry
	if expires.IsZero() {
		expires = time.Now().Add(time.Minute)
	}

	m.mu.Lock()
	m.token = tok.AccessToken
	m.expires = expires.Add(-expirySkew)
	m.mu.Unlock()

	logger.Debugw("admin token refreshed", "expires", expires)
	return tok.AccessToken, nil
}

// validateCapabilities checks that the service-account token carries the
// realm-management and account clients in resource_access. A token without
// them would authenticate but fail every admin call with 403, which is a
// setup problem, not a runtime one.
//
// The claims are read without signature verification: the token came over
// TLS from the server that issued it, and it is only inspected, never
// trusted for authorization decisions on our side.
func (m *adminTokenManager) validateCapabilities(accessToken string) error {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return &ConfigError{Reason: "admin token is not a decodable JWT", Err: err}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return &ConfigError{Reason: "admin token carries unexpected claims"}
	}

	if !auth.HasResourceRoles(claims, "realm-management", "account") {
		return &ConfigError{
			Reason: fmt.Sprintf(
				"admin client %q lacks realm-management capabilities; assign the realm-admin service account roles",
				m.client.Config().AdminClientID,
			),
		}
	}
	return nil
}

// Invalidate drops the cached admin token so the next call re-acquires it.
func (m *adminTokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expires = time.Time{}
	m.mu.Unlock()
}
