// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keycloak is a typed gateway to a Keycloak server: the OpenID
// Connect token endpoints for end-user grants and the admin REST API for
// user, role, group, session, and realm management.
//
// All state lives on the Keycloak side. The client holds only configuration,
// a cached service-account token, and a cached discovery document, so it is
// safe to share across goroutines.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/realmkit/pkg/logger"
	"github.com/stacklok/realmkit/pkg/networking"
)

// Config holds the connection settings for a Keycloak realm. It is read-only
// after New; changing realms or clients means constructing a new Client.
type Config struct {
	// ServerURL is the base URL of the Keycloak server,
	// e.g. https://auth.example.com.
	ServerURL string

	// Realm is the realm name.
	Realm string

	// ClientID and ClientSecret identify the OIDC client used for end-user
	// grants (password, refresh, authorization code).
	ClientID     string
	ClientSecret string

	// AdminClientID and AdminClientSecret identify the service account used
	// for the admin REST API. AdminClientID defaults to "admin-cli".
	AdminClientID     string
	AdminClientSecret string

	// CallbackURI is the redirect URI for the authorization-code flow.
	CallbackURI string

	// Scope is the scope requested on end-user grants.
	// Defaults to "openid profile email".
	Scope string

	// Timeout bounds every outgoing request. Zero means the package default.
	Timeout time.Duration

	// CACertPath optionally points at a CA bundle for the server's TLS
	// certificate.
	CACertPath string
}

// Client talks to a single Keycloak realm.
type Client struct {
	config     Config
	httpClient *http.Client
	admin      *adminTokenManager

	discoveryMu sync.Mutex
	discovery   *DiscoveryDocument
}

// New creates a Client from the given configuration. It performs no network
// I/O; the first request that needs the discovery document or an admin token
// fetches them lazily.
func New(config Config) (*Client, error) {
	if config.ServerURL == "" {
		return nil, errors.New("server URL must not be empty")
	}
	if config.Realm == "" {
		return nil, errors.New("realm must not be empty")
	}
	if config.ClientID == "" {
		return nil, errors.New("client ID must not be empty")
	}
	if config.AdminClientID == "" {
		config.AdminClientID = "admin-cli"
	}
	if config.Scope == "" {
		config.Scope = "openid profile email"
	}
	config.ServerURL = strings.TrimSuffix(config.ServerURL, "/")

	httpClient, err := networking.NewHttpClientBuilder().
		WithTimeout(config.Timeout).
		WithCABundle(config.CACertPath).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	c := &Client{
		config:     config,
		httpClient: httpClient,
	}
	c.admin = newAdminTokenManager(c)
	return c, nil
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	return c.config
}

// RealmURL returns the public realm endpoint, which also serves the realm
// descriptor with the signing key.
func (c *Client) RealmURL() string {
	return fmt.Sprintf("%s/realms/%s", c.config.ServerURL, c.config.Realm)
}

// adminRealmURL returns the admin REST base for the realm.
func (c *Client) adminRealmURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.config.ServerURL, c.config.Realm)
}

// adminURL joins resource path segments onto the admin realm base.
func (c *Client) adminURL(parts ...string) string {
	return c.adminRealmURL() + "/" + strings.Join(parts, "/")
}

// openIDURL joins a resource onto the realm's openid-connect protocol base.
func (c *Client) openIDURL(resource string) string {
	return fmt.Sprintf("%s/protocol/openid-connect/%s", c.RealmURL(), resource)
}

// OpenIDConfiguration returns the realm's OIDC discovery document, fetching
// it on first use and caching it for the lifetime of the client.
func (c *Client) OpenIDConfiguration(ctx context.Context) (*DiscoveryDocument, error) {
	c.discoveryMu.Lock()
	defer c.discoveryMu.Unlock()

	if c.discovery != nil {
		return c.discovery, nil
	}

	wellKnown := c.RealmURL() + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, networking.NewHTTPError(resp)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	c.discovery = &doc
	return c.discovery, nil
}

// tokenRequest performs a form-encoded grant against the realm's token
// endpoint and decodes the resulting token set. Non-2xx responses are
// returned as *networking.HTTPError so callers can classify them by status.
func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*TokenGrant, error) {
	doc, err := c.OpenIDConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		doc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, networking.NewHTTPError(resp)
	}

	var grant TokenGrant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if grant.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &grant, nil
}

// postForm sends a form-encoded POST expecting a 2xx response with no body
// of interest.
func (c *Client) postForm(ctx context.Context, requestURL string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		requestURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return networking.NewHTTPError(resp)
	}
	return nil
}

// adminDo performs one admin API request with the given token. The caller
// owns the response.
func (c *Client) adminDo(ctx context.Context, method, requestURL, token string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// adminRequest performs an authenticated admin API call, decoding a 2xx JSON
// response into out (which may be nil). A 401 is retried once with a freshly
// acquired admin token before being surfaced.
func (c *Client) adminRequest(ctx context.Context, method, requestURL string, body, out any) error {
	resp, err := c.adminResponse(ctx, method, requestURL, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return networking.NewHTTPError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode admin response: %w", err)
	}
	return nil
}

// adminResponse performs the request/refresh-once dance and hands back the
// raw response for callers that need headers (such as Location).
func (c *Client) adminResponse(ctx context.Context, method, requestURL string, body any) (*http.Response, error) {
	token, err := c.admin.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.adminDo(ctx, method, requestURL, token, body)
	if err != nil {
		return nil, fmt.Errorf("admin request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// The cached token may have been revoked server-side; refresh once.
		resp.Body.Close()
		logger.Debugw("admin token rejected, refreshing", "url", requestURL)
		token, err = c.admin.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = c.adminDo(ctx, method, requestURL, token, body)
		if err != nil {
			return nil, fmt.Errorf("admin request failed: %w", err)
		}
	}

	return resp, nil
}
