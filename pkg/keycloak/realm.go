// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// maxSessionsAttribute is the realm attribute holding the concurrent-session
// cap enforced during login. Zero or absent means unlimited.
const maxSessionsAttribute = "max-sessions"

// GetRealmSettings fetches the realm representation.
func (c *Client) GetRealmSettings(ctx context.Context) (*RealmSettings, error) {
	var settings RealmSettings
	if err := c.adminRequest(ctx, http.MethodGet, c.adminRealmURL(), nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateRealmSettings writes the realm representation. Read-modify-write:
// callers should start from GetRealmSettings so unrelated fields survive.
func (c *Client) UpdateRealmSettings(ctx context.Context, settings *RealmSettings) error {
	return c.adminRequest(ctx, http.MethodPut, c.adminRealmURL(), settings, nil)
}

// GetMaxConcurrentSessions reads the realm's concurrent-session cap.
// Zero means unlimited.
func (c *Client) GetMaxConcurrentSessions(ctx context.Context) (int, error) {
	settings, err := c.GetRealmSettings(ctx)
	if err != nil {
		return 0, err
	}

	raw, ok := settings.Attributes[maxSessionsAttribute]
	if !ok || raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{
			Reason: fmt.Sprintf("realm attribute %q is not an integer: %q", maxSessionsAttribute, raw),
			Err:    err,
		}
	}
	if limit < 0 {
		return 0, &ConfigError{
			Reason: fmt.Sprintf("realm attribute %q must not be negative: %d", maxSessionsAttribute, limit),
		}
	}
	return limit, nil
}

// SetMaxConcurrentSessions writes the realm's concurrent-session cap.
// Zero removes the limit.
func (c *Client) SetMaxConcurrentSessions(ctx context.Context, limit int) error {
	if limit < 0 {
		return &ConfigError{
			Reason: fmt.Sprintf("concurrent-session limit must not be negative: %d", limit),
		}
	}

	settings, err := c.GetRealmSettings(ctx)
	if err != nil {
		return err
	}
	if settings.Attributes == nil {
		settings.Attributes = make(map[string]string)
	}
	if limit == 0 {
		delete(settings.Attributes, maxSessionsAttribute)
	} else {
		settings.Attributes[maxSessionsAttribute] = strconv.Itoa(limit)
	}
	return c.UpdateRealmSettings(ctx, settings)
}

// SetSessionLifespans writes the realm's SSO session lifespans, in seconds.
// An idleSeconds of zero leaves the idle timeout unchanged.
func (c *Client) SetSessionLifespans(ctx context.Context, maxSeconds, idleSeconds int) error {
	if maxSeconds <= 0 {
		return &ConfigError{
			Reason: fmt.Sprintf("session max lifespan must be positive: %d", maxSeconds),
		}
	}

	settings, err := c.GetRealmSettings(ctx)
	if err != nil {
		return err
	}
	settings.SSOSessionMaxLifespan = maxSeconds
	if idleSeconds > 0 {
		settings.SSOSessionIdleTimeout = idleSeconds
	}
	return c.UpdateRealmSettings(ctx, settings)
}

// SetAccessTokenLifespan writes the realm's access-token lifespan in seconds.
func (c *Client) SetAccessTokenLifespan(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return &ConfigError{
			Reason: fmt.Sprintf("access token lifespan must be positive: %d", seconds),
		}
	}

	settings, err := c.GetRealmSettings(ctx)
	if err != nil {
		return err
	}
	settings.AccessTokenLifespan = seconds
	return c.UpdateRealmSettings(ctx, settings)
}

// GetIdentityProviders lists the realm's configured identity providers.
func (c *Client) GetIdentityProviders(ctx context.Context) ([]*IdentityProvider, error) {
	var providers []*IdentityProvider
	err := c.adminRequest(ctx, http.MethodGet,
		c.adminURL("identity-provider", "instances"), nil, &providers)
	if err != nil {
		return nil, err
	}
	return providers, nil
}

// CreateIdentityProvider registers an upstream identity provider on the realm.
func (c *Client) CreateIdentityProvider(ctx context.Context, provider *IdentityProvider) error {
	return c.adminRequest(ctx, http.MethodPost,
		c.adminURL("identity-provider", "instances"), provider, nil)
}

// DeleteIdentityProvider removes an identity provider by alias.
func (c *Client) DeleteIdentityProvider(ctx context.Context, alias string) error {
	return c.adminRequest(ctx, http.MethodDelete,
		c.adminURL("identity-provider", "instances", alias), nil, nil)
}
