// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stacklok/realmkit/pkg/logger"
)

// lockoutErrorCode is the event error Keycloak records while brute-force
// protection has a user temporarily disabled.
const lockoutErrorCode = "user_temporarily_disabled"

// GetLoginErrorEvents lists the realm's LOGIN_ERROR events, optionally
// filtered to one user.
func (c *Client) GetLoginErrorEvents(ctx context.Context, userID string) ([]*EventRecord, error) {
	query := url.Values{}
	query.Set("type", "LOGIN_ERROR")
	if userID != "" {
		query.Set("user", userID)
	}

	var events []*EventRecord
	requestURL := c.adminURL("events") + "?" + query.Encode()
	if err := c.adminRequest(ctx, http.MethodGet, requestURL, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// IsUserLockedOut reports whether brute-force protection currently has the
// user temporarily disabled, judged from the realm's login-error events.
func (c *Client) IsUserLockedOut(ctx context.Context, userID string) (bool, error) {
	events, err := c.GetLoginErrorEvents(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Error == lockoutErrorCode {
			return true, nil
		}
	}
	return false, nil
}

// ClearLoginFailures lifts a brute-force lockout: it clears the realm's
// recorded login-error events, resets the user's attack-detection state, and
// re-enables the account if the lockout disabled it. Event deletion is
// realm-wide; the admin API offers no per-user variant.
func (c *Client) ClearLoginFailures(ctx context.Context, userID string) error {
	if err := c.adminRequest(ctx, http.MethodDelete, c.adminURL("events"), nil, nil); err != nil {
		return err
	}

	err := c.adminRequest(ctx, http.MethodDelete,
		c.adminURL("attack-detection", "brute-force", "users", userID), nil, nil)
	if err != nil {
		return err
	}

	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Enabled {
		user.Enabled = true
		if _, err := c.UpdateUser(ctx, user); err != nil {
			return err
		}
		logger.Infow("re-enabled user after lockout clear", "user_id", userID)
	}
	return nil
}
