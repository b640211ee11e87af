// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"net/http"
	"net/url"
)

// GetActiveSessions lists a user's active sessions. The count drives the
// concurrent-session check during login; the count and the subsequent grant
// are separate requests, so a session created in between can briefly exceed
// the cap.
func (c *Client) GetActiveSessions(ctx context.Context, userID string) ([]*UserSession, error) {
	var sessions []*UserSession
	err := c.adminRequest(ctx, http.MethodGet,
		c.adminURL("users", userID, "sessions"), nil, &sessions)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// LogoutUser invalidates all of a user's sessions.
func (c *Client) LogoutUser(ctx context.Context, userID string) error {
	return c.adminRequest(ctx, http.MethodPost,
		c.adminURL("users", userID, "logout"), nil, nil)
}

// DeleteSession removes a single session by ID.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.adminRequest(ctx, http.MethodDelete,
		c.adminURL("sessions", sessionID), nil, nil)
}

// EndUserSession revokes the refresh token of one session via the logout
// endpoint, using the end-user client credentials rather than the admin API.
func (c *Client) EndUserSession(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("refresh_token", refreshToken)

	doc, err := c.OpenIDConfiguration(ctx)
	if err != nil {
		return err
	}
	return c.postForm(ctx, doc.EndSessionEndpoint, form)
}
