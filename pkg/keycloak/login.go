// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/realmkit/pkg/logger"
	"github.com/stacklok/realmkit/pkg/networking"
	"github.com/stacklok/realmkit/pkg/telemetry"
)

// accountExpirationAttribute holds an ISO-8601 timestamp after which the
// account may no longer log in.
const accountExpirationAttribute = "account_expiration"

// expirationLayouts are the accepted formats for the expiration attribute,
// tried in order after a trailing Z is stripped.
var expirationLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Login performs a password-grant login with local policy checks in a fixed
// order: lockout, then account expiration, then the concurrent-session cap,
// and only then the credential check against the token endpoint. A user
// failing an earlier check never reaches a later one, so a locked-out user
// with an expired account reports the lockout.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenGrant, error) {
	user, err := c.GetUserByUsername(ctx, username)
	if err != nil {
		if networking.IsHTTPError(err, 0) {
			telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeUpstreamError).Inc()
		} else {
			telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeInvalidCredentials).Inc()
		}
		return nil, err
	}

	locked, err := c.IsUserLockedOut(ctx, user.ID)
	if err != nil {
		telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeUpstreamError).Inc()
		return nil, err
	}
	if locked {
		telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeLockout).Inc()
		return nil, fmt.Errorf("%w: user %q", ErrAccountLocked, username)
	}

	if err := checkAccountExpiration(user, time.Now()); err != nil {
		if isConfigError(err) {
			telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeUpstreamError).Inc()
		} else {
			telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeExpiredAccount).Inc()
		}
		return nil, err
	}

	if err := c.checkSessionLimit(ctx, user.ID); err != nil {
		if isConfigError(err) {
			telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeUpstreamError).Inc()
		} else {
			telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeSessionLimit).Inc()
		}
		return nil, err
	}

	grant, err := c.passwordGrant(ctx, username, password, user)
	if err != nil {
		return nil, err
	}

	telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeSuccess).Inc()
	logger.Debugw("login succeeded", "username", username)
	return grant, nil
}

// checkAccountExpiration validates the user's expiration attribute against
// now. A missing attribute passes; a malformed one is a ConfigError so
// operators hear about it instead of the user being silently let through.
func checkAccountExpiration(user *UserRecord, now time.Time) error {
	raw, ok := user.Attributes[accountExpirationAttribute]
	if !ok {
		return nil
	}

	// Keycloak stores attributes as string lists; accept a bare string too.
	var value string
	switch v := raw.(type) {
	case string:
		value = v
	case []any:
		if len(v) == 0 {
			return nil
		}
		value, ok = v[0].(string)
		if !ok {
			return &ConfigError{
				Reason: fmt.Sprintf("user %q attribute %q has a non-string entry", user.Username, accountExpirationAttribute),
			}
		}
	default:
		return &ConfigError{
			Reason: fmt.Sprintf("user %q attribute %q has unexpected type %T", user.Username, accountExpirationAttribute, raw),
		}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	expiry, err := parseExpiration(value)
	if err != nil {
		return &ConfigError{
			Reason: fmt.Sprintf("user %q has malformed %s value %q", user.Username, accountExpirationAttribute, value),
			Err:    err,
		}
	}

	if now.After(expiry) {
		return fmt.Errorf("%w: account of %q expired at %s", ErrAccountExpired, user.Username, expiry.Format(time.RFC3339))
	}
	return nil
}

func parseExpiration(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	trimmed := strings.TrimSuffix(value, "Z")
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// checkSessionLimit enforces the realm's concurrent-session cap for a user.
// A cap of zero means unlimited and skips the session lookup entirely.
func (c *Client) checkSessionLimit(ctx context.Context, userID string) error {
	limit, err := c.GetMaxConcurrentSessions(ctx)
	if err != nil {
		return err
	}
	if limit == 0 {
		return nil
	}

	sessions, err := c.GetActiveSessions(ctx, userID)
	if err != nil {
		return err
	}
	if len(sessions) >= limit {
		return fmt.Errorf("%w: %d of %d sessions in use", ErrSessionLimitReached, len(sessions), limit)
	}
	return nil
}

// passwordGrant exchanges the credentials at the token endpoint and
// classifies failures. The user record fetched earlier supplies the pending
// required actions when the server refuses the grant for one.
func (c *Client) passwordGrant(ctx context.Context, username, password string, user *UserRecord) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", c.config.Scope)

	grant, err := c.tokenRequest(ctx, form)
	if err == nil {
		return grant, nil
	}

	switch {
	case networking.IsHTTPError(err, http.StatusUnauthorized):
		telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeInvalidCredentials).Inc()
		return nil, fmt.Errorf("%w: user %q", ErrInvalidCredentials, username)
	case networking.IsHTTPError(err, http.StatusBadRequest) && len(user.RequiredActions) > 0:
		// The server refuses the grant while an action is pending; report
		// which one so the caller can route the user to resolve it.
		action := user.RequiredActions[0]
		telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeMandatoryAction).Inc()
		return nil, &MandatoryActionError{
			Action: mandatoryActionFromName(action),
			Name:   action,
		}
	default:
		telemetry.LoginAttempts.WithLabelValues(telemetry.OutcomeUpstreamError).Inc()
		return nil, err
	}
}

// RefreshToken exchanges a refresh token for a fresh token set. A rejected
// refresh token maps to ErrInvalidCredentials; the caller should log in
// again.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("refresh_token", refreshToken)

	grant, err := c.tokenRequest(ctx, form)
	if err != nil {
		if networking.IsHTTPError(err, http.StatusBadRequest) || networking.IsHTTPError(err, http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: refresh token rejected", ErrInvalidCredentials)
		}
		return nil, err
	}
	return grant, nil
}

// ExchangeAuthorizationCode completes the authorization-code flow started at
// LoginURI.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, sessionState, code string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("session_state", sessionState)
	form.Set("code", code)
	form.Set("redirect_uri", c.config.CallbackURI)

	return c.tokenRequest(ctx, form)
}

// LoginURI builds the authorization-endpoint URL for a browser-based login,
// with a fresh random state parameter.
func (c *Client) LoginURI(ctx context.Context) (string, error) {
	doc, err := c.OpenIDConfiguration(ctx)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("client_id", c.config.ClientID)
	query.Set("response_type", "code")
	query.Set("redirect_uri", c.config.CallbackURI)
	query.Set("state", uuid.NewString())
	query.Set("scope", c.config.Scope)

	return doc.AuthorizationEndpoint + "?" + query.Encode(), nil
}
