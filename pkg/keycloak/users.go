// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/stacklok/realmkit/pkg/networking"
)

// searchableUserFields is the allow-list of fields accepted by SearchUser.
// Anything else is rejected locally, before a request is made.
var searchableUserFields = map[string]bool{
	"email":     true,
	"username":  true,
	"firstName": true,
	"lastName":  true,
}

// CreateUser creates a user and returns its stored representation, including
// the server-assigned ID.
func (c *Client) CreateUser(ctx context.Context, user *UserRecord) (*UserRecord, error) {
	resp, err := c.adminResponse(ctx, http.MethodPost, c.adminURL("users"), user)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, networking.NewHTTPError(resp)
	}

	// The ID comes back only in the Location header.
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("user creation response missing Location header")
	}
	return c.GetUser(ctx, path.Base(location))
}

// GetUser fetches a user by ID. A 404 maps to ErrUserNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	var user UserRecord
	err := c.adminRequest(ctx, http.MethodGet, c.adminURL("users", userID), nil, &user)
	if err != nil {
		if networking.IsHTTPError(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: id %q", ErrUserNotFound, userID)
		}
		return nil, err
	}
	return &user, nil
}

// SearchUser finds exactly one user by an allow-listed field. The field name
// is validated locally; an unknown field is a ConfigError and no request is
// made. Zero matches map to ErrUserNotFound; more than one match is an error
// because the caller asked for a unique user.
func (c *Client) SearchUser(ctx context.Context, field, value string) (*UserRecord, error) {
	if !searchableUserFields[field] {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("user search field %q not supported (use email, username, firstName or lastName)", field),
		}
	}
	if value == "" {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("user search value for field %q must not be empty", field),
		}
	}

	query := url.Values{}
	query.Set(field, value)
	query.Set("exact", "true")

	var users []*UserRecord
	requestURL := c.adminURL("users") + "?" + query.Encode()
	if err := c.adminRequest(ctx, http.MethodGet, requestURL, nil, &users); err != nil {
		return nil, err
	}

	switch len(users) {
	case 0:
		return nil, fmt.Errorf("%w: %s %q", ErrUserNotFound, field, value)
	case 1:
		return users[0], nil
	default:
		return nil, fmt.Errorf("search for %s %q matched %d users, expected one", field, value, len(users))
	}
}

// GetUserByUsername fetches a user by exact username.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	return c.SearchUser(ctx, "username", username)
}

// GetAllUsers lists every user of the realm.
func (c *Client) GetAllUsers(ctx context.Context) ([]*UserRecord, error) {
	var users []*UserRecord
	if err := c.adminRequest(ctx, http.MethodGet, c.adminURL("users"), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser writes the full user representation, then re-reads it so the
// caller observes what the server actually stored.
func (c *Client) UpdateUser(ctx context.Context, user *UserRecord) (*UserRecord, error) {
	if user.ID == "" {
		return nil, &ConfigError{Reason: "user update requires a user ID"}
	}
	if err := c.adminRequest(ctx, http.MethodPut, c.adminURL("users", user.ID), user, nil); err != nil {
		return nil, err
	}
	return c.GetUser(ctx, user.ID)
}

// DeleteUser removes a user by ID.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	err := c.adminRequest(ctx, http.MethodDelete, c.adminURL("users", userID), nil, nil)
	if networking.IsHTTPError(err, http.StatusNotFound) {
		return fmt.Errorf("%w: id %q", ErrUserNotFound, userID)
	}
	return err
}

// ChangePassword resets a user's password. With temporary set the user must
// choose a new password at next login.
func (c *Client) ChangePassword(ctx context.Context, userID, newPassword string, temporary bool) error {
	credential := CredentialRecord{
		Type:      "password",
		Value:     newPassword,
		Temporary: temporary,
	}
	return c.adminRequest(ctx, http.MethodPut,
		c.adminURL("users", userID, "reset-password"), &credential, nil)
}

// SendVerifyEmail asks the server to send the verification email for a user.
func (c *Client) SendVerifyEmail(ctx context.Context, userID string) error {
	return c.adminRequest(ctx, http.MethodPut,
		c.adminURL("users", userID, "send-verify-email"), nil, nil)
}

// SetAccountExpiration sets (or clears, with the zero time) the account
// expiration attribute checked during login.
func (c *Client) SetAccountExpiration(ctx context.Context, userID string, expires time.Time) error {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Attributes == nil {
		user.Attributes = make(map[string]any)
	}
	if expires.IsZero() {
		delete(user.Attributes, accountExpirationAttribute)
	} else {
		user.Attributes[accountExpirationAttribute] = expires.UTC().Format(time.RFC3339)
	}
	_, err = c.UpdateUser(ctx, user)
	return err
}
