// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stacklok/realmkit/pkg/networking"
)

// CreateRole creates a realm role and returns its stored representation.
func (c *Client) CreateRole(ctx context.Context, name string) (*Role, error) {
	role := Role{Name: name}
	if err := c.adminRequest(ctx, http.MethodPost, c.adminURL("roles"), &role, nil); err != nil {
		return nil, err
	}
	return c.GetRole(ctx, name)
}

// GetRole fetches a realm role by name.
func (c *Client) GetRole(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := c.adminRequest(ctx, http.MethodGet, c.adminURL("roles", name), nil, &role)
	if err != nil {
		if networking.IsHTTPError(err, http.StatusNotFound) {
			return nil, fmt.Errorf("role %q not found", name)
		}
		return nil, err
	}
	return &role, nil
}

// GetAllRoles lists the realm's roles.
func (c *Client) GetAllRoles(ctx context.Context) ([]*Role, error) {
	var roles []*Role
	if err := c.adminRequest(ctx, http.MethodGet, c.adminURL("roles"), nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// DeleteRole removes a realm role by name.
func (c *Client) DeleteRole(ctx context.Context, name string) error {
	return c.adminRequest(ctx, http.MethodDelete, c.adminURL("roles", name), nil, nil)
}

// GetUserRoles lists the realm roles mapped to a user.
func (c *Client) GetUserRoles(ctx context.Context, userID string) ([]*Role, error) {
	var roles []*Role
	err := c.adminRequest(ctx, http.MethodGet,
		c.adminURL("users", userID, "role-mappings", "realm"), nil, &roles)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// AddUserRoles maps the named realm roles onto a user. Every role must
// already exist; the role representations are resolved first so the mapping
// request carries the server's IDs.
func (c *Client) AddUserRoles(ctx context.Context, userID string, roleNames ...string) error {
	roles, err := c.resolveRoles(ctx, roleNames)
	if err != nil {
		return err
	}
	return c.adminRequest(ctx, http.MethodPost,
		c.adminURL("users", userID, "role-mappings", "realm"), roles, nil)
}

// RemoveUserRoles removes the named realm roles from a user.
func (c *Client) RemoveUserRoles(ctx context.Context, userID string, roleNames ...string) error {
	roles, err := c.resolveRoles(ctx, roleNames)
	if err != nil {
		return err
	}
	return c.adminRequest(ctx, http.MethodDelete,
		c.adminURL("users", userID, "role-mappings", "realm"), roles, nil)
}

func (c *Client) resolveRoles(ctx context.Context, roleNames []string) ([]*Role, error) {
	roles := make([]*Role, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := c.GetRole(ctx, name)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}
