// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/realmkit/pkg/networking"
)

// CreateGroup creates a group, optionally under a parent, and returns its
// stored representation.
func (c *Client) CreateGroup(ctx context.Context, name, parentID string) (*Group, error) {
	group := Group{Name: name}
	requestURL := c.adminURL("groups")
	if parentID != "" {
		requestURL = c.adminURL("groups", parentID, "children")
	}

	resp, err := c.adminResponse(ctx, http.MethodPost, requestURL, &group)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, networking.NewHTTPError(resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("group creation response missing Location header")
	}
	return c.GetGroup(ctx, location[strings.LastIndex(location, "/")+1:])
}

// GetGroup fetches a group by ID.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	var group Group
	err := c.adminRequest(ctx, http.MethodGet, c.adminURL("groups", groupID), nil, &group)
	if err != nil {
		if networking.IsHTTPError(err, http.StatusNotFound) {
			return nil, fmt.Errorf("group %q not found", groupID)
		}
		return nil, err
	}
	return &group, nil
}

// GetAllGroups lists the realm's top-level groups with their subgroup trees.
func (c *Client) GetAllGroups(ctx context.Context) ([]*Group, error) {
	var groups []*Group
	requestURL := c.adminURL("groups") + "?briefRepresentation=false"
	if err := c.adminRequest(ctx, http.MethodGet, requestURL, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroupByPath resolves a slash-separated group path (such as
// /engineering/backend) by walking the group tree.
func (c *Client) GetGroupByPath(ctx context.Context, groupPath string) (*Group, error) {
	segments := splitGroupPath(groupPath)
	if len(segments) == 0 {
		return nil, &ConfigError{Reason: "group path must not be empty"}
	}

	groups, err := c.GetAllGroups(ctx)
	if err != nil {
		return nil, err
	}

	current := groups
	var match *Group
	for _, segment := range segments {
		match = nil
		for _, g := range current {
			if g.Name == segment {
				match = g
				break
			}
		}
		if match == nil {
			return nil, fmt.Errorf("group path %q not found", groupPath)
		}
		current = match.SubGroups
	}
	return match, nil
}

func splitGroupPath(groupPath string) []string {
	var segments []string
	for _, s := range strings.Split(groupPath, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// GetGroupMembers lists the users belonging to a group.
func (c *Client) GetGroupMembers(ctx context.Context, groupID string) ([]*UserRecord, error) {
	var members []*UserRecord
	err := c.adminRequest(ctx, http.MethodGet,
		c.adminURL("groups", groupID, "members"), nil, &members)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// DeleteGroup removes a group by ID.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.adminRequest(ctx, http.MethodDelete, c.adminURL("groups", groupID), nil, nil)
}

// GetUserGroups lists the groups a user belongs to.
func (c *Client) GetUserGroups(ctx context.Context, userID string) ([]*Group, error) {
	var groups []*Group
	err := c.adminRequest(ctx, http.MethodGet,
		c.adminURL("users", userID, "groups"), nil, &groups)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// AddUserGroup puts a user into a group.
func (c *Client) AddUserGroup(ctx context.Context, userID, groupID string) error {
	return c.adminRequest(ctx, http.MethodPut,
		c.adminURL("users", userID, "groups", groupID), nil, nil)
}

// RemoveUserGroup takes a user out of a group.
func (c *Client) RemoveUserGroup(ctx context.Context, userID, groupID string) error {
	return c.adminRequest(ctx, http.MethodDelete,
		c.adminURL("users", userID, "groups", groupID), nil, nil)
}
