// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// RealmClaims models the Keycloak-specific claims carried by realm tokens,
// beyond the registered JWT claim set.
type RealmClaims struct {
	jwt.RegisteredClaims
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
	Scope             string `json:"scope"`
	SessionID         string `json:"sid"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Email             string `json:"email"`
}

// rolesFromClaims collects the role names asserted by a token: the realm-level
// roles plus the resource roles for the given client, when clientID is set.
func rolesFromClaims(claims jwt.MapClaims, clientID string) []string {
	var roles []string

	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		roles = append(roles, roleNames(realmAccess)...)
	}

	if clientID != "" {
		if resourceAccess, ok := claims["resource_access"].(map[string]any); ok {
			if clientAccess, ok := resourceAccess[clientID].(map[string]any); ok {
				roles = append(roles, roleNames(clientAccess)...)
			}
		}
	}

	return roles
}

// roleNames extracts the "roles" list from a decoded access mapping.
func roleNames(access map[string]any) []string {
	rawRoles, ok := access["roles"].([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(rawRoles))
	for _, r := range rawRoles {
		if name, ok := r.(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// HasResourceRoles reports whether the claims contain a resource_access
// mapping for every one of the given clients. Used to validate that a
// service-account token actually carries the administrative capabilities it
// needs before it is accepted.
func HasResourceRoles(claims jwt.MapClaims, clients ...string) bool {
	resourceAccess, ok := claims["resource_access"].(map[string]any)
	if !ok {
		return false
	}
	for _, client := range clients {
		if _, ok := resourceAccess[client]; !ok {
			return false
		}
	}
	return true
}
