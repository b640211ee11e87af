// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

// UserRecord is the admin-API representation of a user. Field names follow
// the Keycloak wire format.
type UserRecord struct {
	ID               string              `json:"id,omitempty"`
	Username         string              `json:"username,omitempty"`
	Email            string              `json:"email,omitempty"`
	FirstName        string              `json:"firstName,omitempty"`
	LastName         string              `json:"lastName,omitempty"`
	Enabled          bool                `json:"enabled"`
	EmailVerified    bool                `json:"emailVerified"`
	RequiredActions  []string            `json:"requiredActions,omitempty"`
	Attributes       map[string]any      `json:"attributes,omitempty"`
	Credentials      []CredentialRecord  `json:"credentials,omitempty"`
	RealmRoles       []string            `json:"realmRoles,omitempty"`
	Groups           []string            `json:"groups,omitempty"`
	CreatedTimestamp int64               `json:"createdTimestamp,omitempty"`
}

// CredentialRecord carries a credential for user creation or password resets.
type CredentialRecord struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// Role is a realm-level role.
type Role struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite,omitempty"`
	ClientRole  bool   `json:"clientRole,omitempty"`
	ContainerID string `json:"containerId,omitempty"`
}

// Group is a realm group. SubGroups nests arbitrarily deep.
type Group struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Path      string   `json:"path,omitempty"`
	SubGroups []*Group `json:"subGroups,omitempty"`
}

// UserSession is one active session of a user.
type UserSession struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId,omitempty"`
	Username   string            `json:"username,omitempty"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	Start      int64             `json:"start,omitempty"`
	LastAccess int64             `json:"lastAccess,omitempty"`
	Clients    map[string]string `json:"clients,omitempty"`
}

// EventRecord is one entry from the realm event log.
type EventRecord struct {
	Time      int64             `json:"time,omitempty"`
	Type      string            `json:"type,omitempty"`
	RealmID   string            `json:"realmId,omitempty"`
	ClientID  string            `json:"clientId,omitempty"`
	UserID    string            `json:"userId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	IPAddress string            `json:"ipAddress,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// IdentityProvider is a configured upstream identity provider of the realm.
type IdentityProvider struct {
	Alias       string            `json:"alias"`
	DisplayName string            `json:"displayName,omitempty"`
	ProviderID  string            `json:"providerId,omitempty"`
	Enabled     bool              `json:"enabled"`
	Config      map[string]string `json:"config,omitempty"`
}

// TokenGrant is a successful response from the token endpoint.
type TokenGrant struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	IDToken          string `json:"id_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	SessionState     string `json:"session_state,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// RealmSettings is the subset of the realm representation the adapter reads
// and writes. Unknown fields round-trip through Raw so a partial PUT does not
// clobber settings the adapter does not model.
type RealmSettings struct {
	Realm                 string            `json:"realm"`
	Enabled               bool              `json:"enabled"`
	SSOSessionMaxLifespan int               `json:"ssoSessionMaxLifespan,omitempty"`
	SSOSessionIdleTimeout int               `json:"ssoSessionIdleTimeout,omitempty"`
	AccessTokenLifespan   int               `json:"accessTokenLifespan,omitempty"`
	Attributes            map[string]string `json:"attributes,omitempty"`
}

// DiscoveryDocument is the OpenID Connect discovery document of the realm.
// Only the endpoints the adapter uses are modeled.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri"`
}
