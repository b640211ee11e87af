// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// fakeKeycloak is an in-memory stand-in for the parts of the Keycloak API the
// gateway talks to. Request counters let tests assert which checks were
// reached.
type fakeKeycloak struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	users        map[string]*UserRecord
	roles        map[string]*Role
	groups       []*Group
	userRoles    map[string][]*Role
	lockedUsers  map[string]bool
	sessions     map[string]int
	realm        RealmSettings
	clearedUsers []string
	passwordCode int // non-zero forces this status on password grants
	refreshCode  int
	adminRejects int // number of admin requests to reject with 401
	adminClaims  jwt.MapClaims

	passwordGrantCalls int
	clientGrantCalls   int
	sessionListCalls   int
	userSearchCalls    int
	discoveryCalls     int
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()

	f := &fakeKeycloak{
		t:           t,
		users:       make(map[string]*UserRecord),
		roles:       make(map[string]*Role),
		userRoles:   make(map[string][]*Role),
		lockedUsers: make(map[string]bool),
		sessions:    make(map[string]int),
		realm: RealmSettings{
			Realm:      "test",
			Enabled:    true,
			Attributes: map[string]string{},
		},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// client builds a gateway pointed at the fake server.
func (f *fakeKeycloak) client(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{
		ServerURL:         f.server.URL,
		Realm:             "test",
		ClientID:          "my-client",
		ClientSecret:      "client-secret",
		AdminClientID:     "admin-cli",
		AdminClientSecret: "admin-secret",
		CallbackURI:       "http://localhost/callback",
	})
	require.NoError(t, err)
	return c
}

func (f *fakeKeycloak) addUser(user *UserRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
}

// adminToken mints a decodable service-account token. The gateway never
// verifies its signature, so a fixed HMAC key is fine.
func (f *fakeKeycloak) adminToken() string {
	claims := f.adminClaims
	if claims == nil {
		claims = jwt.MapClaims{
			"exp": time.Now().Add(5 * time.Minute).Unix(),
			"resource_access": map[string]any{
				"realm-management": map[string]any{"roles": []any{"realm-admin"}},
				"account":          map[string]any{"roles": []any{"manage-account"}},
			},
		}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fake"))
	require.NoError(f.t, err)
	return token
}

func (f *fakeKeycloak) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/realms/test/.well-known/openid-configuration":
		f.mu.Lock()
		f.discoveryCalls++
		f.mu.Unlock()
		f.writeJSON(w, http.StatusOK, map[string]string{
			"issuer":                 f.server.URL + "/realms/test",
			"authorization_endpoint": f.server.URL + "/realms/test/protocol/openid-connect/auth",
			"token_endpoint":         f.server.URL + "/realms/test/protocol/openid-connect/token",
			"end_session_endpoint":   f.server.URL + "/realms/test/protocol/openid-connect/logout",
			"jwks_uri":               f.server.URL + "/realms/test/protocol/openid-connect/certs",
		})
	case r.URL.Path == "/realms/test/protocol/openid-connect/token":
		f.handleToken(w, r)
	case strings.HasPrefix(r.URL.Path, "/admin/realms/test"):
		f.handleAdmin(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeKeycloak) handleToken(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		f.clientGrantCalls++
		f.writeJSON(w, http.StatusOK, map[string]any{
			"access_token": f.adminToken(),
			"token_type":   "Bearer",
			"expires_in":   300,
		})
	case "password":
		f.passwordGrantCalls++
		if f.passwordCode != 0 {
			f.writeJSON(w, f.passwordCode, map[string]string{
				"error":             "invalid_grant",
				"error_description": "grant refused",
			})
			return
		}
		f.writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "user-access-token",
			"refresh_token": "user-refresh-token",
			"token_type":    "Bearer",
			"expires_in":    300,
		})
	case "refresh_token":
		if f.refreshCode != 0 {
			f.writeJSON(w, f.refreshCode, map[string]string{"error": "invalid_grant"})
			return
		}
		f.writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "refreshed-access-token",
			"refresh_token": "refreshed-refresh-token",
			"expires_in":    300,
		})
	default:
		f.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (f *fakeKeycloak) handleAdmin(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.adminRejects > 0 {
		f.adminRejects--
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/admin/realms/test")
	segments := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case rest == "" || rest == "/":
		f.handleRealm(w, r)
	case segments[0] == "users":
		f.handleUsers(w, r, segments[1:])
	case segments[0] == "roles":
		f.handleRoles(w, r, segments[1:])
	case segments[0] == "groups":
		f.handleGroups(w, r, segments[1:])
	case segments[0] == "events":
		f.handleEvents(w, r)
	case segments[0] == "attack-detection":
		// DELETE /attack-detection/brute-force/users/{id}
		userID := segments[len(segments)-1]
		f.clearedUsers = append(f.clearedUsers, userID)
		f.lockedUsers[userID] = false
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeKeycloak) handleRealm(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f.writeJSON(w, http.StatusOK, f.realm)
	case http.MethodPut:
		var settings RealmSettings
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&settings))
		f.realm = settings
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeKeycloak) handleUsers(w http.ResponseWriter, r *http.Request, segments []string) {
	switch {
	case len(segments) == 0 && r.Method == http.MethodGet:
		f.userSearchCalls++
		var matches []*UserRecord
		for _, user := range f.users {
			if f.matchesQuery(user, r) {
				matches = append(matches, user)
			}
		}
		f.writeJSON(w, http.StatusOK, matches)
	case len(segments) == 0 && r.Method == http.MethodPost:
		var user UserRecord
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&user))
		user.ID = "created-" + user.Username
		f.users[user.ID] = &user
		w.Header().Set("Location", f.server.URL+"/admin/realms/test/users/"+user.ID)
		w.WriteHeader(http.StatusCreated)
	case len(segments) == 1 && r.Method == http.MethodGet:
		user, ok := f.users[segments[0]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.writeJSON(w, http.StatusOK, user)
	case len(segments) == 1 && r.Method == http.MethodPut:
		var user UserRecord
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&user))
		user.ID = segments[0]
		f.users[user.ID] = &user
		w.WriteHeader(http.StatusNoContent)
	case len(segments) == 1 && r.Method == http.MethodDelete:
		if _, ok := f.users[segments[0]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.users, segments[0])
		w.WriteHeader(http.StatusNoContent)
	case len(segments) == 3 && segments[1] == "role-mappings" && segments[2] == "realm":
		userID := segments[0]
		switch r.Method {
		case http.MethodGet:
			f.writeJSON(w, http.StatusOK, f.userRoles[userID])
		case http.MethodPost:
			var roles []*Role
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&roles))
			f.userRoles[userID] = append(f.userRoles[userID], roles...)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			var roles []*Role
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&roles))
			remove := make(map[string]bool, len(roles))
			for _, role := range roles {
				remove[role.Name] = true
			}
			var kept []*Role
			for _, role := range f.userRoles[userID] {
				if !remove[role.Name] {
					kept = append(kept, role)
				}
			}
			f.userRoles[userID] = kept
			w.WriteHeader(http.StatusNoContent)
		}
	case len(segments) == 2 && segments[1] == "sessions":
		f.sessionListCalls++
		sessions := make([]*UserSession, f.sessions[segments[0]])
		for i := range sessions {
			sessions[i] = &UserSession{ID: "session", UserID: segments[0]}
		}
		f.writeJSON(w, http.StatusOK, sessions)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeKeycloak) matchesQuery(user *UserRecord, r *http.Request) bool {
	query := r.URL.Query()
	for field, want := range map[string]string{
		"username":  user.Username,
		"email":     user.Email,
		"firstName": user.FirstName,
		"lastName":  user.LastName,
	} {
		if v := query.Get(field); v != "" && v != want {
			return false
		}
	}
	return query.Get("username") != "" || query.Get("email") != "" ||
		query.Get("firstName") != "" || query.Get("lastName") != ""
}

func (f *fakeKeycloak) handleRoles(w http.ResponseWriter, r *http.Request, segments []string) {
	switch {
	case len(segments) == 0 && r.Method == http.MethodGet:
		roles := make([]*Role, 0, len(f.roles))
		for _, role := range f.roles {
			roles = append(roles, role)
		}
		f.writeJSON(w, http.StatusOK, roles)
	case len(segments) == 0 && r.Method == http.MethodPost:
		var role Role
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&role))
		role.ID = "role-" + role.Name
		f.roles[role.Name] = &role
		w.WriteHeader(http.StatusCreated)
	case len(segments) == 1 && r.Method == http.MethodGet:
		role, ok := f.roles[segments[0]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.writeJSON(w, http.StatusOK, role)
	case len(segments) == 1 && r.Method == http.MethodDelete:
		delete(f.roles, segments[0])
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeKeycloak) handleGroups(w http.ResponseWriter, r *http.Request, segments []string) {
	switch {
	case len(segments) == 0 && r.Method == http.MethodGet:
		f.writeJSON(w, http.StatusOK, f.groups)
	case len(segments) == 0 && r.Method == http.MethodPost:
		var group Group
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&group))
		group.ID = "group-" + group.Name
		group.Path = "/" + group.Name
		f.groups = append(f.groups, &group)
		w.Header().Set("Location", f.server.URL+"/admin/realms/test/groups/"+group.ID)
		w.WriteHeader(http.StatusCreated)
	case len(segments) == 2 && segments[1] == "children" && r.Method == http.MethodPost:
		parent := f.findGroup(segments[0])
		if parent == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var group Group
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&group))
		group.ID = "group-" + group.Name
		group.Path = parent.Path + "/" + group.Name
		parent.SubGroups = append(parent.SubGroups, &group)
		w.Header().Set("Location", f.server.URL+"/admin/realms/test/groups/"+group.ID)
		w.WriteHeader(http.StatusCreated)
	case len(segments) == 1 && r.Method == http.MethodGet:
		group := f.findGroup(segments[0])
		if group == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.writeJSON(w, http.StatusOK, group)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeKeycloak) findGroup(id string) *Group {
	var walk func([]*Group) *Group
	walk = func(groups []*Group) *Group {
		for _, g := range groups {
			if g.ID == id {
				return g
			}
			if found := walk(g.SubGroups); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(f.groups)
}

func (f *fakeKeycloak) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		f.lockedUsers = make(map[string]bool)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	userID := r.URL.Query().Get("user")
	var events []*EventRecord
	if f.lockedUsers[userID] {
		events = append(events, &EventRecord{
			Type:   "LOGIN_ERROR",
			UserID: userID,
			Error:  "user_temporarily_disabled",
		})
	}
	f.writeJSON(w, http.StatusOK, events)
}

func (f *fakeKeycloak) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(f.t, json.NewEncoder(w).Encode(body))
}
