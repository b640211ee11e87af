// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchUserFieldAllowList(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	client := f.client(t)

	testCases := []struct {
		name  string
		field string
		value string
	}{
		{name: "unknown field", field: "enabled", value: "true"},
		{name: "typo field", field: "emial", value: "a@example.com"},
		{name: "empty value", field: "email", value: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.SearchUser(context.Background(), tc.field, tc.value)
			var configErr *ConfigError
			require.ErrorAs(t, err, &configErr)
		})
	}

	// The rejection happens locally: no token was acquired and no search hit
	// the server.
	assert.Equal(t, 0, f.clientGrantCalls)
	assert.Equal(t, 0, f.userSearchCalls)
}

func TestSearchUser(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	f.addUser(aliceUser())
	client := f.client(t)
	ctx := context.Background()

	user, err := client.SearchUser(ctx, "email", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice-id", user.ID)

	_, err = client.SearchUser(ctx, "username", "nobody")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetUser(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	f.addUser(aliceUser())
	client := f.client(t)
	ctx := context.Background()

	user, err := client.GetUser(ctx, "alice-id")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = client.GetUser(ctx, "missing-id")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	client := f.client(t)

	created, err := client.CreateUser(context.Background(), &UserRecord{
		Username: "carol",
		Email:    "carol@example.com",
		Enabled:  true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID, "created user carries the server-assigned ID")
	assert.Equal(t, "carol", created.Username)
}

func TestUpdateUserReturnsStoredState(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	f.addUser(aliceUser())
	client := f.client(t)

	user := aliceUser()
	user.FirstName = "Alice"
	updated, err := client.UpdateUser(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.FirstName)

	_, err = client.UpdateUser(context.Background(), &UserRecord{Username: "no-id"})
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	f.addUser(aliceUser())
	client := f.client(t)
	ctx := context.Background()

	require.NoError(t, client.DeleteUser(ctx, "alice-id"))
	require.ErrorIs(t, client.DeleteUser(ctx, "alice-id"), ErrUserNotFound)
}

func TestSetAccountExpiration(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	f.addUser(aliceUser())
	client := f.client(t)
	ctx := context.Background()

	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, client.SetAccountExpiration(ctx, "alice-id", expiry))

	user, err := client.GetUser(ctx, "alice-id")
	require.NoError(t, err)
	assert.Equal(t, "2030-01-02T03:04:05Z", user.Attributes[accountExpirationAttribute])

	// The zero time clears the attribute.
	require.NoError(t, client.SetAccountExpiration(ctx, "alice-id", time.Time{}))
	user, err = client.GetUser(ctx, "alice-id")
	require.NoError(t, err)
	_, present := user.Attributes[accountExpirationAttribute]
	assert.False(t, present)
}
