// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUserLockedOut(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	f.addUser(aliceUser())
	f.lockedUsers["alice-id"] = true
	client := f.client(t)
	ctx := context.Background()

	locked, err := client.IsUserLockedOut(ctx, "alice-id")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = client.IsUserLockedOut(ctx, "other-id")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestClearLoginFailures(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	user := aliceUser()
	user.Enabled = false
	f.addUser(user)
	f.lockedUsers["alice-id"] = true
	client := f.client(t)
	ctx := context.Background()

	require.NoError(t, client.ClearLoginFailures(ctx, "alice-id"))
	assert.Contains(t, f.clearedUsers, "alice-id")

	// The lockout-disabled account is usable again.
	stored, err := client.GetUser(ctx, "alice-id")
	require.NoError(t, err)
	assert.True(t, stored.Enabled)

	locked, err := client.IsUserLockedOut(ctx, "alice-id")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestGetActiveSessions(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	f.sessions["alice-id"] = 3
	client := f.client(t)

	sessions, err := client.GetActiveSessions(context.Background(), "alice-id")
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}
