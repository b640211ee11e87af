// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroupAndResolveByPath(t *testing.T) {
	t.Parallel()

	f := newFakeKeycloak(t)
	client := f.client(t)
	ctx := context.Background()

	engineering, err := client.CreateGroup(ctx, "engineering", "")
	require.NoError(t, err)
	assert.Equal(t, "/engineering", engineering.Path)

	backend, err := client.CreateGroup(ctx, "backend", engineering.ID)
	require.NoError(t, err)
	assert.Equal(t, "/engineering/backend", backend.Path)

	resolved, err := client.GetGroupByPath(ctx, "/engineering/backend")
	require.NoError(t, err)
	assert.Equal(t, backend.ID, resolved.ID)

	_, err = client.GetGroupByPath(ctx, "/engineering/frontend")
	require.Error(t, err)

	_, err = client.GetGroupByPath(ctx, "")
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
}
