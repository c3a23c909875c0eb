package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koor-fr/security-component/internal/config"
	"github.com/koor-fr/security-component/internal/security"
)

func newProvider(t *testing.T) *goose.Provider {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "security.db")

	store, err := security.OpenStore(context.Background(), cfg.Database, false, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	provider, err := store.MigrationProvider()
	require.NoError(t, err)
	return provider
}

func TestMigrateCommands(t *testing.T) {
	ctx := context.Background()
	provider := newProvider(t)
	var out bytes.Buffer

	require.NoError(t, migrate(ctx, provider, "status", &out))
	assert.Contains(t, out.String(), "pending")

	out.Reset()
	require.NoError(t, migrate(ctx, provider, "up", &out))
	assert.Contains(t, out.String(), "Applied 00001_init.sql")

	out.Reset()
	require.NoError(t, migrate(ctx, provider, "up", &out))
	assert.Contains(t, out.String(), "No pending migrations")

	out.Reset()
	require.NoError(t, migrate(ctx, provider, "db-version", &out))
	assert.Equal(t, "Schema version: 1\n", out.String())

	out.Reset()
	require.NoError(t, migrate(ctx, provider, "down", &out))
	assert.Contains(t, out.String(), "Rolled back 00001_init.sql")

	out.Reset()
	require.NoError(t, migrate(ctx, provider, "db-version", &out))
	assert.Equal(t, "Schema version: 0\n", out.String())

	assert.Error(t, migrate(ctx, provider, "sideways", &out))
}
