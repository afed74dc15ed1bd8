//go:build integration

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atedays1/ate-days-homebase-sub000/internal/testutil"
)

func TestMigrateAndConnect(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer func() { _ = pc.Terminate(ctx) }()

	version, err := Migrate(pc.ConnectionString())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	again, err := Migrate(pc.ConnectionString())
	require.NoError(t, err)
	assert.Equal(t, version, again)

	pool, err := NewPool(ctx, Config{URL: pc.ConnectionString(), MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'document_chunks')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewPool_RequiresURL(t *testing.T) {
	_, err := NewPool(context.Background(), Config{})
	assert.Error(t, err)
}
