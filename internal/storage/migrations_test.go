package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAndRollbackMigrations(t *testing.T) {
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))
	// Applying twice is a no-op
	require.NoError(t, ApplyMigrations(ctx, db))

	var version string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&version))
	assert.Equal(t, CurrentSchemaVersion, version)

	for _, table := range []string{"term_indexes", "documents", "postings", "vectors", "pattern_stats", "patterns"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}

	require.NoError(t, RollbackMigration(ctx, db))

	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='term_indexes'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
