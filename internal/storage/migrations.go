package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.0.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Named term indexes and vector models
CREATE TABLE IF NOT EXISTS term_indexes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    system TEXT NOT NULL,
    kind TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    document_count INTEGER DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_term_indexes_system ON term_indexes(system);

-- Indexed documents
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    index_id INTEGER NOT NULL,
    ordinal INTEGER NOT NULL,
    doc_key TEXT NOT NULL,
    stored TEXT NOT NULL,
    field_lengths TEXT NOT NULL,
    FOREIGN KEY (index_id) REFERENCES term_indexes(id) ON DELETE CASCADE,
    UNIQUE(index_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_documents_key ON documents(index_id, doc_key);

-- Inverted index postings
CREATE TABLE IF NOT EXISTS postings (
    index_id INTEGER NOT NULL,
    field TEXT NOT NULL,
    term TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    frequency INTEGER NOT NULL,
    FOREIGN KEY (index_id) REFERENCES term_indexes(id) ON DELETE CASCADE,
    PRIMARY KEY (index_id, field, term, ordinal)
);

-- Latent-semantic term and document vectors
CREATE TABLE IF NOT EXISTS vectors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    index_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    vector_key TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    vector BLOB NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (index_id) REFERENCES term_indexes(id) ON DELETE CASCADE,
    UNIQUE(index_id, kind, vector_key)
);

-- Per-pattern operand sizes for scoring
CREATE TABLE IF NOT EXISTS pattern_stats (
    index_id INTEGER NOT NULL,
    pattern_id TEXT NOT NULL,
    operand_sizes TEXT NOT NULL,
    FOREIGN KEY (index_id) REFERENCES term_indexes(id) ON DELETE CASCADE,
    PRIMARY KEY (index_id, pattern_id)
);

-- Detected pattern cache per analyzed system
CREATE TABLE IF NOT EXISTS patterns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    system TEXT NOT NULL,
    pattern_id TEXT NOT NULL,
    type TEXT NOT NULL,
    package_path TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(system, pattern_id)
);

CREATE INDEX IF NOT EXISTS idx_patterns_system ON patterns(system);
CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(system, type);
`

const migrationV1Down = `
-- Drop all tables in reverse order of dependencies
DROP TABLE IF EXISTS patterns;
DROP TABLE IF EXISTS pattern_stats;
DROP TABLE IF EXISTS vectors;
DROP TABLE IF EXISTS postings;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS term_indexes;
`

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	// Check if schema_version table exists
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	// Parse current version (default to 0.0.0 if no migrations applied or table doesn't exist)
	var currentVersion *semver.Version
	if err == sql.ErrNoRows {
		// schema_version table doesn't exist, start from 0.0.0
		currentVersion = semver.MustParse("0.0.0")
	} else if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	} else {
		// Table exists, check current version
		var currentVersionStr string
		err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&currentVersionStr)
		if err == sql.ErrNoRows || currentVersionStr == "" {
			currentVersion = semver.MustParse("0.0.0")
		} else if err != nil {
			return fmt.Errorf("failed to read schema_version: %w", err)
		} else {
			currentVersion, err = semver.NewVersion(currentVersionStr)
			if err != nil {
				return fmt.Errorf("invalid current schema version %s: %w", currentVersionStr, err)
			}
		}
	}

	// Run migrations in order
	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		// Skip if already applied (LessThanOrEqual means current >= migration)
		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		// Execute migration
		_, err = db.ExecContext(ctx, migration.Up)
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		// Record migration
		_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version)
		if err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		// Update current version for next iteration
		currentVersion = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	// Get current version
	var currentVersion string
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	// Find migration
	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == currentVersion {
			migration = &AllMigrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %s not found", currentVersion)
	}

	// Execute rollback
	_, err = db.ExecContext(ctx, migration.Down)
	if err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", currentVersion, err)
	}

	// Remove version record
	_, err = db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", currentVersion)
	if err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", currentVersion, err)
	}

	return nil
}
