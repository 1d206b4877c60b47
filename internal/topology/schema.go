// Package topology provides persistent network topology storage.
package topology

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the SQLite topology store.
const schemaV1 = `
-- Cortical areas with their propagation and retention settings
CREATE TABLE IF NOT EXISTS areas (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    leak REAL DEFAULT 0,
    psp_uniform INTEGER DEFAULT 0,
    mp_driven INTEGER DEFAULT 0,
    memory_decay REAL DEFAULT 0,
    ledger_window INTEGER DEFAULT 0
);

-- Neurons (denormalized; one row per neuron, loaded in id order)
CREATE TABLE IF NOT EXISTS neurons (
    id INTEGER PRIMARY KEY,
    area_id INTEGER NOT NULL REFERENCES areas(id),
    x INTEGER NOT NULL,
    y INTEGER NOT NULL,
    z INTEGER NOT NULL,
    threshold REAL NOT NULL,
    threshold_limit REAL DEFAULT 0,
    leak REAL DEFAULT 0,
    resting REAL DEFAULT 0,
    excitability REAL DEFAULT 1,
    refractory_period INTEGER DEFAULT 0,
    consecutive_fire_limit INTEGER DEFAULT 0,
    snooze_period INTEGER DEFAULT 0,
    kind INTEGER DEFAULT 0  -- 0 standard, 1 memory
);
CREATE INDEX IF NOT EXISTS idx_neurons_area ON neurons(area_id);

-- Synapses
CREATE TABLE IF NOT EXISTS synapses (
    id INTEGER PRIMARY KEY,
    source INTEGER NOT NULL REFERENCES neurons(id),
    target INTEGER NOT NULL REFERENCES neurons(id),
    weight INTEGER NOT NULL,  -- 0..255
    psp INTEGER NOT NULL,     -- 0..255
    type INTEGER NOT NULL     -- 0 excitatory, 1 inhibitory
);
CREATE INDEX IF NOT EXISTS idx_synapses_source ON synapses(source);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema initializes the database schema.
// It creates all tables and applies migrations as needed.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if currentVersion < SchemaVersion {
		if err := migrateSchema(ctx, db, currentVersion); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// createSchema creates the initial database schema.
func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// migrateSchema applies migrations from currentVersion to SchemaVersion.
func migrateSchema(ctx context.Context, db *sql.DB, currentVersion int) error {
	// Currently only one version, no migrations needed
	_ = currentVersion
	return nil
}
