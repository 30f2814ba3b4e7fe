package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Schema contains the ordered migrations for the ledger tables
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		address TEXT PRIMARY KEY,
		lamports BIGINT NOT NULL CHECK (lamports >= 0),
		owner TEXT NOT NULL,
		data BYTEA NOT NULL DEFAULT ''::bytea,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner)`,

	// Append-only event journal written in the same transaction as the state it describes
	`CREATE TABLE IF NOT EXISTS ledger_journal (
		id BIGSERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_ledger_journal_kind ON ledger_journal(kind)`,
}

// InitSchema initializes the database schema
func InitSchema(ctx context.Context, s *PostgresStore) error {
	return s.withPgxTx(ctx, func(tx pgx.Tx) error {
		// Create schema version table if it doesn't exist
		_, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_versions (
				version INTEGER PRIMARY KEY,
				applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)
		`)
		if err != nil {
			return fmt.Errorf("failed to create schema versions table: %w", err)
		}

		// Check current version
		var currentVersion int
		err = tx.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&currentVersion)
		if err != nil {
			return fmt.Errorf("failed to get current schema version: %w", err)
		}

		// Apply missing migrations
		for version, migration := range Schema {
			version++ // 1-based versioning
			if version > currentVersion {
				if _, err := tx.Exec(ctx, migration); err != nil {
					return fmt.Errorf("failed to apply migration %d: %w", version, err)
				}
				if _, err := tx.Exec(ctx, "INSERT INTO schema_versions (version) VALUES ($1)", version); err != nil {
					return fmt.Errorf("failed to record migration %d: %w", version, err)
				}
			}
		}

		return nil
	})
}
