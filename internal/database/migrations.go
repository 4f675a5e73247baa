package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name: "create transcripts",
		sql: `CREATE TABLE IF NOT EXISTS transcripts (
    id                bigserial PRIMARY KEY,
    job_id            uuid NOT NULL UNIQUE,
    source            text NOT NULL,
    audio_path        text NOT NULL,
    text              text NOT NULL,
    fragments         jsonb NOT NULL DEFAULT '[]',
    language          text,
    provider          text NOT NULL,
    model             text NOT NULL,
    audio_duration_ms int NOT NULL DEFAULT 0,
    elapsed_ms        int NOT NULL DEFAULT 0,
    created_at        timestamptz NOT NULL DEFAULT now()
)`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'transcripts')`,
	},
	{
		name:  "add transcripts created_at index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts (created_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_transcripts_created')`,
	},
	{
		name:  "add transcripts audio_path index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_transcripts_audio_path ON transcripts (audio_path)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_transcripts_audio_path')`,
	},
}

// Migrate applies any pending migrations in order.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Apply the remaining schema manually:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
