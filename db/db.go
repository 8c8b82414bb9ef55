// Package db provides database connection helpers and schema migration.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and
// indices. It is the fallback for deployments without the versioned
// migrations table; see RunMigrations for the primary path.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id BIGSERIAL PRIMARY KEY,
			platform TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			username TEXT NOT NULL,
			display_name TEXT,
			description TEXT,
			profile_image_url TEXT,
			follower_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_platform_channel ON channels(platform, channel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_platform_username ON channels(platform, username)`,
		`CREATE TABLE IF NOT EXISTS live_snapshots (
			id BIGSERIAL PRIMARY KEY,
			channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
			title TEXT,
			game_name TEXT,
			game_id TEXT,
			viewer_count INTEGER NOT NULL DEFAULT 0,
			language TEXT,
			started_at TIMESTAMPTZ,
			collected_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			thumbnail_url TEXT,
			stream_url TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_collected_at ON live_snapshots(collected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_channel_collected ON live_snapshots(channel_id, collected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_game_collected ON live_snapshots(game_name, collected_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
