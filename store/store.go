// Package store persists channel identities and their append-only live
// snapshots. Channels are idempotently upserted keyed by (platform,
// channel_id); snapshots are immutable once written and only removed by an
// explicit administrative clear.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onnwee/streamlens/platform"
)

// Store wraps the shared *sql.DB with the persistence operations the
// collector and the query engine rely on.
type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

// Channel is the persistent identity of a streamer on one platform.
type Channel struct {
	ID              int64
	Platform        string
	ChannelID       string
	Username        string
	DisplayName     string
	Description     string
	ProfileImageURL string
	FollowerCount   int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Snapshot is one immutable observation of a channel's live state.
type Snapshot struct {
	ID           int64
	ChannelID    int64
	Title        string
	GameName     string
	GameID       string
	ViewerCount  int
	Language     string
	StartedAt    time.Time
	CollectedAt  time.Time
	ThumbnailURL string
	StreamURL    string
}

// UpsertChannel inserts or updates the channel identified by
// (obs.Platform, obs.ChannelID) in a single statement, so the uniqueness
// invariant holds under concurrent calls. Only better information overwrites:
// an empty description/profile image or a zero follower count never clobbers
// a previously known value. updated_at is always refreshed.
func (s *Store) UpsertChannel(ctx context.Context, obs platform.Observation) (Channel, error) {
	// The username fallback for display_name applies only on first insert;
	// the conflict branch reads the raw $4 so an empty incoming display name
	// never replaces a stored one with the bare username.
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO channels (platform, channel_id, username, display_name, description, profile_image_url, follower_count, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), $3), NULLIF($5, ''), NULLIF($6, ''), $7, NOW(), NOW())
		ON CONFLICT (platform, channel_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = COALESCE(NULLIF($4, ''), channels.display_name),
			description = COALESCE(EXCLUDED.description, channels.description),
			profile_image_url = COALESCE(EXCLUDED.profile_image_url, channels.profile_image_url),
			follower_count = CASE WHEN EXCLUDED.follower_count > 0 THEN EXCLUDED.follower_count ELSE channels.follower_count END,
			updated_at = NOW()
		RETURNING id, platform, channel_id, username, COALESCE(display_name, ''), COALESCE(description, ''),
			COALESCE(profile_image_url, ''), follower_count, created_at, updated_at`,
		obs.Platform, obs.ChannelID, obs.Username, obs.DisplayName, obs.Description, obs.ProfileImageURL, obs.FollowerCount)

	var ch Channel
	if err := row.Scan(&ch.ID, &ch.Platform, &ch.ChannelID, &ch.Username, &ch.DisplayName,
		&ch.Description, &ch.ProfileImageURL, &ch.FollowerCount, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return Channel{}, fmt.Errorf("upsert channel %s/%s: %w", obs.Platform, obs.ChannelID, err)
	}
	return ch, nil
}

// AppendSnapshot inserts one observation for the channel. collected_at is
// assigned here, at insert time, not from the source platform, so snapshots
// for a channel are in non-decreasing collected_at order within a cycle.
func (s *Store) AppendSnapshot(ctx context.Context, channelID int64, obs platform.Observation) (Snapshot, error) {
	collectedAt := time.Now().UTC()
	var startedAt any
	if !obs.StartedAt.IsZero() {
		startedAt = obs.StartedAt.UTC()
	}
	snap := Snapshot{
		ChannelID:    channelID,
		Title:        obs.Title,
		GameName:     obs.CategoryName,
		GameID:       obs.CategoryID,
		ViewerCount:  obs.ViewerCount,
		Language:     obs.Language,
		StartedAt:    obs.StartedAt,
		CollectedAt:  collectedAt,
		ThumbnailURL: obs.ThumbnailURL,
		StreamURL:    obs.StreamURL,
	}
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO live_snapshots (channel_id, title, game_name, game_id, viewer_count, language, started_at, collected_at, thumbnail_url, stream_url)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''))
		RETURNING id`,
		channelID, obs.Title, obs.CategoryName, obs.CategoryID, obs.ViewerCount, obs.Language,
		startedAt, collectedAt, obs.ThumbnailURL, obs.StreamURL).Scan(&snap.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("append snapshot for channel %d: %w", channelID, err)
	}
	return snap, nil
}

// ClearAll deletes all snapshots then all channels in one transaction. This
// is an administrative reset, not part of the steady-state pipeline.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM live_snapshots`); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels`); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}
	return tx.Commit()
}

// Stats summarizes the accumulated data for the status surface.
type Stats struct {
	TotalChannels       int            `json:"total_channels"`
	TotalSnapshots      int            `json:"total_snapshots"`
	SnapshotsByPlatform map[string]int `json:"snapshots_by_platform"`
	LatestCollection    *time.Time     `json:"latest_collection,omitempty"`
}

// Stats returns totals plus the most recent collected_at across platforms.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{SnapshotsByPlatform: map[string]int{}}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&st.TotalChannels); err != nil {
		return Stats{}, fmt.Errorf("count channels: %w", err)
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM live_snapshots`).Scan(&st.TotalSnapshots); err != nil {
		return Stats{}, fmt.Errorf("count snapshots: %w", err)
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT c.platform, COUNT(s.id)
		FROM channels c JOIN live_snapshots s ON s.channel_id = c.id
		GROUP BY c.platform`)
	if err != nil {
		return Stats{}, fmt.Errorf("snapshots by platform: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return Stats{}, err
		}
		st.SnapshotsByPlatform[p] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	var latest sql.NullTime
	if err := s.DB.QueryRowContext(ctx, `SELECT MAX(collected_at) FROM live_snapshots`).Scan(&latest); err != nil {
		return Stats{}, fmt.Errorf("latest collection: %w", err)
	}
	if latest.Valid {
		t := latest.Time
		st.LatestCollection = &t
	}
	return st, nil
}
