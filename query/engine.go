// Package query answers read-side questions over the collected snapshot
// history: current top streams, activity rankings, category aggregates,
// per-channel history, keyword search and CSV export rows.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/streamlens/store"
)

// ErrNotFound is returned when a referenced channel does not exist.
var ErrNotFound = errors.New("channel not found")

// DefaultRecency is the cutoff beyond which a channel's latest snapshot no
// longer counts as "currently live".
const DefaultRecency = time.Hour

type Engine struct {
	DB *sql.DB
}

func New(db *sql.DB) *Engine { return &Engine{DB: db} }

// SortKey selects the ordering of TopStreams.
type SortKey string

const (
	SortByViewers   SortKey = "viewers"
	SortByFollowers SortKey = "followers"
)

// LiveStream is the latest snapshot of one live channel joined with its
// channel identity.
type LiveStream struct {
	Platform      string    `json:"platform"`
	ChannelID     string    `json:"channel_id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Title         string    `json:"title"`
	GameName      string    `json:"game_name"`
	ViewerCount   int       `json:"viewer_count"`
	Language      string    `json:"language"`
	StartedAt     time.Time `json:"started_at"`
	ThumbnailURL  string    `json:"thumbnail_url"`
	StreamURL     string    `json:"stream_url"`
	FollowerCount int64     `json:"follower_count"`
	CollectedAt   time.Time `json:"collected_at"`
}

// TopStreams returns the most recent snapshot per channel for a platform,
// restricted to snapshots collected within recency (DefaultRecency when
// zero), ordered by the given sort key. Each channel appears at most once.
func (e *Engine) TopStreams(ctx context.Context, platform string, limit int, sortBy SortKey, recency time.Duration) ([]LiveStream, error) {
	order := "s.viewer_count DESC"
	if sortBy == SortByFollowers {
		order = "c.follower_count DESC"
	}
	if recency <= 0 {
		recency = DefaultRecency
	}
	cutoff := time.Now().UTC().Add(-recency)
	rows, err := e.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.platform, c.channel_id, c.username, COALESCE(c.display_name, ''),
			COALESCE(s.title, ''), COALESCE(s.game_name, ''), s.viewer_count,
			COALESCE(s.language, ''), COALESCE(s.started_at, 'epoch'::timestamptz),
			COALESCE(s.thumbnail_url, ''), COALESCE(s.stream_url, ''),
			c.follower_count, s.collected_at
		FROM (
			SELECT DISTINCT ON (channel_id) *
			FROM live_snapshots
			WHERE collected_at >= $2
			ORDER BY channel_id, collected_at DESC, id DESC
		) s
		JOIN channels c ON c.id = s.channel_id
		WHERE c.platform = $1
		ORDER BY %s
		LIMIT $3`, order),
		platform, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("top streams: %w", err)
	}
	defer rows.Close()
	return scanLiveStreams(rows)
}

func scanLiveStreams(rows *sql.Rows) ([]LiveStream, error) {
	var out []LiveStream
	for rows.Next() {
		var ls LiveStream
		if err := rows.Scan(&ls.Platform, &ls.ChannelID, &ls.Username, &ls.DisplayName,
			&ls.Title, &ls.GameName, &ls.ViewerCount, &ls.Language, &ls.StartedAt,
			&ls.ThumbnailURL, &ls.StreamURL, &ls.FollowerCount, &ls.CollectedAt); err != nil {
			return nil, err
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

// ActiveStreamer aggregates one channel's activity over a window.
type ActiveStreamer struct {
	Platform             string     `json:"platform"`
	ChannelID            string     `json:"channel_id"`
	Username             string     `json:"username"`
	DisplayName          string     `json:"display_name"`
	FollowerCount        int64      `json:"follower_count"`
	ProfileImageURL      string     `json:"profile_image_url"`
	StreamCount          int        `json:"stream_count"`
	TotalSnapshots       int        `json:"total_snapshots"`
	AvgViewers           float64    `json:"avg_viewers"`
	PeakViewers          int        `json:"peak_viewers"`
	LastSeen             *time.Time `json:"last_seen"`
	StreamURL            string     `json:"stream_url,omitempty"`
	TotalDurationMinutes int        `json:"total_duration_minutes"`
}

// MostActive ranks channels by distinct streaming sessions within the window.
// A session is approximated by the distinct hour a stream started in, so long
// streams count once and restarts within the same hour collapse together.
func (e *Engine) MostActive(ctx context.Context, platform string, window time.Duration, limit int, sampleInterval time.Duration) ([]ActiveStreamer, error) {
	since := time.Now().UTC().Add(-window)
	rows, err := e.DB.QueryContext(ctx, `
		SELECT c.platform, c.channel_id, c.username, COALESCE(c.display_name, ''),
			c.follower_count, COALESCE(c.profile_image_url, ''),
			COUNT(DISTINCT date_trunc('hour', s.started_at)) AS stream_count,
			COUNT(s.id) AS total_snapshots,
			COALESCE(AVG(s.viewer_count), 0) AS avg_viewers,
			COALESCE(MAX(s.viewer_count), 0) AS peak_viewers,
			MAX(s.collected_at) AS last_seen
		FROM channels c
		JOIN live_snapshots s ON s.channel_id = c.id
		WHERE c.platform = $1 AND s.collected_at >= $2
		GROUP BY c.platform, c.channel_id, c.username, c.display_name, c.follower_count, c.profile_image_url
		ORDER BY stream_count DESC
		LIMIT $3`,
		platform, since, limit)
	if err != nil {
		return nil, fmt.Errorf("most active: %w", err)
	}
	defer rows.Close()

	minutes := int(sampleInterval.Minutes())
	if minutes <= 0 {
		minutes = 2
	}
	var out []ActiveStreamer
	for rows.Next() {
		var a ActiveStreamer
		var lastSeen sql.NullTime
		if err := rows.Scan(&a.Platform, &a.ChannelID, &a.Username, &a.DisplayName,
			&a.FollowerCount, &a.ProfileImageURL, &a.StreamCount, &a.TotalSnapshots,
			&a.AvgViewers, &a.PeakViewers, &lastSeen); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			t := lastSeen.Time
			a.LastSeen = &t
		}
		switch a.Platform {
		case "twitch":
			a.StreamURL = "https://www.twitch.tv/" + a.Username
		case "kick":
			a.StreamURL = "https://kick.com/" + a.Username
		}
		a.TotalDurationMinutes = a.TotalSnapshots * minutes
		out = append(out, a)
	}
	return out, rows.Err()
}

// CategoryStats aggregates snapshot counts and viewer figures per category.
type CategoryStats struct {
	GameName     string  `json:"game_name"`
	TotalStreams int     `json:"total_streams"`
	TotalViewers int64   `json:"total_viewers"`
	AvgViewers   float64 `json:"avg_viewers"`
	PeakViewers  int     `json:"peak_viewers"`
}

// Categories returns per-category aggregates for a platform within a window,
// ordered by total viewers. Snapshots with no category are excluded.
func (e *Engine) Categories(ctx context.Context, platform string, window time.Duration, limit int) ([]CategoryStats, error) {
	since := time.Now().UTC().Add(-window)
	rows, err := e.DB.QueryContext(ctx, `
		SELECT s.game_name,
			COUNT(s.id) AS total_streams,
			COALESCE(SUM(s.viewer_count), 0) AS total_viewers,
			COALESCE(AVG(s.viewer_count), 0) AS avg_viewers,
			COALESCE(MAX(s.viewer_count), 0) AS peak_viewers
		FROM live_snapshots s
		JOIN channels c ON c.id = s.channel_id
		WHERE c.platform = $1 AND s.collected_at >= $2 AND s.game_name IS NOT NULL AND s.game_name <> ''
		GROUP BY s.game_name
		ORDER BY total_viewers DESC
		LIMIT $3`,
		platform, since, limit)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	var out []CategoryStats
	for rows.Next() {
		var cs CategoryStats
		if err := rows.Scan(&cs.GameName, &cs.TotalStreams, &cs.TotalViewers, &cs.AvgViewers, &cs.PeakViewers); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// History is a channel's snapshots within a window plus summary stats.
type History struct {
	Channel         store.Channel    `json:"channel"`
	Snapshots       []store.Snapshot `json:"snapshots"`
	TotalSnapshots  int              `json:"total_snapshots"`
	AvgViewerCount  float64          `json:"avg_viewer_count"`
	PeakViewerCount int              `json:"peak_viewer_count"`
}

// ChannelHistory returns a channel's snapshots within the window in
// chronological order. The ref is tried as the platform channel id first and
// as a case-insensitive username second. A known channel with no snapshots in
// the window yields an empty history with zeroed stats, not an error.
func (e *Engine) ChannelHistory(ctx context.Context, platform, ref string, window time.Duration) (*History, error) {
	ch, err := e.findChannel(ctx, platform, ref)
	if err != nil {
		return nil, err
	}
	since := time.Now().UTC().Add(-window)
	rows, err := e.DB.QueryContext(ctx, `
		SELECT id, channel_id, COALESCE(title, ''), COALESCE(game_name, ''), COALESCE(game_id, ''),
			viewer_count, COALESCE(language, ''), COALESCE(started_at, 'epoch'::timestamptz),
			collected_at, COALESCE(thumbnail_url, ''), COALESCE(stream_url, '')
		FROM live_snapshots
		WHERE channel_id = $1 AND collected_at >= $2
		ORDER BY collected_at ASC`,
		ch.ID, since)
	if err != nil {
		return nil, fmt.Errorf("channel history: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty history serializes as [], not null.
	h := &History{Channel: ch, Snapshots: []store.Snapshot{}}
	var sum int64
	for rows.Next() {
		var s store.Snapshot
		if err := rows.Scan(&s.ID, &s.ChannelID, &s.Title, &s.GameName, &s.GameID,
			&s.ViewerCount, &s.Language, &s.StartedAt, &s.CollectedAt,
			&s.ThumbnailURL, &s.StreamURL); err != nil {
			return nil, err
		}
		h.Snapshots = append(h.Snapshots, s)
		sum += int64(s.ViewerCount)
		if s.ViewerCount > h.PeakViewerCount {
			h.PeakViewerCount = s.ViewerCount
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	h.TotalSnapshots = len(h.Snapshots)
	if h.TotalSnapshots > 0 {
		h.AvgViewerCount = float64(sum) / float64(h.TotalSnapshots)
	}
	return h, nil
}

func (e *Engine) findChannel(ctx context.Context, platform, ref string) (store.Channel, error) {
	const cols = `id, platform, channel_id, username, COALESCE(display_name, ''), COALESCE(description, ''),
		COALESCE(profile_image_url, ''), follower_count, created_at, updated_at`
	scan := func(row *sql.Row) (store.Channel, error) {
		var ch store.Channel
		err := row.Scan(&ch.ID, &ch.Platform, &ch.ChannelID, &ch.Username, &ch.DisplayName,
			&ch.Description, &ch.ProfileImageURL, &ch.FollowerCount, &ch.CreatedAt, &ch.UpdatedAt)
		return ch, err
	}
	ch, err := scan(e.DB.QueryRowContext(ctx,
		`SELECT `+cols+` FROM channels WHERE platform = $1 AND channel_id = $2`, platform, ref))
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Channel{}, fmt.Errorf("find channel: %w", err)
	}
	ch, err = scan(e.DB.QueryRowContext(ctx,
		`SELECT `+cols+` FROM channels WHERE platform = $1 AND LOWER(username) = LOWER($2)`, platform, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Channel{}, ErrNotFound
	}
	if err != nil {
		return store.Channel{}, fmt.Errorf("find channel: %w", err)
	}
	return ch, nil
}

// Search matches the latest snapshot per channel against a keyword over
// title, category and username, ordered by viewer count.
func (e *Engine) Search(ctx context.Context, platform, q string, limit int) ([]LiveStream, error) {
	pattern := "%" + q + "%"
	rows, err := e.DB.QueryContext(ctx, `
		SELECT c.platform, c.channel_id, c.username, COALESCE(c.display_name, ''),
			COALESCE(s.title, ''), COALESCE(s.game_name, ''), s.viewer_count,
			COALESCE(s.language, ''), COALESCE(s.started_at, 'epoch'::timestamptz),
			COALESCE(s.thumbnail_url, ''), COALESCE(s.stream_url, ''),
			c.follower_count, s.collected_at
		FROM (
			SELECT DISTINCT ON (channel_id) *
			FROM live_snapshots
			ORDER BY channel_id, collected_at DESC, id DESC
		) s
		JOIN channels c ON c.id = s.channel_id
		WHERE c.platform = $1
			AND (s.title ILIKE $2 OR s.game_name ILIKE $2 OR c.username ILIKE $2)
		ORDER BY s.viewer_count DESC
		LIMIT $3`,
		platform, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()
	return scanLiveStreams(rows)
}

// ExportRows returns snapshot/channel joins within the window, newest first,
// for CSV export.
func (e *Engine) ExportRows(ctx context.Context, platform string, window time.Duration) ([]LiveStream, error) {
	since := time.Now().UTC().Add(-window)
	rows, err := e.DB.QueryContext(ctx, `
		SELECT c.platform, c.channel_id, c.username, COALESCE(c.display_name, ''),
			COALESCE(s.title, ''), COALESCE(s.game_name, ''), s.viewer_count,
			COALESCE(s.language, ''), COALESCE(s.started_at, 'epoch'::timestamptz),
			COALESCE(s.thumbnail_url, ''), COALESCE(s.stream_url, ''),
			c.follower_count, s.collected_at
		FROM live_snapshots s
		JOIN channels c ON c.id = s.channel_id
		WHERE c.platform = $1 AND s.collected_at >= $2
		ORDER BY s.collected_at DESC`,
		platform, since)
	if err != nil {
		return nil, fmt.Errorf("export rows: %w", err)
	}
	defer rows.Close()
	return scanLiveStreams(rows)
}
