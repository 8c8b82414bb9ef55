// Package platform defines the canonical live-stream observation shape that
// every platform client normalizes into, the capability contract the collector
// depends on, and the shared error taxonomy and retry policy.
//
// Platform-native payload shapes (Helix stream objects, Kick livestream
// entries, YouTube video resources) never cross the client boundary; each
// client maps its payload into an Observation before returning.
package platform

import (
	"context"
	"time"
)

// Observation is one normalized point-in-time view of a live channel as
// reported by a platform listing. Fields absent in the source payload are
// zero values, never an error.
type Observation struct {
	Platform        string
	ChannelID       string
	Username        string
	DisplayName     string
	Title           string
	CategoryID      string
	CategoryName    string
	ViewerCount     int
	Language        string
	StartedAt       time.Time
	ThumbnailURL    string
	StreamURL       string
	Description     string
	ProfileImageURL string
	FollowerCount   int64
}

// Client is the capability set a platform must provide for collection. The
// scheduler depends only on this contract, not on the platform identity.
type Client interface {
	// Name returns the platform token ("twitch", "kick", "youtube").
	Name() string
	// ListLiveStreams fetches up to limit currently live channels, already
	// normalized. Individual malformed records are skipped by the client;
	// the returned error reflects the fetch as a whole (AuthError or
	// UnavailableError).
	ListLiveStreams(ctx context.Context, limit int) ([]Observation, error)
}
