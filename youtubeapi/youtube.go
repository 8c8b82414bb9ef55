// Package youtubeapi lists live broadcasts from the YouTube Data API using an
// API key. Live streams are discovered via search and hydrated with a second
// videos call for concurrent-viewer counts and channel statistics.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/streamlens/platform"
	"github.com/onnwee/streamlens/telemetry"
)

// The search endpoint caps results at 50 per request.
const maxPageSize = 50

type Client struct {
	APIKey string
	Retry  platform.RetryPolicy

	// Opts are extra service options; tests use option.WithEndpoint and
	// option.WithHTTPClient to point at a local server.
	Opts []option.ClientOption
}

func New(apiKey string, retry platform.RetryPolicy) *Client {
	return &Client{APIKey: apiKey, Retry: retry}
}

func (c *Client) Name() string { return "youtube" }

func (c *Client) service(ctx context.Context) (*yt.Service, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(c.APIKey)}, c.Opts...)
	return yt.NewService(ctx, opts...)
}

// ListLiveStreams searches for currently-live broadcasts and returns them as
// observations ordered by the API's viewer-count ranking.
func (c *Client) ListLiveStreams(ctx context.Context, limit int) ([]platform.Observation, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	svc, err := c.service(ctx)
	if err != nil {
		return nil, &platform.AuthError{Platform: "youtube", Err: err}
	}

	var searchResp *yt.SearchListResponse
	err = c.Retry.Do(ctx, func() error {
		resp, err := svc.Search.List([]string{"snippet"}).
			EventType("live").Type("video").Order("viewCount").
			MaxResults(int64(limit)).Context(ctx).Do()
		if err != nil {
			return classify(err)
		}
		searchResp = resp
		return nil
	})
	if err != nil {
		return nil, c.wrap(err)
	}

	ids := make([]string, 0, len(searchResp.Items))
	for _, item := range searchResp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var videoResp *yt.VideoListResponse
	err = c.Retry.Do(ctx, func() error {
		resp, err := svc.Videos.List([]string{"snippet", "liveStreamingDetails", "statistics"}).
			Id(ids...).Context(ctx).Do()
		if err != nil {
			return classify(err)
		}
		videoResp = resp
		return nil
	})
	if err != nil {
		return nil, c.wrap(err)
	}

	obs := make([]platform.Observation, 0, len(videoResp.Items))
	channelIDs := make([]string, 0, len(videoResp.Items))
	seen := make(map[string]bool)
	for _, v := range videoResp.Items {
		o, err := normalize(v)
		if err != nil {
			slog.Warn("skipping malformed stream record", slog.Any("err", err), slog.String("component", "youtubeapi"))
			telemetry.ObserveMalformed("youtube")
			continue
		}
		if !seen[o.ChannelID] {
			seen[o.ChannelID] = true
			channelIDs = append(channelIDs, o.ChannelID)
		}
		obs = append(obs, o)
	}

	channels := c.fetchChannels(ctx, svc, channelIDs)
	for i := range obs {
		if ch, ok := channels[obs[i].ChannelID]; ok {
			obs[i].FollowerCount = ch.subscribers
			obs[i].Description = ch.description
			obs[i].ProfileImageURL = ch.profileImage
		}
	}
	return obs, nil
}

type channelInfo struct {
	subscribers  int64
	description  string
	profileImage string
}

// fetchChannels resolves subscriber counts and profile metadata for a batch
// of channel ids. Failures degrade to empty metadata.
func (c *Client) fetchChannels(ctx context.Context, svc *yt.Service, ids []string) map[string]channelInfo {
	out := make(map[string]channelInfo, len(ids))
	if len(ids) == 0 {
		return out
	}
	var resp *yt.ChannelListResponse
	err := c.Retry.Do(ctx, func() error {
		r, err := svc.Channels.List([]string{"snippet", "statistics"}).Id(ids...).Context(ctx).Do()
		if err != nil {
			return classify(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		slog.Warn("failed to fetch channel info batch", slog.Any("err", err), slog.String("component", "youtubeapi"))
		return out
	}
	for _, ch := range resp.Items {
		info := channelInfo{}
		if ch.Statistics != nil {
			info.subscribers = int64(ch.Statistics.SubscriberCount)
		}
		if ch.Snippet != nil {
			info.description = ch.Snippet.Description
			if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
				info.profileImage = ch.Snippet.Thumbnails.Default.Url
			}
		}
		out[ch.Id] = info
	}
	return out
}

// classify maps a Data API error onto the retry taxonomy. Quota and key
// errors come back as 403/400 and are terminal.
func classify(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		if ge.Code == http.StatusUnauthorized || ge.Code == http.StatusForbidden {
			return &platform.AuthError{Platform: "youtube", Err: err}
		}
		if platform.TransientStatus(ge.Code) {
			return platform.Transient(err)
		}
		return err
	}
	// Network-level failure.
	return platform.Transient(err)
}

func (c *Client) wrap(err error) error {
	if platform.IsTransient(err) {
		return &platform.UnavailableError{Platform: "youtube", Attempts: c.Retry.MaxRetries + 1, Err: err}
	}
	return err
}

func normalize(v *yt.Video) (platform.Observation, error) {
	if v.Id == "" || v.Snippet == nil {
		return platform.Observation{}, &platform.MalformedError{Platform: "youtube", Reason: "missing video id or snippet"}
	}
	if v.Snippet.ChannelId == "" {
		return platform.Observation{}, &platform.MalformedError{Platform: "youtube", Reason: "missing channel id"}
	}
	var viewers int
	var startedAt time.Time
	if v.LiveStreamingDetails != nil {
		viewers = int(v.LiveStreamingDetails.ConcurrentViewers)
		if v.LiveStreamingDetails.ActualStartTime != "" {
			t, err := time.Parse(time.RFC3339, v.LiveStreamingDetails.ActualStartTime)
			if err != nil {
				return platform.Observation{}, &platform.MalformedError{Platform: "youtube", Reason: fmt.Sprintf("unparsable start time %q", v.LiveStreamingDetails.ActualStartTime)}
			}
			startedAt = t
		}
	}
	thumb := ""
	if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.High != nil {
		thumb = v.Snippet.Thumbnails.High.Url
	}
	return platform.Observation{
		Platform:     "youtube",
		ChannelID:    v.Snippet.ChannelId,
		Username:     v.Snippet.ChannelTitle,
		DisplayName:  v.Snippet.ChannelTitle,
		Title:        v.Snippet.Title,
		CategoryID:   v.Snippet.CategoryId,
		CategoryName: "", // the Data API reports category ids only
		ViewerCount:  viewers,
		Language:     v.Snippet.DefaultAudioLanguage,
		StartedAt:    startedAt,
		ThumbnailURL: thumb,
		StreamURL:    "https://www.youtube.com/watch?v=" + v.Id,
	}, nil
}
