// Package kickapi lists live streams from the Kick public API using OAuth
// client credentials.
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/onnwee/streamlens/platform"
	"github.com/onnwee/streamlens/telemetry"
)

const maxPageSize = 100

type Client struct {
	Conf       *clientcredentials.Config
	HTTPClient *http.Client
	BaseURL    string // defaults to the public v1 endpoint
	Retry      platform.RetryPolicy
}

// New builds a Kick client from app credentials.
func New(clientID, clientSecret string, retry platform.RetryPolicy) *Client {
	return &Client{
		Conf: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     "https://id.kick.com/oauth/token",
		},
		Retry: retry,
	}
}

func (c *Client) Name() string { return "kick" }

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return "https://api.kick.com/public/v1"
}

// token fetches a bearer token via the client-credentials flow. The oauth2
// package picks up c.HTTPClient through the context so tests can point the
// token exchange at a local server.
func (c *Client) token(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http())
	tok, err := c.Conf.Token(ctx)
	if err != nil {
		return "", &platform.AuthError{Platform: "kick", Err: err}
	}
	return tok.AccessToken, nil
}

type livestreamPayload struct {
	BroadcasterUserID int    `json:"broadcaster_user_id"`
	Slug              string `json:"slug"`
	ChannelID         int    `json:"channel_id"`
	StreamTitle       string `json:"stream_title"`
	ViewerCount       int    `json:"viewer_count"`
	Language          string `json:"language"`
	StartedAt         string `json:"started_at"`
	Thumbnail         string `json:"thumbnail"`
	Category          struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		Thumbnail string `json:"thumbnail"`
	} `json:"category"`
}

type channelPayload struct {
	Slug           string `json:"slug"`
	BannerPicture  string `json:"banner_picture"`
	FollowersCount int64  `json:"followers_count"`
	Description    string `json:"channel_description"`
	ProfilePicture string `json:"profile_picture"`
}

// ListLiveStreams fetches the top live streams by viewer count. The public
// API serves a single page, so limit is capped at the page-size maximum.
func (c *Client) ListLiveStreams(ctx context.Context, limit int) ([]platform.Observation, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("sort", "viewer_count")
	var body struct {
		Data []livestreamPayload `json:"data"`
	}
	if err := c.doGet(ctx, "/livestreams", q, &body); err != nil {
		return nil, err
	}
	obs := make([]platform.Observation, 0, len(body.Data))
	for _, lp := range body.Data {
		o, err := normalize(lp)
		if err != nil {
			slog.Warn("skipping malformed stream record", slog.Any("err", err), slog.String("component", "kickapi"))
			telemetry.ObserveMalformed("kick")
			continue
		}
		if ch, err := c.GetChannel(ctx, o.Username); err == nil {
			o.FollowerCount = ch.FollowersCount
			o.Description = ch.Description
			o.ProfileImageURL = ch.ProfilePicture
		} else {
			slog.Debug("channel lookup failed", slog.String("slug", o.Username), slog.Any("err", err))
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// GetChannel fetches channel metadata (follower count, description) by slug.
func (c *Client) GetChannel(ctx context.Context, slug string) (*channelPayload, error) {
	q := url.Values{}
	q.Set("slug", slug)
	var body struct {
		Data []channelPayload `json:"data"`
	}
	if err := c.doGet(ctx, "/channels", q, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("kick channel %q not found", slug)
	}
	return &body.Data[0], nil
}

func (c *Client) doGet(ctx context.Context, path string, q url.Values, out any) error {
	err := c.Retry.Do(ctx, func() error { return c.getOnce(ctx, path, q, out) })
	if err == nil {
		return nil
	}
	if platform.IsTransient(err) {
		return &platform.UnavailableError{Platform: "kick", Attempts: c.Retry.MaxRetries + 1, Err: err}
	}
	return err
}

func (c *Client) getOnce(ctx context.Context, path string, q url.Values, out any) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return platform.Transient(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if platform.TransientStatus(resp.StatusCode) {
		b, _ := io.ReadAll(resp.Body)
		return platform.Transient(fmt.Errorf("kick %s: %s: %s", path, resp.Status, string(b)))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kick %s: %s: %s", path, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func normalize(lp livestreamPayload) (platform.Observation, error) {
	if lp.BroadcasterUserID == 0 || lp.Slug == "" {
		return platform.Observation{}, &platform.MalformedError{Platform: "kick", Reason: "missing broadcaster id or slug"}
	}
	var startedAt time.Time
	if lp.StartedAt != "" {
		t, err := time.Parse(time.RFC3339, lp.StartedAt)
		if err != nil {
			return platform.Observation{}, &platform.MalformedError{Platform: "kick", Reason: fmt.Sprintf("unparsable started_at %q", lp.StartedAt)}
		}
		startedAt = t
	}
	categoryID := ""
	if lp.Category.ID != 0 {
		categoryID = fmt.Sprintf("%d", lp.Category.ID)
	}
	return platform.Observation{
		Platform:     "kick",
		ChannelID:    fmt.Sprintf("%d", lp.BroadcasterUserID),
		Username:     lp.Slug,
		DisplayName:  lp.Slug,
		Title:        lp.StreamTitle,
		CategoryID:   categoryID,
		CategoryName: lp.Category.Name,
		ViewerCount:  lp.ViewerCount,
		Language:     lp.Language,
		StartedAt:    startedAt,
		ThumbnailURL: lp.Thumbnail,
		StreamURL:    "https://kick.com/" + lp.Slug,
	}, nil
}
