package twitchapi

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

	"golang.org/x/time/rate"

	"github.com/onnwee/streamlens/platform"
	"github.com/onnwee/streamlens/telemetry"
)

// maxPageSize is the Helix cap on listing page size.
const maxPageSize = 100

// Client lists live streams from the Twitch Helix API.
type Client struct {
	TokenSource *TokenSource
	ClientID    string
	HTTPClient  *http.Client
	BaseURL     string // defaults to the public Helix endpoint
	Retry       platform.RetryPolicy

	pace *rate.Limiter
}

// New builds a Twitch client from app credentials.
func New(clientID, clientSecret string, retry platform.RetryPolicy) *Client {
	return &Client{
		TokenSource: &TokenSource{ClientID: clientID, ClientSecret: clientSecret},
		ClientID:    clientID,
		Retry:       retry,
		pace:        rate.NewLimiter(rate.Every(800*time.Millisecond), 1),
	}
}

func (c *Client) Name() string { return "twitch" }

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
	return "https://api.twitch.tv/helix"
}

type streamPayload struct {
	UserID       string `json:"user_id"`
	UserLogin    string `json:"user_login"`
	UserName     string `json:"user_name"`
	GameID       string `json:"game_id"`
	GameName     string `json:"game_name"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	StartedAt    string `json:"started_at"`
	Language     string `json:"language"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type userPayload struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
}

// ListLiveStreams pages through /streams up to limit, enriches results with
// batched /users metadata and per-channel follower counts, and returns the
// normalized observations. Malformed records are skipped, not fatal.
func (c *Client) ListLiveStreams(ctx context.Context, limit int) ([]platform.Observation, error) {
	if limit <= 0 {
		limit = maxPageSize
	}
	var raw []streamPayload
	cursor := ""
	for len(raw) < limit {
		first := min(maxPageSize, limit-len(raw))
		page, next, err := c.listPage(ctx, first, cursor)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		raw = append(raw, page...)
		if next == "" {
			break
		}
		cursor = next
		if c.pace != nil {
			if err := c.pace.Wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	ids := make([]string, 0, len(raw))
	for _, sp := range raw {
		if sp.UserID != "" {
			ids = append(ids, sp.UserID)
		}
	}
	users := c.fetchUsers(ctx, ids)

	obs := make([]platform.Observation, 0, len(raw))
	for _, sp := range raw {
		o, err := normalize(sp, users[sp.UserID])
		if err != nil {
			slog.Warn("skipping malformed stream record", slog.Any("err", err), slog.String("component", "twitchapi"))
			telemetry.ObserveMalformed("twitch")
			continue
		}
		if fc, err := c.GetFollowerCount(ctx, o.ChannelID); err == nil {
			o.FollowerCount = fc
		} else {
			slog.Debug("follower count lookup failed", slog.String("channel_id", o.ChannelID), slog.Any("err", err))
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// listPage fetches one /streams page.
func (c *Client) listPage(ctx context.Context, first int, after string) ([]streamPayload, string, error) {
	q := url.Values{}
	q.Set("first", fmt.Sprintf("%d", first))
	if after != "" {
		q.Set("after", after)
	}
	var body struct {
		Data       []streamPayload `json:"data"`
		Pagination struct {
			Cursor string `json:"cursor"`
		} `json:"pagination"`
	}
	if err := c.doGet(ctx, "/streams", q, &body); err != nil {
		return nil, "", err
	}
	return body.Data, body.Pagination.Cursor, nil
}

// fetchUsers resolves user metadata in batches of up to 100 ids. Lookup
// failure is logged and degrades to empty metadata rather than failing the
// listing.
func (c *Client) fetchUsers(ctx context.Context, ids []string) map[string]userPayload {
	out := make(map[string]userPayload, len(ids))
	for start := 0; start < len(ids); start += maxPageSize {
		end := min(start+maxPageSize, len(ids))
		q := url.Values{}
		for _, id := range ids[start:end] {
			q.Add("id", id)
		}
		var body struct {
			Data []userPayload `json:"data"`
		}
		if err := c.doGet(ctx, "/users", q, &body); err != nil {
			slog.Warn("failed to fetch user info batch", slog.Any("err", err), slog.String("component", "twitchapi"))
			continue
		}
		for _, u := range body.Data {
			out[u.ID] = u
		}
	}
	return out
}

// GetFollowerCount returns the follower total for a broadcaster.
func (c *Client) GetFollowerCount(ctx context.Context, broadcasterID string) (int64, error) {
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	var body struct {
		Total int64 `json:"total"`
	}
	if err := c.doGet(ctx, "/channels/followers", q, &body); err != nil {
		return 0, err
	}
	return body.Total, nil
}

// doGet runs a Helix GET under the retry policy, mapping an exhausted budget
// to UnavailableError for the caller.
func (c *Client) doGet(ctx context.Context, path string, q url.Values, out any) error {
	err := c.Retry.Do(ctx, func() error { return c.getOnce(ctx, path, q, out) })
	if err == nil {
		return nil
	}
	if platform.IsTransient(err) {
		return &platform.UnavailableError{Platform: "twitch", Attempts: c.Retry.MaxRetries + 1, Err: err}
	}
	return err
}

// getOnce performs a single authenticated request. A 401 triggers exactly one
// inline re-authentication; a 401 that survives re-auth is treated as
// transient and left to the retry policy.
func (c *Client) getOnce(ctx context.Context, path string, q url.Values, out any) error {
	tok, err := c.TokenSource.Get(ctx)
	if err != nil {
		return &platform.AuthError{Platform: "twitch", Err: err}
	}
	resp, err := c.get(ctx, path, q, tok)
	if err != nil {
		return platform.Transient(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.TokenSource.Invalidate()
		tok, err = c.TokenSource.Get(ctx)
		if err != nil {
			return &platform.AuthError{Platform: "twitch", Err: err}
		}
		resp, err = c.get(ctx, path, q, tok)
		if err != nil {
			return platform.Transient(err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return platform.Transient(fmt.Errorf("twitch %s: unauthorized after re-auth", path))
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if platform.TransientStatus(resp.StatusCode) {
		b, _ := io.ReadAll(resp.Body)
		return platform.Transient(fmt.Errorf("twitch %s: %s: %s", path, resp.Status, string(b)))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twitch %s: %s: %s", path, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, tok string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	return c.http().Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// normalize maps one Helix stream payload (plus optional user metadata) into
// the canonical observation.
func normalize(sp streamPayload, up userPayload) (platform.Observation, error) {
	if sp.UserID == "" || sp.UserLogin == "" {
		return platform.Observation{}, &platform.MalformedError{Platform: "twitch", Reason: "missing user id or login"}
	}
	var startedAt time.Time
	if sp.StartedAt != "" {
		t, err := time.Parse(time.RFC3339, sp.StartedAt)
		if err != nil {
			return platform.Observation{}, &platform.MalformedError{Platform: "twitch", Reason: fmt.Sprintf("unparsable started_at %q", sp.StartedAt)}
		}
		startedAt = t
	}
	thumb := strings.NewReplacer("{width}", "1920", "{height}", "1080").Replace(sp.ThumbnailURL)
	displayName := sp.UserName
	if displayName == "" {
		displayName = up.DisplayName
	}
	return platform.Observation{
		Platform:        "twitch",
		ChannelID:       sp.UserID,
		Username:        sp.UserLogin,
		DisplayName:     displayName,
		Title:           sp.Title,
		CategoryID:      sp.GameID,
		CategoryName:    sp.GameName,
		ViewerCount:     sp.ViewerCount,
		Language:        sp.Language,
		StartedAt:       startedAt,
		ThumbnailURL:    thumb,
		StreamURL:       "https://www.twitch.tv/" + sp.UserLogin,
		Description:     up.Description,
		ProfileImageURL: up.ProfileImageURL,
	}, nil
}
