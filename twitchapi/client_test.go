package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/onnwee/streamlens/platform"
)

type helixFixture struct {
	srv          *httptest.Server
	client       *Client
	streamCalls  atomic.Int32
	tokenCalls   atomic.Int32
	streamsFn    func(w http.ResponseWriter, r *http.Request)
	followerByID map[string]int64
}

func newHelixFixture(t *testing.T) *helixFixture {
	t.Helper()
	f := &helixFixture{followerByID: map[string]int64{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "app-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/streams", func(w http.ResponseWriter, r *http.Request) {
		f.streamCalls.Add(1)
		f.streamsFn(w, r)
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query()["id"]
		users := make([]map[string]string, 0, len(ids))
		for _, id := range ids {
			users = append(users, map[string]string{
				"id":                id,
				"login":             "login" + id,
				"display_name":      "Display" + id,
				"description":       "about " + id,
				"profile_image_url": "https://img.example/" + id,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": users})
	})
	mux.HandleFunc("/channels/followers", func(w http.ResponseWriter, r *http.Request) {
		total := f.followerByID[r.URL.Query().Get("broadcaster_id")]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"total": total})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.client = &Client{
		TokenSource: &TokenSource{
			ClientID:     "cid",
			ClientSecret: "secret",
			AuthURL:      f.srv.URL + "/token",
			HTTPClient:   f.srv.Client(),
		},
		ClientID:   "cid",
		HTTPClient: f.srv.Client(),
		BaseURL:    f.srv.URL,
		Retry:      platform.RetryPolicy{MaxRetries: 1, BackoffFactor: 0.001},
	}
	return f
}

func streamRecord(userID, login, title string, viewers int) map[string]any {
	return map[string]any{
		"user_id":       userID,
		"user_login":    login,
		"user_name":     "User " + login,
		"game_id":       "509658",
		"game_name":     "Just Chatting",
		"title":         title,
		"viewer_count":  viewers,
		"started_at":    "2026-08-29T10:00:00Z",
		"language":      "en",
		"thumbnail_url": "https://cdn.example/{width}x{height}.jpg",
	}
}

func writePage(w http.ResponseWriter, streams []map[string]any, cursor string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":       streams,
		"pagination": map[string]string{"cursor": cursor},
	})
}

func TestListLiveStreamsPaginates(t *testing.T) {
	f := newHelixFixture(t)
	f.followerByID["1"] = 1000
	f.followerByID["2"] = 2000
	f.followerByID["3"] = 3000
	f.streamsFn = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			writePage(w, []map[string]any{
				streamRecord("1", "alpha", "first", 500),
				streamRecord("2", "beta", "second", 400),
			}, "cursor-1")
			return
		}
		if got := r.URL.Query().Get("after"); got != "cursor-1" {
			t.Errorf("after = %q, want cursor-1", got)
		}
		writePage(w, []map[string]any{streamRecord("3", "gamma", "third", 300)}, "")
	}

	obs, err := f.client.ListLiveStreams(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListLiveStreams: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("got %d observations, want 3", len(obs))
	}
	if f.streamCalls.Load() != 2 {
		t.Errorf("streams endpoint called %d times, want 2", f.streamCalls.Load())
	}
	first := obs[0]
	if first.Platform != "twitch" || first.ChannelID != "1" || first.Username != "alpha" {
		t.Errorf("unexpected first observation: %+v", first)
	}
	if first.FollowerCount != 1000 {
		t.Errorf("FollowerCount = %d, want 1000", first.FollowerCount)
	}
	if first.Description != "about 1" || first.ProfileImageURL != "https://img.example/1" {
		t.Errorf("user metadata not merged: %+v", first)
	}
	if first.ThumbnailURL != "https://cdn.example/1920x1080.jpg" {
		t.Errorf("thumbnail placeholders not expanded: %q", first.ThumbnailURL)
	}
	if first.StreamURL != "https://www.twitch.tv/alpha" {
		t.Errorf("StreamURL = %q", first.StreamURL)
	}
}

func TestListLiveStreamsRetriesServerError(t *testing.T) {
	f := newHelixFixture(t)
	f.streamsFn = func(w http.ResponseWriter, r *http.Request) {
		if f.streamCalls.Load() == 1 {
			http.Error(w, "oops", http.StatusInternalServerError)
			return
		}
		writePage(w, []map[string]any{streamRecord("1", "alpha", "back up", 100)}, "")
	}

	obs, err := f.client.ListLiveStreams(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListLiveStreams: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
	if f.streamCalls.Load() != 2 {
		t.Errorf("streams endpoint called %d times, want 2", f.streamCalls.Load())
	}
}

func TestListLiveStreamsReauthsOn401(t *testing.T) {
	f := newHelixFixture(t)
	f.streamsFn = func(w http.ResponseWriter, r *http.Request) {
		if f.streamCalls.Load() == 1 {
			http.Error(w, "token expired", http.StatusUnauthorized)
			return
		}
		writePage(w, []map[string]any{streamRecord("1", "alpha", "live", 100)}, "")
	}

	obs, err := f.client.ListLiveStreams(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListLiveStreams: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
	if f.tokenCalls.Load() != 2 {
		t.Errorf("token endpoint called %d times, want 2 (initial + re-auth)", f.tokenCalls.Load())
	}
}

func TestListLiveStreamsExhaustsRetries(t *testing.T) {
	f := newHelixFixture(t)
	f.streamsFn = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}

	_, err := f.client.ListLiveStreams(context.Background(), 10)
	var ue *platform.UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *platform.UnavailableError", err)
	}
	if ue.Platform != "twitch" {
		t.Errorf("Platform = %q, want twitch", ue.Platform)
	}
	if ue.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", ue.Attempts)
	}
	if f.streamCalls.Load() != 2 {
		t.Errorf("streams endpoint called %d times, want 2", f.streamCalls.Load())
	}
}

func TestListLiveStreamsSkipsMalformedRecords(t *testing.T) {
	f := newHelixFixture(t)
	bad := streamRecord("", "", "no identity", 50)
	badTime := streamRecord("9", "badtime", "bad clock", 40)
	badTime["started_at"] = "not-a-timestamp"
	f.streamsFn = func(w http.ResponseWriter, r *http.Request) {
		writePage(w, []map[string]any{
			streamRecord("1", "alpha", "ok", 100),
			bad,
			badTime,
		}, "")
	}

	obs, err := f.client.ListLiveStreams(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListLiveStreams: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1 (malformed skipped)", len(obs))
	}
	if obs[0].ChannelID != "1" {
		t.Errorf("surviving observation = %+v", obs[0])
	}
}

func TestNormalizeMissingStartedAt(t *testing.T) {
	sp := streamPayload{UserID: "1", UserLogin: "alpha"}
	o, err := normalize(sp, userPayload{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !o.StartedAt.IsZero() {
		t.Errorf("StartedAt = %v, want zero for absent field", o.StartedAt)
	}
}
