package kickapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/onnwee/streamlens/platform"
)

func newKickFixture(t *testing.T, livestreams http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "kick-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/livestreams", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer kick-token" {
			t.Errorf("Authorization = %q", got)
		}
		livestreams(w, r)
	})
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		slug := r.URL.Query().Get("slug")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"slug":                slug,
				"followers_count":     4321,
				"channel_description": "kick channel " + slug,
				"profile_picture":     "https://img.example/" + slug,
			}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := &Client{
		Conf: &clientcredentials.Config{
			ClientID:     "cid",
			ClientSecret: "secret",
			TokenURL:     srv.URL + "/oauth/token",
		},
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		Retry:      platform.RetryPolicy{MaxRetries: 1, BackoffFactor: 0.001},
	}
	return c, &tokenCalls
}

func livestreamRecord(id int, slug string, viewers int) map[string]any {
	return map[string]any{
		"broadcaster_user_id": id,
		"slug":                slug,
		"stream_title":        "playing stuff",
		"viewer_count":        viewers,
		"language":            "en",
		"started_at":          "2026-08-29T11:30:00Z",
		"thumbnail":           "https://cdn.example/" + slug + ".jpg",
		"category":            map[string]any{"id": 7, "name": "Slots"},
	}
}

func TestKickListLiveStreams(t *testing.T) {
	c, _ := newKickFixture(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sort") != "viewer_count" {
			t.Errorf("sort = %q, want viewer_count", q.Get("sort"))
		}
		if q.Get("limit") != "25" {
			t.Errorf("limit = %q, want 25", q.Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				livestreamRecord(101, "gambler", 900),
				livestreamRecord(102, "talker", 500),
			},
		})
	})

	obs, err := c.ListLiveStreams(context.Background(), 25)
	if err != nil {
		t.Fatalf("ListLiveStreams: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}
	o := obs[0]
	if o.Platform != "kick" || o.ChannelID != "101" || o.Username != "gambler" {
		t.Errorf("unexpected observation: %+v", o)
	}
	if o.CategoryName != "Slots" || o.CategoryID != "7" {
		t.Errorf("category not mapped: %+v", o)
	}
	if o.FollowerCount != 4321 || o.Description != "kick channel gambler" {
		t.Errorf("channel metadata not merged: %+v", o)
	}
	if o.StreamURL != "https://kick.com/gambler" {
		t.Errorf("StreamURL = %q", o.StreamURL)
	}
}

func TestKickSkipsMalformedRecords(t *testing.T) {
	c, _ := newKickFixture(t, func(w http.ResponseWriter, r *http.Request) {
		bad := livestreamRecord(0, "", 10)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{bad, livestreamRecord(103, "ok", 20)},
		})
	})

	obs, err := c.ListLiveStreams(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListLiveStreams: %v", err)
	}
	if len(obs) != 1 || obs[0].Username != "ok" {
		t.Fatalf("malformed record not skipped: %+v", obs)
	}
}

func TestKickUnavailableAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c, _ := newKickFixture(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "maintenance", http.StatusBadGateway)
	})

	_, err := c.ListLiveStreams(context.Background(), 10)
	var ue *platform.UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *platform.UnavailableError", err)
	}
	if ue.Platform != "kick" || ue.Attempts != 2 {
		t.Errorf("unexpected UnavailableError: %+v", ue)
	}
	if calls.Load() != 2 {
		t.Errorf("livestreams endpoint called %d times, want 2", calls.Load())
	}
}

func TestKickAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad client", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &Client{
		Conf: &clientcredentials.Config{
			ClientID:     "cid",
			ClientSecret: "wrong",
			TokenURL:     srv.URL + "/oauth/token",
		},
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		Retry:      platform.RetryPolicy{MaxRetries: 2, BackoffFactor: 0.001},
	}

	_, err := c.ListLiveStreams(context.Background(), 10)
	var ae *platform.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *platform.AuthError", err)
	}
	if ae.Platform != "kick" {
		t.Errorf("Platform = %q, want kick", ae.Platform)
	}
}
