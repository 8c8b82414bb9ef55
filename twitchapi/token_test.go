package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTokenServer(t *testing.T, calls *atomic.Int32, expiresIn int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token request method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + string(rune('0'+n)),
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenSourceCachesToken(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, &calls, 3600)
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", AuthURL: srv.URL, HTTPClient: srv.Client()}

	tok1, err := ts.Get(context.Background())
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	tok2, err := ts.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("expected cached token, got %q then %q", tok1, tok2)
	}
	if calls.Load() != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls.Load())
	}
}

func TestTokenSourceRefreshesNearExpiry(t *testing.T) {
	var calls atomic.Int32
	// expires_in below the safety margin: every Get must re-exchange.
	srv := newTokenServer(t, &calls, 60)
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", AuthURL: srv.URL, HTTPClient: srv.Client()}

	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("token endpoint called %d times, want 2", calls.Load())
	}
}

func TestTokenSourceInvalidate(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, &calls, 3600)
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", AuthURL: srv.URL, HTTPClient: srv.Client()}

	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	ts.Invalidate()
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("Get after Invalidate: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("token endpoint called %d times, want 2", calls.Load())
	}
}

func TestTokenSourceMissingCredentials(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Fatal("expected error with no credentials")
	}
}
