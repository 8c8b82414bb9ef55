package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.CollectionInterval != 2*time.Minute {
		t.Errorf("CollectionInterval = %v, want 2m", cfg.CollectionInterval)
	}
	if cfg.MaxStreamsPerCollection != 100 {
		t.Errorf("MaxStreamsPerCollection = %d, want 100", cfg.MaxStreamsPerCollection)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryBackoffFactor != 2.0 {
		t.Errorf("RetryBackoffFactor = %v, want 2.0", cfg.RetryBackoffFactor)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("COLLECTION_INTERVAL_MINUTES", "5")
	t.Setenv("MAX_STREAMS_PER_COLLECTION", "25")
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.CollectionInterval != 5*time.Minute {
		t.Errorf("CollectionInterval = %v", cfg.CollectionInterval)
	}
	if cfg.MaxStreamsPerCollection != 25 {
		t.Errorf("MaxStreamsPerCollection = %d", cfg.MaxStreamsPerCollection)
	}
	if !cfg.TwitchEnabled() {
		t.Errorf("TwitchEnabled() = false with credentials set")
	}
	if cfg.KickEnabled() {
		t.Errorf("KickEnabled() = true without credentials")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric interval", "COLLECTION_INTERVAL_MINUTES", "abc"},
		{"zero interval", "COLLECTION_INTERVAL_MINUTES", "0"},
		{"negative interval", "COLLECTION_INTERVAL_MINUTES", "-3"},
		{"non-numeric retries", "MAX_RETRIES", "many"},
		{"non-numeric backoff", "RETRY_BACKOFF_FACTOR", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}
