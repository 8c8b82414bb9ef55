package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/streamlens/query"
	"github.com/onnwee/streamlens/telemetry"
)

// HandleTopStreams returns the most recent snapshot per currently-live
// channel, sorted by viewers or followers.
// GET /live/top?platform=twitch&limit=50&sort_by=viewers&recency=2h
func (h *Handlers) HandleTopStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	platform := platformQuery(r, "twitch")
	limit := clampLimit(parseIntQuery(r, "limit", 50), 50, 500)
	sortBy := query.SortByViewers
	if r.URL.Query().Get("sort_by") == "followers" {
		sortBy = query.SortByFollowers
	}
	// Optional recency cutoff ("1h".."6h"); zero keeps the engine default.
	var recency time.Duration
	if token := r.URL.Query().Get("recency"); token != "" {
		d, err := query.ParseWindow(token)
		if err != nil {
			queryError(w, err)
			return
		}
		if d > 6*time.Hour {
			d = 6 * time.Hour
		}
		recency = d
	}
	streams, err := h.engine.TopStreams(r.Context(), platform, limit, sortBy, recency)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("top streams query failed", "err", err)
		queryError(w, err)
		return
	}
	if streams == nil {
		streams = []query.LiveStream{}
	}
	writeJSON(w, streams)
}

// HandleMostActive ranks channels by distinct hourly sessions in a window.
// GET /live/most-active?platform=twitch&window=7d&limit=10
func (h *Handlers) HandleMostActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	window, err := windowQuery(r, "7d")
	if err != nil {
		queryError(w, err)
		return
	}
	platform := platformQuery(r, "twitch")
	limit := clampLimit(parseIntQuery(r, "limit", 10), 10, 100)
	interval := 2 * time.Minute
	if h.collector != nil && h.collector.Interval > 0 {
		interval = h.collector.Interval
	}
	out, err := h.engine.MostActive(r.Context(), platform, window, limit, interval)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("most active query failed", "err", err)
		queryError(w, err)
		return
	}
	if out == nil {
		out = []query.ActiveStreamer{}
	}
	writeJSON(w, out)
}

// HandleCategoryStats returns trending categories with viewer aggregates.
// GET /stats/categories?platform=twitch&window=7d&limit=10
func (h *Handlers) HandleCategoryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	window, err := windowQuery(r, "7d")
	if err != nil {
		queryError(w, err)
		return
	}
	platform := platformQuery(r, "twitch")
	limit := clampLimit(parseIntQuery(r, "limit", 10), 10, 100)
	out, err := h.engine.Categories(r.Context(), platform, window, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("category stats query failed", "err", err)
		queryError(w, err)
		return
	}
	if out == nil {
		out = []query.CategoryStats{}
	}
	writeJSON(w, out)
}

// HandleSearch matches the latest snapshot per channel against a keyword.
// GET /search?platform=twitch&q=term&limit=50
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "missing required parameter: q", http.StatusBadRequest)
		return
	}
	platform := platformQuery(r, "twitch")
	limit := clampLimit(parseIntQuery(r, "limit", 50), 50, 500)
	streams, err := h.engine.Search(r.Context(), platform, q, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("search query failed", "err", err)
		queryError(w, err)
		return
	}
	if streams == nil {
		streams = []query.LiveStream{}
	}
	writeJSON(w, map[string]any{"streams": streams})
}

// HandleChannelsDispatcher routes /channels/{platform}/{ref}/history.
// The ref is a platform channel id or a username.
func (h *Handlers) HandleChannelsDispatcher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/channels/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "history" || parts[0] == "" || parts[1] == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	window, err := windowQuery(r, "24h")
	if err != nil {
		queryError(w, err)
		return
	}
	hist, err := h.engine.ChannelHistory(r.Context(), parts[0], parts[1], window)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("channel history query failed", "err", err)
		queryError(w, err)
		return
	}
	writeJSON(w, hist)
}

// HandleExportCSV streams snapshot rows within a window as a CSV download.
// GET /export/csv?platform=twitch&window=24h
func (h *Handlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	windowToken := r.URL.Query().Get("window")
	if windowToken == "" {
		windowToken = "24h"
	}
	window, err := query.ParseWindow(windowToken)
	if err != nil {
		queryError(w, err)
		return
	}
	platform := platformQuery(r, "twitch")
	rows, err := h.engine.ExportRows(r.Context(), platform, window)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("export query failed", "err", err)
		queryError(w, err)
		return
	}
	if len(rows) == 0 {
		http.Error(w, "no data found for the specified time window", http.StatusNotFound)
		return
	}

	filename := fmt.Sprintf("streams_%s_%s_%s.csv", platform, windowToken, time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"collected_at", "platform", "channel_id", "username", "display_name",
		"title", "game_name", "viewer_count", "language", "started_at",
		"follower_count", "stream_url",
	})
	for _, row := range rows {
		startedAt := ""
		// Missing started_at values are stored as NULL and scanned as epoch.
		if row.StartedAt.Unix() > 0 {
			startedAt = row.StartedAt.Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			row.CollectedAt.Format(time.RFC3339),
			row.Platform,
			row.ChannelID,
			row.Username,
			row.DisplayName,
			row.Title,
			row.GameName,
			strconv.Itoa(row.ViewerCount),
			row.Language,
			startedAt,
			strconv.FormatInt(row.FollowerCount, 10),
			row.StreamURL,
		})
	}
	cw.Flush()
}
