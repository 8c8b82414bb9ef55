package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/streamlens/query"
)

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// platformQuery returns the platform parameter or the given default.
func platformQuery(r *http.Request, def string) string {
	if v := r.URL.Query().Get("platform"); v != "" {
		return v
	}
	return def
}

// windowQuery parses the window parameter. A missing parameter falls back to
// def; a present but malformed one is an error, reported as 400 by callers.
func windowQuery(r *http.Request, def string) (time.Duration, error) {
	token := r.URL.Query().Get("window")
	if token == "" {
		token = def
	}
	return query.ParseWindow(token)
}

// clampLimit bounds a client-supplied limit to [1, max].
func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// queryError maps query-engine errors onto HTTP status codes.
func queryError(w http.ResponseWriter, err error) {
	var iw *query.InvalidWindowError
	switch {
	case errors.As(err, &iw):
		http.Error(w, iw.Error(), http.StatusBadRequest)
	case errors.Is(err, query.ErrNotFound):
		http.Error(w, "channel not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
