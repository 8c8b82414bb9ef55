package server

import (
	"net/http"

	"github.com/onnwee/streamlens/telemetry"
)

// HandleAdminCollect runs one collection cycle synchronously and reports the
// per-platform outcome.
// POST /admin/collect
func (h *Handlers) HandleAdminCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.collector == nil {
		http.Error(w, "collector not configured", http.StatusServiceUnavailable)
		return
	}
	res := h.collector.RunCycle(r.Context())
	failed := make(map[string]string, len(res.Failed))
	for platform, err := range res.Failed {
		failed[platform] = err.Error()
	}
	writeJSON(w, map[string]any{
		"status":    "ok",
		"snapshots": res.Total(),
		"collected": res.Collected,
		"failed":    failed,
	})
}

// HandleAdminClear deletes all snapshots and channels.
// POST /admin/clear
func (h *Handlers) HandleAdminClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.store.ClearAll(r.Context()); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("clear data failed", "err", err)
		http.Error(w, "failed to clear data", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "message": "all data cleared"})
}
