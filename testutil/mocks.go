package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockPlatformServer creates a test server with per-path handlers, used to
// mock the Twitch and Kick HTTP APIs.
type MockPlatformServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockPlatformServer creates a new mock platform API server
func NewMockPlatformServer(t *testing.T) *MockPlatformServer {
	t.Helper()
	m := &MockPlatformServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockJSON registers a handler that always serves the given payload.
func (m *MockPlatformServer) MockJSON(path string, payload any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // test mock response
	}
}

// MockTokenResponse registers an OAuth token endpoint handler.
func (m *MockPlatformServer) MockTokenResponse(path, accessToken string, expiresIn int) {
	m.MockJSON(path, map[string]any{
		"access_token": accessToken,
		"expires_in":   expiresIn,
		"token_type":   "bearer",
	})
}

// MockStreamsPage registers a Helix-style /streams page with a cursor.
func (m *MockPlatformServer) MockStreamsPage(streams []map[string]any, cursor string) {
	m.MockJSON("/streams", map[string]any{
		"data":       streams,
		"pagination": map[string]string{"cursor": cursor},
	})
}

// MockUsersResponse registers a Helix-style /users batch handler.
func (m *MockPlatformServer) MockUsersResponse(users []map[string]string) {
	m.MockJSON("/users", map[string]any{"data": users})
}

// MockFollowersResponse registers a Helix-style /channels/followers handler.
func (m *MockPlatformServer) MockFollowersResponse(total int64) {
	m.MockJSON("/channels/followers", map[string]any{"total": total})
}
