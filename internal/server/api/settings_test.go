package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/fingergame/internal/config"
	"github.com/ayusman/fingergame/internal/store"
)

// newTestStore creates a Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func decodeSettings(t *testing.T, rec *httptest.ResponseRecorder) settingsResponse {
	t.Helper()
	var resp settingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestSettingsHandler_Get(t *testing.T) {
	s := newTestStore(t)
	handler := NewSettingsHandler(s, config.New())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeSettings(t, rec)
	if resp.Settings["target_max"] != "10" || resp.Settings["celebration_ms"] != "3000" {
		t.Errorf("settings = %v", resp.Settings)
	}
	if len(resp.Stored) != 0 || resp.Pending {
		t.Errorf("stored = %v pending = %v, want none", resp.Stored, resp.Pending)
	}
}

func TestSettingsHandler_Put(t *testing.T) {
	s := newTestStore(t)
	handler := NewSettingsHandler(s, config.New())

	body := `{"celebration_ms": 1500, "up_axis": "down"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeSettings(t, rec)
	if resp.Settings["celebration_ms"] != "1500" || resp.Settings["up_axis"] != "down" {
		t.Errorf("settings = %v", resp.Settings)
	}
	if !resp.Pending {
		t.Error("changed settings should be pending until restart")
	}

	got, err := s.Settings().Get("celebration_ms")
	if err != nil || got != "1500" {
		t.Errorf("stored celebration_ms = %q, %v", got, err)
	}
}

func TestSettingsHandler_PutRejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "malformed json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "empty", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "unknown key", body: `{"addr": ":1"}`, wantStatus: http.StatusBadRequest},
		{name: "bool value", body: `{"target_max": true}`, wantStatus: http.StatusBadRequest},
		{name: "unreachable target", body: `{"max_hands": 1}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "inverted range", body: `{"target_min": 8, "target_max": 3}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "bad axis", body: `{"up_axis": "north"}`, wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			handler := NewSettingsHandler(s, config.New())

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			all, _ := s.Settings().All()
			if len(all) != 0 {
				t.Errorf("rejected settings were stored: %v", all)
			}
		})
	}
}

func TestSettingsHandler_PutMergesWithStored(t *testing.T) {
	s := newTestStore(t)
	handler := NewSettingsHandler(s, config.New())

	// max_hands 1 alone is invalid with target_max 10, but fine once target_max is 5.
	if err := s.Settings().Set("target_max", "5"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(`{"max_hands": "1"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeSettings(t, rec)
	if resp.Settings["max_hands"] != "1" || resp.Settings["target_max"] != "5" {
		t.Errorf("settings = %v", resp.Settings)
	}
}

func TestSettingsHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	handler := NewSettingsHandler(s, config.New())
	s.Settings().Set("up_axis", "left")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/settings/up_axis", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/settings/up_axis", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestSettingsHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSettingsHandler(newTestStore(t), config.New())

	for _, method := range []string{http.MethodPost, http.MethodPatch} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, "/api/settings", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("method %s: status = %d, want 405", method, rec.Code)
		}
	}
}
