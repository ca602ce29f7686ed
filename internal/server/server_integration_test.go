package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/fingergame/internal/app"
	"github.com/ayusman/fingergame/internal/config"
	"github.com/ayusman/fingergame/internal/store"
)

func TestAPI_SettingsWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	srv := New(Config{Store: s, Settings: config.New()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Save a shorter celebration
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewBufferString(`{"celebration_ms": 1000}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/settings error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 2. Read it back
	resp, err = client.Get(ts.URL + "/api/settings")
	if err != nil {
		t.Fatalf("GET /api/settings error = %v", err)
	}
	var listed struct {
		Settings map[string]string `json:"settings"`
		Stored   map[string]string `json:"stored"`
		Pending  bool              `json:"pending"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if listed.Stored["celebration_ms"] != "1000" || listed.Settings["celebration_ms"] != "1000" || !listed.Pending {
		t.Errorf("settings = %+v", listed)
	}

	// 3. The stored value feeds the next start
	stored, _ := s.Settings().All()
	cfg, err := config.New().ApplySettings(stored)
	if err != nil {
		t.Fatalf("ApplySettings() error = %v", err)
	}
	if cfg.Game().CelebrationDuration != time.Second {
		t.Errorf("celebration = %s, want 1s", cfg.Game().CelebrationDuration)
	}

	// 4. Reset it
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/settings/celebration_ms", nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	resp, _ = client.Get(ts.URL + "/api/settings")
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if _, ok := listed.Stored["celebration_ms"]; ok || listed.Pending {
		t.Errorf("after reset settings = %+v", listed)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readView(t *testing.T, conn *websocket.Conn) app.View {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var v app.View
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return v
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAPI_WebSocket(t *testing.T) {
	srv := New(Config{})
	ctrl := &countingController{}
	srv.Attach(ctrl)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	srv.Present(context.Background(), nil, testView(5, 1))

	conn := dialWS(t, ts)

	t.Run("sends the current view on connect", func(t *testing.T) {
		if v := readView(t, conn); v.Target != 5 || !v.Shown.Equals(1) {
			t.Errorf("first view = %+v", v)
		}
	})

	t.Run("pushes presented views", func(t *testing.T) {
		waitFor(t, func() bool { return srv.hub.count() == 1 })
		srv.Present(context.Background(), nil, testView(5, 5))
		if v := readView(t, conn); !v.Shown.Equals(5) {
			t.Errorf("pushed view = %+v", v)
		}
	})

	t.Run("advance message", func(t *testing.T) {
		if err := conn.WriteJSON(clientMessage{Action: "advance"}); err != nil {
			t.Fatalf("WriteJSON() error = %v", err)
		}
		waitFor(t, func() bool { return ctrl.advances.Load() == 1 })
	})

	t.Run("close disconnects clients", func(t *testing.T) {
		srv.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Errorf("ReadMessage() error = %v, want going away", err)
		}
	})
}

func TestAPI_Stream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV in short mode")
	}

	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("Content-Type = %q", ct)
	}
	waitFor(t, func() bool { return srv.frames.watchers() == 1 })

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if err := srv.Present(context.Background(), &frame, testView(2, 0)); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	r := bufio.NewReader(resp.Body)
	boundary, _ := r.ReadString('\n')
	if strings.TrimSpace(boundary) != "--frame" {
		t.Fatalf("boundary = %q", boundary)
	}
	header, _ := r.ReadString('\n')
	if strings.TrimSpace(header) != "Content-Type: image/jpeg" {
		t.Fatalf("part header = %q", header)
	}

	// Skip Content-Length and the blank line, then check the JPEG magic.
	r.ReadString('\n')
	r.ReadString('\n')
	magic := make([]byte, 2)
	if _, err := io.ReadFull(r, magic); err != nil {
		t.Fatalf("read jpeg: %v", err)
	}
	if magic[0] != 0xFF || magic[1] != 0xD8 {
		t.Errorf("frame does not start with a JPEG marker: % x", magic)
	}

	srv.Close()
}
