// Package server serves the finger counting game over HTTP: the live view as
// JSON, MJPEG and WebSocket, the next-number request and stored settings.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/fingergame/internal/app"
	"github.com/ayusman/fingergame/internal/config"
	"github.com/ayusman/fingergame/internal/server/api"
	"github.com/ayusman/fingergame/internal/store"
)

// ShutdownTimeout bounds how long ListenAndServe waits for open requests.
const ShutdownTimeout = 5 * time.Second

// Config holds the server configuration.
type Config struct {
	StaticDir string
	// Store and Settings enable /api/settings when both are set.
	Store    *store.Store
	Settings *config.Config
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Controller is the part of the game loop the server drives.
type Controller interface {
	Advance()
}

// Server is the HTTP front end of the game. It is also an app.Presenter:
// every presented view is kept for /api/state and pushed to stream and
// WebSocket clients.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	frames *frameBuffer
	hub    *hub

	mu   sync.RWMutex
	view *app.View
	game Controller
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		frames: newFrameBuffer(),
	}
	s.hub = newHub(s.LastView, s.Advance)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/state", api.NewStateHandler(s))
	s.mux.Handle("/api/advance", api.NewAdvanceHandler(s))
	s.mux.Handle("/api/stream", newStreamHandler(s.frames))
	s.mux.Handle("/api/ws", s.hub)

	if s.config.Store != nil && s.config.Settings != nil {
		settings := api.NewSettingsHandler(s.config.Store, s.config.Settings)
		s.mux.Handle("/api/settings", settings)
		s.mux.Handle("/api/settings/", settings)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// Attach connects the game loop that /api/advance drives.
func (s *Server) Attach(c Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game = c
}

// Advance requests the next number from the attached game.
func (s *Server) Advance() error {
	s.mu.RLock()
	game := s.game
	s.mu.RUnlock()

	if game == nil {
		return api.ErrNoGame
	}
	game.Advance()
	return nil
}

// LastView returns the most recently presented view.
func (s *Server) LastView() (app.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view == nil {
		return app.View{}, false
	}
	return *s.view, true
}

// Present stores v, pushes it to WebSocket clients and, while anyone is
// watching /api/stream, JPEG-encodes frame for them.
func (s *Server) Present(_ context.Context, frame *gocv.Mat, v app.View) error {
	s.mu.Lock()
	s.view = &v
	s.mu.Unlock()

	s.hub.broadcast(v)

	if frame == nil || frame.Empty() || s.frames.watchers() == 0 {
		return nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases C memory released by Close.
	jpeg := append([]byte(nil), buf.GetBytes()...)
	s.frames.publish(jpeg)
	return nil
}

// Close disconnects WebSocket clients and ends open streams.
func (s *Server) Close() error {
	s.hub.closeAll()
	s.frames.close()
	return nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	attached := s.game != nil
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":   "ok",
		"uptime":   time.Since(s.start).String(),
		"game":     attached,
		"clients":  s.hub.count(),
		"watchers": s.frames.watchers(),
	}

	writeJSON(w, http.StatusOK, response)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	// Long-lived stream and socket handlers would otherwise hold Shutdown open.
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info().Msg("http server stopped")
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
