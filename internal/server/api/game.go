package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/fingergame/internal/app"
)

// ErrNoGame is returned by Game.Advance when no game loop is attached.
var ErrNoGame = errors.New("no game attached")

// Game is the live game as seen by HTTP clients.
type Game interface {
	LastView() (app.View, bool)
	Advance() error
}

// StateHandler serves GET /api/state.
type StateHandler struct {
	game Game
}

// NewStateHandler creates a StateHandler reading from g.
func NewStateHandler(g Game) *StateHandler {
	return &StateHandler{game: g}
}

func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	view, ok := h.game.LastView()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Game has not started")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AdvanceHandler serves POST /api/advance, the "next number" request.
type AdvanceHandler struct {
	game Game
}

// NewAdvanceHandler creates an AdvanceHandler for g.
func NewAdvanceHandler(g Game) *AdvanceHandler {
	return &AdvanceHandler{game: g}
}

func (h *AdvanceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := h.game.Advance(); err != nil {
		if errors.Is(err, ErrNoGame) {
			writeError(w, http.StatusServiceUnavailable, "Game is not running")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to advance")
		return
	}

	// The loop applies it on its next tick, and only while celebrating.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
