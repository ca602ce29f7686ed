package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/fingergame/internal/config"
	"github.com/ayusman/fingergame/internal/store"
)

// SettingsHandler serves the tunable game settings at /api/settings.
// Changes are persisted and take effect the next time the game starts.
type SettingsHandler struct {
	store *store.Store
	base  *config.Config
}

// NewSettingsHandler creates a SettingsHandler. base is the configuration
// stored settings are validated against.
func NewSettingsHandler(s *store.Store, base *config.Config) *SettingsHandler {
	return &SettingsHandler{store: s, base: base}
}

type settingsResponse struct {
	// Settings are the effective values of every tunable key.
	Settings map[string]string `json:"settings"`
	// Stored are the values saved through this API.
	Stored map[string]string `json:"stored"`
	// Pending is true when stored values differ from the running game.
	Pending bool `json:"pending"`
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/settings"), "/")

	if key != "" {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.reset(w, key)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w)
	case http.MethodPut:
		h.update(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter) {
	stored, err := h.store.Settings().All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	h.respond(w, http.StatusOK, stored)
}

// update handles PUT /api/settings with a JSON object of tunable keys.
// Values may be JSON strings or numbers.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "No settings given")
		return
	}

	changes := make(map[string]string, len(body))
	for k, v := range body {
		if !config.IsTunable(k) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown setting %q", k))
			return
		}
		switch v.(type) {
		case string, float64:
			changes[k] = fmt.Sprint(v)
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Setting %q must be a string or number", k))
			return
		}
	}

	stored, err := h.store.Settings().All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	for k, v := range changes {
		stored[k] = v
	}

	if _, err := h.base.ApplySettings(stored); err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Settings().SetAll(changes); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	log.Info().Interface("settings", changes).Msg("settings saved, applied at next start")

	h.respond(w, http.StatusOK, stored)
}

// reset handles DELETE /api/settings/{key}.
func (h *SettingsHandler) reset(w http.ResponseWriter, key string) {
	if err := h.store.Settings().Delete(key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SettingsHandler) respond(w http.ResponseWriter, status int, stored map[string]string) {
	tunable := make(map[string]string, len(stored))
	for k, v := range stored {
		if config.IsTunable(k) {
			tunable[k] = v
		}
	}

	effective, err := h.base.ApplySettings(tunable)
	if err != nil {
		// A stored value no longer validates against the base config.
		effective = h.base
	}

	current := h.base.Tunables()
	pending := false
	for k, v := range effective.Tunables() {
		if current[k] != v {
			pending = true
			break
		}
	}

	writeJSON(w, status, settingsResponse{
		Settings: effective.Tunables(),
		Stored:   tunable,
		Pending:  pending,
	})
}
