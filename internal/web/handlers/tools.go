package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/relaychat/relay/internal/catalog"
	"github.com/relaychat/relay/internal/prefs"
)

// ToolsConfig contains configuration for the Tools handler.
type ToolsConfig struct {
	Logger   *slog.Logger
	Registry *catalog.Registry
	Prefs    *prefs.Store
	Sessions *Sessions
}

// Tools serves the registry listing and the session's tool selection.
type Tools struct {
	logger   *slog.Logger
	registry *catalog.Registry
	prefs    *prefs.Store
	sessions *Sessions
}

// NewTools creates a Tools handler.
func NewTools(cfg ToolsConfig) *Tools {
	if cfg.Logger == nil {
		panic("NewTools: logger is required")
	}
	return &Tools{
		logger:   cfg.Logger,
		registry: cfg.Registry,
		prefs:    cfg.Prefs,
		sessions: cfg.Sessions,
	}
}

type toolsResponse struct {
	Tools    []catalog.Entry `json:"tools"`
	Selected []string        `json:"selected"`
}

// List handles GET /api/tools: the catalog plus the caller's selection.
func (h *Tools) List(w http.ResponseWriter, r *http.Request) {
	key := h.sessions.PrefsKey(w, r)
	selected, found, err := h.prefs.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("reading tool selection", "error", err)
		http.Error(w, "preference read failed", http.StatusInternalServerError)
		return
	}
	if !found {
		// No durable copy yet; the cookie mirror seeds the selection.
		if mirrored := prefs.FromCookie(r); mirrored != nil {
			selected = mirrored
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toolsResponse{
		Tools:    h.registry.All(),
		Selected: selected,
	})
}

type updateRequest struct {
	Selected []string `json:"selected"`
}

// Update handles PUT /api/tools: replaces the selection with the final
// committed set. The durable write is authoritative; the cookie mirror is
// best-effort and its failure only logs.
func (h *Tools) Update(w http.ResponseWriter, r *http.Request) {
	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Selected == nil {
		body.Selected = []string{}
	}

	key := h.sessions.PrefsKey(w, r)
	if err := h.prefs.Set(r.Context(), key, body.Selected); err != nil {
		h.logger.Error("writing tool selection", "error", err)
		http.Error(w, "preference write failed", http.StatusInternalServerError)
		return
	}

	if c, err := prefs.Cookie(body.Selected); err != nil {
		h.logger.Warn("tool selection cookie not mirrored", "error", err)
	} else {
		http.SetCookie(w, c)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toolsResponse{
		Tools:    h.registry.All(),
		Selected: body.Selected,
	})
}
