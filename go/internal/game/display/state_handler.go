package display

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/kenoboard/go/internal/game"
	"github.com/mcdev12/kenoboard/go/internal/game/stream"
	"github.com/rs/zerolog/log"
)

// ConnectionSource is the read side of the upstream connection manager.
type ConnectionSource interface {
	Status() stream.Status
	Subscribe(buffer int) (<-chan stream.StateChange, func())
}

// BoardStateResponse is the complete state a board needs to render
type BoardStateResponse struct {
	HasGame    bool              `json:"has_game"`
	Game       *game.Snapshot    `json:"game,omitempty"`
	Heads      int               `json:"heads"`
	Tails      int               `json:"tails"`
	TimeLeft   string            `json:"time_left"`
	Highlight  *HighlightPayload `json:"highlight,omitempty"`
	Connection stream.Status     `json:"connection"`
}

// StateHandler handles HTTP requests for board state
type StateHandler struct {
	store           *game.Store
	conn            ConnectionSource
	hub             *Hub
	health          *HealthChecker
	clock           clockwork.Clock
	highlightWindow time.Duration
}

// NewStateHandler creates a new state handler
func NewStateHandler(store *game.Store, conn ConnectionSource, hub *Hub, clock clockwork.Clock, highlightWindow time.Duration) *StateHandler {
	return &StateHandler{
		store:           store,
		conn:            conn,
		hub:             hub,
		health:          NewHealthChecker(store, conn, hub, clock),
		clock:           clock,
		highlightWindow: highlightWindow,
	}
}

// HandleGetState handles GET /api/game/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	resp := BoardStateResponse{
		Connection: h.conn.Status(),
		TimeLeft:   "00:00",
	}

	if snap, ok := h.store.Current(); ok {
		resp.HasGame = true
		resp.Game = &snap
		resp.Heads = snap.Heads()
		resp.Tails = snap.Tails()
		resp.TimeLeft = snap.FormatTimeLeft(now)
	}

	if hl, ok := h.store.LastHighlight(); ok && hl.Active(now, h.highlightWindow) {
		resp.Highlight = &HighlightPayload{
			GameID:   currentGameID(resp.Game),
			Pick:     hl.Pick,
			At:       hl.At,
			WindowMs: h.highlightWindow.Milliseconds(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleGetGame handles GET /api/games/{id}
func (h *StateHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid game ID", http.StatusBadRequest)
		return
	}

	snap, ok := h.store.Game(id)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// HandleListGames handles GET /api/games, most recently finished first
func (h *StateHandler) HandleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.History())
}

// HandleGetConnection handles GET /api/connection
func (h *StateHandler) HandleGetConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.conn.Status())
}

// HandleConnectionStats handles GET /ws/stats
func (h *StateHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Stats())
}

// RegisterRoutes registers the board routes on r
func (h *StateHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/board", h.hub.ServeWS)
	r.Get("/ws/stats", h.HandleConnectionStats)
	r.Get("/api/game/state", h.HandleGetState)
	r.Get("/api/games", h.HandleListGames)
	r.Get("/api/games/{id}", h.HandleGetGame)
	r.Get("/api/connection", h.HandleGetConnection)
	r.Get("/health", h.health.ServeHTTP)
	r.Get("/metrics", h.health.ServeMetrics)
}

func currentGameID(snap *game.Snapshot) int64 {
	if snap == nil {
		return 0
	}
	return snap.GameID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
