package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler serves the timer websocket and its read-only HTTP companions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stateProvider     StateProvider
}

func NewWebSocketHandler(cm *ConnectionManager, provider StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stateProvider:     provider,
	}
}

// HandleTimerConnection handles GET /ws/timer?name=<timer>&team=<team>
func (h *WebSocketHandler) HandleTimerConnection(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	team, err := models.ParseTeam(r.URL.Query().Get("team"))
	if err != nil {
		http.Error(w, "invalid team", http.StatusBadRequest)
		return
	}

	// Check before upgrading so a missing timer is a plain 404
	if _, err := h.stateProvider.GetCurrentTimerState(r.Context(), name); err != nil {
		writeStateError(w, name, err)
		return
	}

	snapshot := func(ctx context.Context) (*TimerEvent, error) {
		state, err := h.stateProvider.GetCurrentTimerState(ctx, name)
		if err != nil {
			return nil, err
		}
		return &TimerEvent{
			ID:        uuid.New().String(),
			TimerName: name,
			Type:      EventTypeTimerSnapshot,
			Timestamp: state.CalculatedAt,
			State:     state,
		}, nil
	}
	if err := h.connectionManager.UpgradeConnection(w, r, name, team, snapshot); err != nil {
		// The client has either been replied to by the upgrader or closed
		log.Error().Err(err).Str("timer", name).Msg("failed to upgrade websocket connection")
		return
	}
}

// HandleTimerState handles GET /api/timers/state?name=<timer>
func (h *WebSocketHandler) HandleTimerState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.GetCurrentTimerState(r.Context(), name)
	if err != nil {
		writeStateError(w, name, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode timer state response")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/timer", h.HandleTimerConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("/api/timers/state", h.HandleTimerState)
}

func writeStateError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, timers.ErrNotFound):
		http.Error(w, "timer not found", http.StatusNotFound)
	case errors.Is(err, timers.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Str("timer", name).Msg("failed to get timer state")
		http.Error(w, "failed to get timer state", http.StatusInternalServerError)
	}
}
