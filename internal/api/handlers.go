package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/internal/pipeline"
	"github.com/scanwatch/scanwatch/internal/storage/sqlite"
	"github.com/scanwatch/scanwatch/internal/subscribers"
	"github.com/scanwatch/scanwatch/internal/websocket"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	pipelineService *pipeline.Service
	store           *sqlite.Store
	subscriberStore *subscribers.Store
	config          *config.Config
	logger          *logger.Logger
	wsServer        *websocket.Server
}

// NewHandler creates a new API handler
func NewHandler(pipelineService *pipeline.Service, store *sqlite.Store, subscriberStore *subscribers.Store, config *config.Config, log *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		pipelineService: pipelineService,
		store:           store,
		subscriberStore: subscriberStore,
		config:          config,
		logger:          log.Named("api-handler"),
		wsServer:        wsServer,
	}
}

// GetStatus returns the current pipeline status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.pipelineService.Status()

	response := map[string]any{
		"timestamp":              time.Now().UTC(),
		"phase":                  status.Phase,
		"backoff_threshold_secs": int(status.BackoffThreshold.Seconds()),
		"processed_count":        status.ProcessedCount,
		"last_unixtime":          status.LastUnixtime,
		"ws_clients":             h.wsServer.ClientCount(),
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetTranscripts returns stored transcripts with pagination
func (h *Handler) GetTranscripts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	transcripts, err := h.store.GetTranscripts(limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve transcripts", logger.Error(err))
		http.Error(w, "Failed to retrieve transcripts", http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"timestamp":   time.Now().UTC(),
		"count":       len(transcripts),
		"transcripts": transcripts,
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetAlerts returns alert dispatch history with pagination
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	dispatches, err := h.store.GetDispatches(limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve alert dispatches", logger.Error(err))
		http.Error(w, "Failed to retrieve alerts", http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"timestamp": time.Now().UTC(),
		"count":     len(dispatches),
		"alerts":    dispatches,
	}

	WriteJSON(w, http.StatusOK, response)
}

// HandleWebSocket handles WebSocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parsePaginationParams(r *http.Request) (int, int) {
	limit := 100 // Default limit
	offset := 0  // Default offset

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}
