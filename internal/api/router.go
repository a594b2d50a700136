package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/internal/pipeline"
	"github.com/scanwatch/scanwatch/internal/storage/sqlite"
	"github.com/scanwatch/scanwatch/internal/subscribers"
	"github.com/scanwatch/scanwatch/internal/websocket"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Router wires API handlers to routes
type Router struct {
	handler *Handler
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(pipelineService *pipeline.Service, store *sqlite.Store, subscriberStore *subscribers.Store, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Router {
	return &Router{
		handler: NewHandler(pipelineService, store, subscriberStore, cfg, log, wsServer),
		logger:  log.Named("api-router"),
	}
}

// Routes returns the HTTP handler for the API
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", r.handler.GetStatus)
		api.Get("/transcriptions", r.handler.GetTranscripts)
		api.Get("/alerts", r.handler.GetAlerts)

		api.Route("/subscribers", func(sub chi.Router) {
			sub.Get("/", r.handler.GetSubscribers)
			sub.Put("/", r.handler.UpsertSubscriber)
			sub.Delete("/{email}", r.handler.DeleteSubscriber)
		})

		api.Get("/ws", r.handler.HandleWebSocket)
	})

	return router
}
