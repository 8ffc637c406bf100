// Package httpserver exposes the REST and SSE endpoints for EmberChat.
package httpserver

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/emberchat/emberchat/internal/chat"
	"github.com/emberchat/emberchat/internal/metrics"
	"github.com/emberchat/emberchat/internal/store"
	"github.com/emberchat/emberchat/internal/version"
)

// Server wires the chat service and the store into HTTP handlers.
type Server struct {
	chat   *chat.Service
	store  store.Store
	logger *log.Logger
}

// New creates a Server. A nil logger falls back to the default logger.
func New(svc *chat.Service, st store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{chat: svc, store: st, logger: logger}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/models", s.handleListModels)
		api.Post("/models", s.handleCreateModel)
		api.Delete("/models/{id}", s.handleDeleteModel)

		api.Get("/characters", s.handleListCharacters)
		api.Post("/characters", s.handleCreateCharacter)
		api.Get("/characters/{id}", s.handleGetCharacter)

		api.Post("/sessions", s.handleCreateSession)
		api.Get("/sessions/{id}/messages", s.handleListMessages)

		api.Post("/sessions/{id}/stream", s.handleStream)
		api.Delete("/sessions/{id}/stream", s.handleCancelStream)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Info()})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(metrics.FormatPrometheus(s.chat.Metrics().GetSnapshot())))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
