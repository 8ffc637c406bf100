package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emberchat/emberchat/internal/store"
	"github.com/emberchat/emberchat/internal/stream"
)

// handleStream runs one chat turn and relays the normalized events over SSE.
// Event names: token, usage, done, error. Transport framing lives here; the
// orchestration core only produces the event sequence.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req struct {
		Message string `json:"message"`
		Model   string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}

	ref, err := s.store.GetModel(r.Context(), req.Model)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "unknown model")
		return
	}
	if err != nil {
		s.logger.Printf("[ERROR] httpserver: load model %q: %v", req.Model, err)
		writeError(w, http.StatusInternalServerError, "load model failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	emit := func(event string, payload any) {
		fmt.Fprintf(w, "event: %s\n", event)
		b, _ := json.Marshal(payload)
		fmt.Fprintf(w, "data: %s\n\n", string(b))
		if flusher != nil {
			flusher.Flush()
		}
	}

	sink := func(delta string) {
		emit("token", map[string]string{"text": delta})
	}

	result, err := s.chat.Respond(r.Context(), sessionID, req.Message, ref, sink)
	if err != nil {
		if errors.Is(err, stream.ErrSessionBusy) {
			emit("error", map[string]string{"kind": "busy", "message": "session already streaming"})
			return
		}
		s.logger.Printf("[ERROR] httpserver: stream session %s: %v", sessionID, err)
		emit("error", map[string]string{"kind": "internal", "message": err.Error()})
		return
	}

	if result.Err != nil {
		var serr *stream.Error
		if errors.As(result.Err, &serr) {
			emit("error", map[string]string{"kind": string(serr.Kind), "message": serr.Message})
		} else {
			emit("error", map[string]string{"kind": "internal", "message": result.Err.Error()})
		}
		return
	}

	if result.Usage != nil {
		emit("usage", result.Usage)
	}
	emit("done", map[string]int{"length": len(result.Text)})
}

// handleCancelStream cancels the session's active stream, if any.
func (s *Server) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if s.chat.Cancel(sessionID) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}
	writeError(w, http.StatusNotFound, "no active stream")
}
