package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emberchat/emberchat/internal/catalog"
	"github.com/emberchat/emberchat/internal/store"
	"github.com/emberchat/emberchat/internal/stream"
)

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.store.ListModels(r.Context())
	if err != nil {
		s.logger.Printf("[ERROR] httpserver: list models: %v", err)
		writeError(w, http.StatusInternalServerError, "list models failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Label) == "" {
		writeError(w, http.StatusBadRequest, "label required")
		return
	}
	kind, err := catalog.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ref := catalog.ModelRef{ID: uuid.NewString(), Label: req.Label, Kind: kind}
	if err := s.store.CreateModel(r.Context(), ref); err != nil {
		s.logger.Printf("[ERROR] httpserver: create model: %v", err)
		writeError(w, http.StatusInternalServerError, "create model failed")
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// handleDeleteModel enforces the built-in protection rule: the router's
// AssertDeletable runs before any row is touched.
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref, err := s.store.GetModel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	if err != nil {
		s.logger.Printf("[ERROR] httpserver: load model %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "load model failed")
		return
	}
	if err := s.chat.Router().AssertDeletable(ref); err != nil {
		var serr *stream.Error
		if errors.As(err, &serr) && serr.Kind == stream.ErrProtectedResource {
			writeError(w, http.StatusConflict, serr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.DeleteModel(r.Context(), ref.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "model not found")
			return
		}
		s.logger.Printf("[ERROR] httpserver: delete model %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "delete model failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	chars, err := s.store.ListCharacters(r.Context())
	if err != nil {
		s.logger.Printf("[ERROR] httpserver: list characters: %v", err)
		writeError(w, http.StatusInternalServerError, "list characters failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"characters": toCharacterViews(chars)})
}

func (s *Server) handleCreateCharacter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Persona string `json:"persona"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	c := store.Character{ID: uuid.NewString(), Name: req.Name, Persona: req.Persona}
	if err := s.store.CreateCharacter(r.Context(), c); err != nil {
		s.logger.Printf("[ERROR] httpserver: create character: %v", err)
		writeError(w, http.StatusInternalServerError, "create character failed")
		return
	}
	writeJSON(w, http.StatusCreated, toCharacterView(c))
}

func (s *Server) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCharacter(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "character not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load character failed")
		return
	}
	writeJSON(w, http.StatusOK, toCharacterView(c))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CharacterID string `json:"character_id"`
		Title       string `json:"title"`
		Metadata    string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if _, err := s.store.GetCharacter(r.Context(), req.CharacterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "character not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load character failed")
		return
	}
	sess := store.Session{ID: uuid.NewString(), CharacterID: req.CharacterID, Title: req.Title, Metadata: req.Metadata}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.logger.Printf("[ERROR] httpserver: create session: %v", err)
		writeError(w, http.StatusInternalServerError, "create session failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           sess.ID,
		"character_id": sess.CharacterID,
		"title":        sess.Title,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	msgs, err := s.store.ListMessages(r.Context(), sessionID)
	if err != nil {
		s.logger.Printf("[ERROR] httpserver: list messages: %v", err)
		writeError(w, http.StatusInternalServerError, "list messages failed")
		return
	}
	views := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, map[string]any{
			"id":         m.ID,
			"role":       m.Role,
			"text":       m.Text,
			"created_at": m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

func toCharacterView(c store.Character) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"name":       c.Name,
		"persona":    c.Persona,
		"created_at": c.CreatedAt,
	}
}

func toCharacterViews(chars []store.Character) []map[string]any {
	out := make([]map[string]any, 0, len(chars))
	for _, c := range chars {
		out = append(out, toCharacterView(c))
	}
	return out
}
