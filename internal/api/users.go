package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-notify/internal/entity"
)

// ownsEntity checks that the authenticated principal is id. It writes 403
// and returns false otherwise.
func ownsEntity(w http.ResponseWriter, r *http.Request, id string) bool {
	if principalFromContext(r.Context()) != id {
		writeForbidden(w, "access to another principal's entity is not allowed")
		return false
	}
	return true
}

// handleGetUser returns the caller's entity.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !ownsEntity(w, r, id) {
		return
	}

	e, err := s.entities.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handlePutUser replaces the caller's entity and fans the new state out.
func (s *Server) handlePutUser(w http.ResponseWriter, r *http.Request) {
	var e entity.Entity
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if e.ID() == "" {
		writeBadRequest(w, "id is required")
		return
	}
	if !ownsEntity(w, r, e.ID()) {
		return
	}

	stored, err := s.entities.Put(r.Context(), e)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// handleUserAction applies an action to the caller's entity.
func (s *Server) handleUserAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !ownsEntity(w, r, id) {
		return
	}

	var action entity.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if action.Type == "" {
		writeBadRequest(w, "action type is required")
		return
	}

	next, err := s.entities.Apply(r.Context(), id, action)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}
