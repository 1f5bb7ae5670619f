package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-notify/internal/delivery"
	"github.com/nerrad567/gray-logic-notify/internal/subscription"
)

// handlePostToConnection delivers the request body to a connection held by
// this process. 410 means the connection is gone.
func (s *Server) handlePostToConnection(w http.ResponseWriter, r *http.Request) {
	if key := s.delivery.ManagementKey; key != "" {
		got := r.Header.Get(delivery.ManagementKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeUnauthorized(w, "invalid management key")
			return
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "unable to read body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.hub.Deliver(r.Context(), id, "", payload); err != nil {
		if errors.Is(err, subscription.ErrGone) {
			writeError(w, http.StatusGone, ErrCodeGone, "connection gone")
			return
		}
		s.logger.Warn("post to connection failed", "connection_id", id, "error", err)
		writeInternalError(w, "delivery failed")
		return
	}

	w.WriteHeader(http.StatusOK)
}
