package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/auth"
	"github.com/nerrad567/gray-logic-notify/internal/entity"
	"github.com/nerrad567/gray-logic-notify/internal/metrics"
)

// credentialsRequest is the request body for register and login.
type credentialsRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// tokenResponse is the response body for POST /auth/login.
type tokenResponse struct {
	JWTToken  string    `json:"jwtToken"`
	ExpiresAt time.Time `json:"expires_at"`
}

// registerResponse is the response body for PUT /auth/register.
type registerResponse struct {
	tokenResponse
	User entity.Entity `json:"user"`
}

// authorizeRequest is the request body for POST /auth/authorize.
type authorizeRequest struct {
	AuthorizationToken string `json:"authorizationToken"`
	MethodArn          string `json:"methodArn"`
}

// decodeCredentials reads an {id, password} body. It writes the error
// response and returns false when the body is unusable.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return req, false
	}
	if req.ID == "" || req.Password == "" {
		writeBadRequest(w, "id and password are required")
		return req, false
	}
	return req, true
}

// handleRegister creates a credential with scope "self" and the matching entity.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	tok, err := s.auth.Register(r.Context(), req.ID, req.Password, []string{auth.ScopeSelf})
	metrics.AuthAttempts.WithLabelValues("register", metrics.Result(err)).Inc()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.entities.Create(r.Context(), req.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user, err := s.entities.Get(r.Context(), req.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		tokenResponse: tokenResponse{JWTToken: tok.Value, ExpiresAt: tok.ExpiresAt},
		User:          user,
	})
}

// handleLogin verifies a password, ensures the principal's entity exists
// and returns a fresh token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	tok, err := s.auth.Login(r.Context(), req.ID, req.Password)
	metrics.AuthAttempts.WithLabelValues("login", metrics.Result(err)).Inc()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// Register stores the credential before the entity, so a failure in
	// between leaves a principal without an entity. Create is a no-op when
	// the entity exists and restores it otherwise.
	if err := s.entities.Create(r.Context(), req.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{JWTToken: tok.Value, ExpiresAt: tok.ExpiresAt})
}

// handleAuthorize is the gateway authorizer. It always answers 200 with an
// Allow or Deny policy document.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.MethodArn == "" {
		writeBadRequest(w, "methodArn is required")
		return
	}

	decision := s.auth.AuthorizeForGateway(r.Context(), req.MethodArn, req.AuthorizationToken, []string{auth.ScopeSelf})
	result := metrics.ResultOK
	if !decision.Allowed() {
		result = metrics.ResultError
	}
	metrics.AuthAttempts.WithLabelValues("authorize", result).Inc()

	writeJSON(w, http.StatusOK, decision)
}
