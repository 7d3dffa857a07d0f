package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/insight-back/pkg/models"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionInfo represents a dashboard session
type SessionInfo struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin handles dashboard login requests. Credentials are checked
// against the configured dashboard account; there is no user database.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Username == "" || req.Password == "" {
		s.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "username and password required"})
		return
	}

	if s.cfg.Dashboard.Username == "" || s.cfg.Dashboard.Password == "" {
		s.logger.Error("Dashboard login attempted but no account is configured")
		s.respondJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "login is not configured"})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.Dashboard.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.Dashboard.Password)) == 1
	if !userOK || !passOK {
		s.respondJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "invalid credentials"})
		return
	}

	token, err := generateSessionToken()
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to generate session"})
		return
	}

	session := SessionInfo{
		Token:     token,
		Username:  req.Username,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(s.cfg.Dashboard.SessionTTL),
	}

	if err := s.sessions.SetJSON(r.Context(), "session:"+token, session, s.cfg.Dashboard.SessionTTL); err != nil {
		s.logger.WithError(err).Error("Failed to store session")
		s.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create session"})
		return
	}

	s.respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	})
}

// handleLogout handles dashboard logout requests
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Session-Token")
	if token == "" {
		s.respondJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "session token required"})
		return
	}

	if err := s.sessions.Delete(r.Context(), "session:"+token); err != nil {
		// The session will expire on its own; don't fail the logout.
		s.logger.WithError(err).Error("Failed to delete session")
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleGetSession returns current session info
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Session-Token")
	if token == "" {
		s.respondJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "session token required"})
		return
	}

	session, err := s.validateSession(r, token)
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to validate session"})
		return
	}
	if session == nil {
		s.respondJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "invalid or expired session"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"username":   session.Username,
		"created_at": session.CreatedAt,
		"expires_at": session.ExpiresAt,
		"valid":      true,
	})
}

// validateSession validates a session token
func (s *Server) validateSession(r *http.Request, token string) (*SessionInfo, error) {
	var session SessionInfo
	exists, err := s.sessions.GetJSON(r.Context(), "session:"+token, &session)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	if time.Now().After(session.ExpiresAt) {
		s.sessions.Delete(r.Context(), "session:"+token)
		return nil, nil
	}

	return &session, nil
}

// generateSessionToken generates a secure random session token
func generateSessionToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// authMiddleware validates the dashboard session for protected endpoints
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Session-Token")
		if token == "" {
			s.respondJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "session token required"})
			return
		}

		session, err := s.validateSession(r, token)
		if err != nil {
			s.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to validate session"})
			return
		}
		if session == nil {
			s.respondJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "invalid or expired session"})
			return
		}

		next.ServeHTTP(w, r)
	}
}
