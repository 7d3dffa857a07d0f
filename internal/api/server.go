package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/insight-back/internal/aggregator"
	"github.com/insight-back/internal/cache"
	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/internal/stream"
	"github.com/insight-back/internal/vendors"
	"github.com/insight-back/internal/websocket"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

const version = "1.0.0"

// Server represents the HTTP API server
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	// Dependencies
	agg      *aggregator.Service
	creds    *credentials.Store
	sessions cache.Cache
	hub      *websocket.Hub
	stream   *stream.Client
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	logger *logrus.Logger,
	agg *aggregator.Service,
	creds *credentials.Store,
	sessions cache.Cache,
	hub *websocket.Hub,
	streamClient *stream.Client,
) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		agg:      agg,
		creds:    creds,
		sessions: sessions,
		hub:      hub,
		stream:   streamClient,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	if s.cfg.Security.CORSEnabled {
		s.router.Use(s.corsMiddleware)
	}

	apiV1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	apiV1.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Authentication endpoints
	apiV1.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	apiV1.HandleFunc("/auth/logout", s.handleLogout).Methods("POST")
	apiV1.HandleFunc("/auth/session", s.handleGetSession).Methods("GET")

	// Dashboard WebSocket endpoint
	apiV1.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	// Predictions endpoints
	apiV1.HandleFunc("/predictions", s.handleListPredictions).Methods("GET")
	apiV1.HandleFunc("/predictions/{symbol}", s.handleGetPrediction).Methods("GET")
	apiV1.HandleFunc("/tickers", s.handleSearchTickers).Methods("GET")

	// Finance data endpoints
	apiV1.HandleFunc("/quotes/{symbol}", s.handleGetQuote).Methods("GET")
	apiV1.HandleFunc("/quotes/{symbol}/history", s.handleGetHistory).Methods("GET")
	apiV1.HandleFunc("/quotes/{symbol}/profile", s.handleGetProfile).Methods("GET")
	apiV1.HandleFunc("/quotes/{symbol}/indicator", s.handleGetIndicator).Methods("GET")
	apiV1.HandleFunc("/quotes/{symbol}/bars", s.handleGetBars).Methods("GET")

	// News endpoints
	apiV1.HandleFunc("/news", s.handleGetNews).Methods("GET")
	apiV1.HandleFunc("/news/recent", s.handleRecentNews).Methods("GET")

	// Generated artifacts (authenticated: these calls cost money)
	apiV1.HandleFunc("/insights/{symbol}", s.authMiddleware(s.handleGenerateInsight)).Methods("POST")
	apiV1.HandleFunc("/speech", s.authMiddleware(s.handleSynthesizeSpeech)).Methods("POST")

	// Credential management (authenticated)
	apiV1.HandleFunc("/keys", s.authMiddleware(s.handleListKeys)).Methods("GET")
	apiV1.HandleFunc("/keys/{vendor}", s.authMiddleware(s.handleSetKey)).Methods("PUT")
	apiV1.HandleFunc("/keys/{vendor}", s.authMiddleware(s.handleClearKey)).Methods("DELETE")

	// Streaming session control
	apiV1.HandleFunc("/stream/status", s.handleStreamStatus).Methods("GET")
	apiV1.HandleFunc("/stream/connect", s.authMiddleware(s.handleStreamConnect)).Methods("POST")
	apiV1.HandleFunc("/stream/disconnect", s.authMiddleware(s.handleStreamDisconnect)).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.cfg.GetServerAddr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the configured router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Middleware functions

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(s.cfg.Security.CORSOrigins),
		handlers.AllowedMethods(s.cfg.Security.CORSMethods),
		handlers.AllowedHeaders(s.cfg.Security.CORSHeaders),
		handlers.AllowCredentials(),
	)(next)
}

// handleHealth checks the health status of all system components
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessionsOK := s.sessions.Health(r.Context()) == nil

	health := models.HealthStatus{
		Status: "healthy",
		Services: map[string]bool{
			"cache":  sessionsOK,
			"stream": s.stream != nil && s.stream.State() == stream.StateSubscribed,
		},
		Connections: s.hub.GetConnectionCount(),
		Timestamp:   time.Now().Unix(),
		Version:     version,
	}
	if !sessionsOK {
		health.Status = "degraded"
	}

	s.respondJSON(w, http.StatusOK, health)
}

// handleWebSocket establishes the dashboard WebSocket connection
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}

// Response helpers

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// respondVendorError maps a vendor failure to an API response. Vendor
// failures become 502 so the dashboard can tell "our backend broke" (500)
// from "a vendor call failed" (502); the vendor's own status and message
// ride along in the body. Credential rejections are marked so the UI can
// prompt for a key update instead of showing a generic failure.
func (s *Server) respondVendorError(w http.ResponseWriter, err error) {
	if ve, ok := vendors.AsError(err); ok {
		status := http.StatusBadGateway
		resp := models.ErrorResponse{
			Error:   string(ve.Vendor) + " request failed",
			Code:    ve.StatusCode,
			Message: ve.Message,
		}
		if ve.IsAuth() {
			resp.Error = string(ve.Vendor) + " rejected the configured credential"
		}
		if ve.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		s.respondJSON(w, status, resp)
		return
	}

	s.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{
		Error: "request failed",
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
