// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// =============================================================================
// SERVER
// =============================================================================

// Server is the request validation service.
type Server struct {
	addr    string
	version string
	started time.Time
	now     func() time.Time
	logger  *log.Logger

	cors    atomic.Pointer[CORSConfig]
	limiter *RateLimiter

	router     chi.Router
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger replaces the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock injects the time source used for timestamps and uptime.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a server from the [server] config section.
func New(cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		addr:    cfg.Addr,
		version: "dev",
		now:     time.Now,
		logger:  log.New(os.Stderr, "[server] ", log.LstdFlags),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	s.cors.Store(DefaultCORSConfig(cfg.CORSOrigins))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORSMiddleware(s.cors.Load))
	r.Use(RateLimitMiddleware(s.limiter))
	r.Use(MaxBodyMiddleware(MaxBodySize))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/models", s.handleModels)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})
	s.router = r
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Reload applies new CORS and rate-limit settings without a restart.
func (s *Server) Reload(cfg config.ServerConfig) {
	s.cors.Store(DefaultCORSConfig(cfg.CORSOrigins))
	s.limiter.SetLimit(cfg.RateLimit, cfg.RateBurst)
	log.Printf("SERVER_RELOADED | cors=%s rate=%.2f burst=%d",
		strings.Join(cfg.CORSOrigins, ","), cfg.RateLimit, cfg.RateBurst)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("SERVER_STARTED | addr=%s version=%s", ln.Addr(), s.version)
		errc <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Printf("SERVER_STOPPED | addr=%s", ln.Addr())
	return nil
}

// Run listens on the configured address and, when configPath is set,
// reloads settings from it on change. It returns when ctx is done or
// either task fails.
func (s *Server) Run(ctx context.Context, configPath string) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(ctx, ln)
	})
	if configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, configPath, config.DefaultDebounce, func(cfg *config.Config, err error) {
				if err == nil {
					s.Reload(cfg.Server)
				}
			})
		})
	}
	return g.Wait()
}

// =============================================================================
// HANDLERS
// =============================================================================

// ChatValidationRequest is the body of POST /api/chat. Fields stay raw so
// any JSON type is accepted; message and model only have to be truthy.
type ChatValidationRequest struct {
	Message      json.RawMessage `json:"message"`
	Model        json.RawMessage `json:"model"`
	Conversation json.RawMessage `json:"conversation,omitempty"`
	UserID       json.RawMessage `json:"userId,omitempty"`
}

// truthy reports whether raw is present and not null, false, 0 or "".
func truthy(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	switch v {
	case "", "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f != 0
	}
	return true
}

// ChatValidationResponse is returned for a valid request.
type ChatValidationResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ValidatedMessage is the fixed success text.
const ValidatedMessage = "Request validated - proceed with client-side AI call"

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.validation(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Request body too large"})
			return
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// A body that is valid JSON but not an object carries no fields.
			s.validation(w, http.StatusBadRequest, errorResponse{Error: "Message and model are required"})
			return
		}
		log.Printf("VALIDATION_ERROR | request_id=%s error=%v", RequestID(r.Context()), err)
		s.validation(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Details: err.Error(),
		})
		return
	}

	if !truthy(req.Message) || !truthy(req.Model) {
		s.validation(w, http.StatusBadRequest, errorResponse{Error: "Message and model are required"})
		return
	}

	s.validation(w, http.StatusOK, ChatValidationResponse{
		Success:   true,
		Message:   ValidatedMessage,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

// validation writes v and counts the outcome.
func (s *Server) validation(w http.ResponseWriter, status int, v interface{}) {
	telemetry.RecordValidation(fmt.Sprintf("%d", status))
	writeJSON(w, status, v)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// ModelsResponse is the body of GET /api/models.
type ModelsResponse struct {
	Default string            `json:"default"`
	Models  []model.ModelInfo `json:"models"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelsResponse{
		Default: model.DefaultModel,
		Models:  model.ListModels(),
	})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("RESPONSE_WRITE_FAILED | error=%v", err)
	}
}
