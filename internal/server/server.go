// Package server provides the HTTP API, middleware, and handlers for the
// copilot service.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/auth"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/copilot"
	csotel "github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/otel"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/ratelimit"
)

// defaultTimeout bounds short routes. The copilot route gets a longer
// deadline because the repair protocol allows two model round-trips.
const (
	defaultTimeout = 15 * time.Second
	copilotTimeout = 150 * time.Second
)

// Server holds the dependencies for the HTTP API.
type Server struct {
	router      *chi.Mux
	service     *copilot.Service
	verifier    auth.Verifier
	limiter     *ratelimit.Limiter
	corsOrigins []string
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets allowed CORS origins (["*"] for any).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimiter sets the per-owner request limiter (optional).
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// NewServer builds a Server with the required dependencies and Option(s).
func NewServer(service *copilot.Service, verifier auth.Verifier, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		service:     service,
		verifier:    verifier,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(csotel.Middleware())
	r.Use(CorrelationMiddleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(defaultTimeout))
		r.Get("/health", s.handleHealth)
	})

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.verifier))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(middleware.Timeout(copilotTimeout))
		r.Post("/api/ai", s.handleAI)
	})

	return r
}
