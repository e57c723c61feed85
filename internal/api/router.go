// Package api serves a read-only view of the agent: its status snapshot
// and the connectivity event log.
package api

import (
	"log"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"siapsuhu/internal/agent"
	"siapsuhu/internal/events"
	"siapsuhu/internal/storage"
)

// StatusSource provides the latest agent snapshot.
type StatusSource interface {
	Status() agent.Status
}

// Server represents the status API server
type Server struct {
	router   *chi.Mux
	status   StatusSource
	store    *events.Store
	journal  storage.Journal
	logger   *log.Logger
	version  string
	pollRate time.Duration
}

// NewServer creates the status API. journal may be nil when the diagnostic
// journal is disabled.
func NewServer(status StatusSource, store *events.Store, journal storage.Journal, version string, logger *log.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		status:   status,
		store:    store,
		journal:  journal,
		logger:   logger,
		version:  version,
		pollRate: time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	statusHandler := NewStatusHandler(s.status, s.version)
	eventsHandler := NewEventsHandler(s.store, s.journal, s.logger, s.pollRate)

	r.Get("/health", statusHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusHandler.Status)
		r.Get("/events", eventsHandler.List)
		r.Get("/events/ws", eventsHandler.Stream)
		r.Get("/journal", eventsHandler.Journal)
	})
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}
