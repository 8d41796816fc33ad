// Package server implements a sandbox of the remote email service. It serves
// a fixed batch of emails and records the replies it receives, so runs can be
// exercised end to end without the real service.
package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/emailflow/pkg/model"
)

// Config holds sandbox behavior.
type Config struct {
	// APIKey, when set, must match the api_key of every request.
	APIKey string
	// FailIDs lists email IDs whose replies are rejected with 500.
	FailIDs []string
	// Latency is added to every POST /responses.
	Latency time.Duration
}

// Received is one reply accepted by the sandbox.
type Received struct {
	model.ResponsePayload
	RequestID  string    `json:"request_id"`
	ReceivedAt time.Time `json:"received_at"`
	// Early is set when the reply arrived before replies to all of the
	// email's dependencies.
	Early bool `json:"early,omitempty"`
}

// Server is the sandbox email service.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    Config
	startTime time.Time

	emails  []model.EmailPayload
	byID    map[string]model.EmailPayload
	failIDs map[string]bool

	mu       sync.Mutex
	received []Received
	answered map[string]bool
}

// New creates a sandbox serving tasks.
func New(cfg Config, tasks []model.Task, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "sandbox"),
		config:    cfg,
		startTime: time.Now(),
		byID:      make(map[string]model.EmailPayload, len(tasks)),
		failIDs:   make(map[string]bool, len(cfg.FailIDs)),
		answered:  make(map[string]bool, len(tasks)),
	}
	for _, t := range tasks {
		p := model.PayloadFromTask(t)
		s.emails = append(s.emails, p)
		s.byID[p.ID] = p
	}
	for _, id := range cfg.FailIDs {
		s.failIDs[id] = true
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Received returns a copy of the replies accepted so far, in arrival order.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/health", s.handleHealth)
	r.Get("/emails", s.handleListEmails)
	r.Route("/responses", func(r chi.Router) {
		r.Get("/", s.handleListResponses)
		r.Post("/", s.handleCreateResponse)
	})
}
