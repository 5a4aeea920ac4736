package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/bayestune/internal/objective"
	"github.com/cwbudde/bayestune/internal/store"
	"github.com/cwbudde/bayestune/internal/tuner"
)

// Server represents the HTTP server
type Server struct {
	sessions     *SessionManager
	addr         string
	server       *http.Server
	logger       *slog.Logger
	gatherer     prometheus.Gatherer
	pingInterval time.Duration
}

// Option customizes a Server
type Option func(*Server)

// WithLogger sets the request and handler logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer selects the registry served on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a new HTTP server
func NewServer(addr string, t *tuner.Tuner, st store.Store, opts ...Option) *Server {
	s := &Server{
		sessions:     NewSessionManager(t, st),
		addr:         addr,
		logger:       slog.Default(),
		gatherer:     prometheus.DefaultGatherer,
		pingInterval: 30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleResetSession)
		r.Post("/{id}/step", s.handleStep)
		r.Get("/{id}/history", s.handleHistory)
		r.Get("/{id}/events", s.handleSessionStream)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type stepRequest struct {
	X      []float64 `json:"x"`
	Manual []float64 `json:"manual,omitempty"`
	Auto   []float64 `json:"auto,omitempty"`

	// Raw evaluation results, converted to deviations by the tuner
	Rating       *float64                   `json:"rating,omitempty"`
	Threshold    float64                    `json:"threshold,omitempty"`
	Measurements map[string][]float64       `json:"measurements,omitempty"`
	Ranges       map[string]objective.Range `json:"ranges,omitempty"`
}

func (req stepRequest) input() tuner.Input {
	in := tuner.Input{X: req.X, Manual: req.Manual, Auto: req.Auto}
	e := &objective.Evaluation{
		Rating:       req.Rating,
		Threshold:    req.Threshold,
		Measurements: req.Measurements,
		Ranges:       req.Ranges,
	}
	if !e.Empty() {
		in.Evaluation = e
	}
	return in
}

// handleCreateSession handles POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"id": NewSessionID()})
}

// handleListSessions handles GET /api/v1/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleGetSession handles GET /api/v1/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	status, err := s.sessions.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleHistory handles GET /api/v1/sessions/{id}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.sessions.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handleResetSession handles DELETE /api/v1/sessions/{id}
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStep handles POST /api/v1/sessions/{id}/step
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := s.sessions.Step(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var validation *store.ValidationError
	switch {
	case tuner.IsConfigError(err), errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tuner.ErrSpaceMismatch):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
