// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	service "github.com/okian/codequest/internal/app"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/pkg/logger"
)

const defaultMaxBodyBytes = 256 << 10

var errMissingToken = fmt.Errorf("%w: missing bearer token", model.ErrNotAuthenticated)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Progress(ctx context.Context, p model.Principal, category string) (model.ProgressRecord, error)
	RequestLevel(ctx context.Context, p model.Principal, category string, level int) (service.LevelView, error)
	CompleteLevel(ctx context.Context, p model.Principal, category string, level int) (model.ProgressRecord, error)
	SubmitScore(ctx context.Context, p model.Principal, category string, level, score int) (model.ScoreEntry, error)
	TopN(ctx context.Context, category string, n int) ([]model.ScoreEntry, error)
	Execute(ctx context.Context, p model.Principal, req model.ExecutionRequest) (model.ExecutionResult, error)
	Daily(ctx context.Context, category string) (model.ChallengeRecord, error)
	Ping(ctx context.Context) error
	MaxLimit() int
}

// Verifier turns a bearer token into a principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (model.Principal, error)
}

var _ Dependencies = (*service.Service)(nil)

// Server wires HTTP routes for the business API.
type Server struct {
	deps         Dependencies
	verifier     Verifier
	stats        StatsProvider
	log          logger.Logger
	origins      []string
	maxBodyBytes int64
	router       *chi.Mux
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCORSOrigins sets the browser origins allowed to call the API.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithMaxBodyBytes caps request bodies; larger bodies get 413.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithStats exposes GET /stats.
func WithStats(p StatsProvider) Option {
	return func(s *Server) {
		s.stats = p
	}
}

// NewServer creates a new API server with all routes registered.
func NewServer(deps Dependencies, verifier Verifier, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		verifier:     verifier,
		log:          logger.Nop(),
		origins:      []string{"*"},
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("http")
	s.routes()
	return s
}

// Router returns the configured router. Further routes may be added to it.
func (s *Server) Router() *chi.Mux { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	health := NewHealthHandler(s.deps)
	r.Get("/healthz", MetricsMiddleware(health.HandleHealth, "healthz"))
	r.Get("/readyz", MetricsMiddleware(health.HandleReady, "readyz"))
	r.Get("/metrics", health.HandleMetrics)
	if s.stats != nil {
		r.Get("/stats", MetricsMiddleware(NewStatsHandler(s.stats).HandleStats, "stats"))
	}

	r.Route("/api", func(r chi.Router) {
		// Public reads.
		r.Get("/leaderboard/{category}", MetricsMiddleware(s.handleTopN, "leaderboard"))
		r.Get("/challenges/{category}/daily", MetricsMiddleware(s.handleDaily, "daily"))

		r.Group(func(r chi.Router) {
			r.Use(authenticate(s.verifier, s.log))

			r.Get("/progress/{category}", MetricsMiddleware(s.handleGetProgress, "progress"))
			r.Post("/progress/update", MetricsMiddleware(s.handleUpdateProgress, "progress_update"))
			r.Get("/levels/{category}/{level}", MetricsMiddleware(s.handleGetLevel, "levels"))
			r.Post("/leaderboard/submit", MetricsMiddleware(s.handleSubmitScore, "leaderboard_submit"))
			r.Post("/execute", MetricsMiddleware(s.handleExecute, "execute"))
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, NewKind("api.route", errNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Code:    "method_not_allowed",
			Message: http.StatusText(http.StatusMethodNotAllowed),
		})
	})

	s.router = r
}

var errNotFound = fmt.Errorf("%w: no such route", model.ErrChallengeNotFound)

// decode reads a JSON body into v. Oversized bodies fail with model.ErrPayloadTooLarge.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return fmt.Errorf("%w: body exceeds %d bytes", model.ErrPayloadTooLarge, tooBig.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		default:
			return fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
	}
	return nil
}

// pathInt parses an integer path parameter.
func pathInt(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", model.ErrInvalidInput, name, raw)
	}
	return n, nil
}
