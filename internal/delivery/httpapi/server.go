// Package httpapi exposes the generation pipeline over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	pgrepo "github.com/aliskhannn/ssm-generator/internal/infra/postgres/repository"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

// RunService starts and looks up background runs.
type RunService interface {
	Start(req entities.RunRequest) (*service.Run, error)
	Get(id uuid.UUID) (*service.Run, bool)
}

// ItemWriter validates and appends items to the record store.
type ItemWriter interface {
	Persist(ctx context.Context, items []entities.GeneratedItem, path string, mode entities.WriteMode) (int, error)
}

// ItemStore queries mirrored items.
type ItemStore interface {
	CountBySubject(ctx context.Context) ([]pgrepo.SubjectCount, error)
	ListBySubject(ctx context.Context, subject string, limit int) ([]entities.GeneratedItem, error)
}

// Options holds the server settings derived from configuration.
type Options struct {
	APIKey             string        // credential used when a request carries none
	Model              string        // reported by /api/status
	DefaultCount       int           // items per request when count is omitted
	MaxCount           int           // upper bound for count
	SyncTimeout        time.Duration // how long /api/generate waits before answering with the run id
	OutputPath         string        // record store used by persisted runs
	AppendPath         string        // preferred target of /api/append
	AppendFallbackPath string        // used when AppendPath does not exist
	TelegramEnabled    bool
}

type Server struct {
	runs   RunService
	writer ItemWriter
	items  ItemStore // nil when the database mirror is disabled
	opts   Options
	logger *zap.Logger
	router *chi.Mux
}

// NewServer creates the HTTP façade. items may be nil.
func NewServer(runs RunService, writer ItemWriter, items ItemStore, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		runs:   runs,
		writer: writer,
		items:  items,
		opts:   opts,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)

	r.Post("/api/generate", s.handleGenerate)
	r.Post("/api/append", s.handleAppend)

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleStartRun)
		r.Get("/{runID}", s.handleGetRun)
	})

	r.Route("/api/items", func(r chi.Router) {
		r.Get("/", s.handleListItems)
		r.Get("/stats", s.handleItemStats)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
