// Package server provides the HTTP API for Kiroku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/config"
	"github.com/hyperjump/kiroku/internal/graph"
	"github.com/hyperjump/kiroku/internal/keyword"
	"github.com/hyperjump/kiroku/internal/provider"
	"github.com/hyperjump/kiroku/internal/storage"
	"github.com/hyperjump/kiroku/internal/watcher"
)

// Enqueuer schedules background embedding for an entry.
type Enqueuer interface {
	Enqueue(entryID string)
}

// Server is the HTTP server for the Kiroku API.
type Server struct {
	storage  storage.Storage
	provider provider.Client
	builder  *graph.Builder
	index    keyword.Index
	embedder Enqueuer
	config   *config.Config
	logger   *zap.Logger
	validate *validator.Validate
	server   *http.Server

	// Watch surface; nil when watching is disabled.
	watch      *watcher.Watcher
	configPath string
	configMu   sync.Mutex
}

// NewServer creates a server with the given dependencies. index and embedder
// may be nil; the related endpoints degrade gracefully.
func NewServer(
	store storage.Storage,
	client provider.Client,
	builder *graph.Builder,
	index keyword.Index,
	embedder Enqueuer,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		storage:  store,
		provider: client,
		builder:  builder,
		index:    index,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
		validate: validator.New(),
	}
}

// EnableWatch attaches the directory watcher surface. configPath, when
// non-empty, is where watch-directory changes are persisted.
func (s *Server) EnableWatch(w *watcher.Watcher, configPath string) {
	s.watch = w
	s.configPath = configPath
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/entries", s.handleCreateEntry)
		r.Get("/entries", s.handleListEntries)
		r.Get("/entries/search", s.handleSearchEntries)
		r.Get("/entries/{id}", s.handleGetEntry)
		r.Delete("/entries/{id}", s.handleDeleteEntry)

		r.Get("/graph/health", s.handleGraphHealth)
		r.Get("/graph/data", s.handleGraphData)
		r.Post("/graph/process", s.handleGraphProcess)
		r.Get("/graph/stats", s.handleGraphStats)
		r.Get("/graph/live", s.handleGraphLive)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.config.Server.AllowedOrigins) > 0 {
		return s.config.Server.AllowedOrigins
	}
	return []string{"*"}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
