// Package server provides the HTTP API for the wide-table service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sapdo/widetable/internal/config"
	"github.com/sapdo/widetable/internal/funcall"
	"github.com/sapdo/widetable/internal/widetable"
)

// Server is the HTTP server for the dataset API.
type Server struct {
	processor *widetable.Processor
	executor  *funcall.Executor
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(p *widetable.Processor, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		processor: p,
		executor:  funcall.NewExecutor(p),
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/datasets", s.handleIngest)
		r.Get("/datasets", s.handleListDatasets)
		r.Get("/datasets/{id}", s.handleGetDataset)
		r.Delete("/datasets/{id}", s.handleDeleteDataset)
		r.Get("/datasets/{id}/columns", s.handleGetColumns)
		r.Put("/datasets/{id}/columns/{column}", s.handleUpdateColumn)
		r.Get("/datasets/{id}/groups", s.handleGetColumnGroups)
		r.Get("/datasets/{id}/sample", s.handleGetSample)
		r.Post("/datasets/{id}/query", s.handleQuery)
		r.Get("/groups/{groupID}", s.handleGetColumnGroup)
		r.Post("/recommendations", s.handleRecommendations)
		r.Get("/functions", s.handleListFunctions)
		r.Post("/functions/{name}", s.handleCallFunction)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
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
