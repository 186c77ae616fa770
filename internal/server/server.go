// Package server exposes the retrieval engine over a small JSON HTTP
// API: collections, documents, text ingestion and search.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/stevekb/steve/internal/config"
	"github.com/stevekb/steve/internal/index"
	"github.com/stevekb/steve/internal/search"
	"github.com/stevekb/steve/internal/store"
)

// Server wires the HTTP layer to the store, index manager and search
// engine. Retrieval settings are mutable at runtime behind a lock; the
// rest of the configuration is fixed at startup.
type Server struct {
	echo    *echo.Echo
	store   *store.Store
	manager *index.Manager
	engine  *search.Engine

	mu        sync.RWMutex
	retrieval config.RetrievalConfig
}

// New creates the server and registers all routes.
func New(s *store.Store, manager *index.Manager, engine *search.Engine, retrieval config.RetrievalConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		store:     s,
		manager:   manager,
		engine:    engine,
		retrieval: retrieval,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/api/health", s.health)
	e.GET("/api/config", s.getConfig)
	e.PUT("/api/config", s.updateConfig)

	e.GET("/api/collections", s.listCollections)
	e.POST("/api/collections", s.createCollection)
	e.DELETE("/api/collections/:id", s.deleteCollection)

	e.GET("/api/documents", s.listDocuments)
	e.GET("/api/documents/:id", s.getDocument)
	e.DELETE("/api/documents/:id", s.deleteDocument)

	e.POST("/api/ingest/text", s.ingestText)
	e.POST("/api/search", s.searchHandler)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	slog.Info("http server starting", slog.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// retrievalSettings returns a copy of the current runtime settings.
func (s *Server) retrievalSettings() config.RetrievalConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retrieval
}
