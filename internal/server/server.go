// Package server provides the HTTP API for the ring search service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/catalog"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/config"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/detect"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/keyword"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/search"
	"github.com/Ali-Hamza-007/Ring-Search-System/internal/storage"
)

// Server is the HTTP server for the ring search API.
type Server struct {
	engine    *search.Engine
	catalog   *catalog.Catalog
	store     storage.MetadataStore
	nameIndex keyword.NameIndex
	detector  detect.Detector
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. detector is used
// by the mask debug endpoints and is the same instance the engine gates with.
func NewServer(
	engine *search.Engine,
	cat *catalog.Catalog,
	store storage.MetadataStore,
	nameIndex keyword.NameIndex,
	detector detect.Detector,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:    engine,
		catalog:   cat,
		store:     store,
		nameIndex: nameIndex,
		detector:  detector,
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	// Mobile clients fetch images cross-origin, so allow everything.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Post("/search", s.handleSearch)
	r.Get("/get_mask/{image}", s.handleStoneMask)
	r.Get("/remove_stone/{image}", s.handleRemoveStone)
	r.Get("/api/v1/catalog/search", s.handleCatalogSearch)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	fileServer := http.FileServer(http.Dir(s.config.Storage.ImageDir))
	r.Handle("/static_images/*", http.StripPrefix("/static_images/", fileServer))

	return r
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
