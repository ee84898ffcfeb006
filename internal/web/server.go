// Package web provides the HTTP JSON API for the import service.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fieldtrack/collarimport/internal/config"
	"github.com/fieldtrack/collarimport/internal/importer"
	"github.com/fieldtrack/collarimport/internal/web/middleware"
)

// Server is the HTTP server for the import API.
type Server struct {
	service *importer.Service
	codes   importer.CodeSource
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server over the import service.
func NewServer(service *importer.Service, codes importer.CodeSource, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		codes:   codes,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))

	timeout := 60 * time.Second
	if s.cfg != nil && s.cfg.Server.RequestTimeout > 0 {
		timeout = s.cfg.Server.RequestTimeout
	}
	s.router.Use(chimw.Timeout(timeout))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Template and reference data for the field client
		r.Get("/template", s.handleTemplate)
		r.Get("/codes/{domain}", s.handleCodes)

		// Import operations
		r.Post("/import/preview", s.handlePreview)
		r.Post("/import/confirm", s.handleConfirm)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	read, write, idle := 15*time.Second, 60*time.Second, 60*time.Second
	if s.cfg != nil {
		read = s.cfg.Server.ReadTimeout
		write = s.cfg.Server.WriteTimeout
		idle = s.cfg.Server.IdleTimeout
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
