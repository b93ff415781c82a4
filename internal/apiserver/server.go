package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/cache"
	"github.com/granduke/atlas/internal/resolver"
)

// Server is the Atlas REST API server. It exposes the resolution
// endpoints plus cache maintenance, and delegates all semantics to the
// resolver and cache layers.
type Server struct {
	router   *mux.Router
	resolver *resolver.Resolver
	cache    *cache.Store
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a fully-wired Server ready to Start().
func NewServer(addr string, r *resolver.Resolver, c *cache.Store, logger *zap.Logger) *Server {
	srv := &Server{
		router:   mux.NewRouter(),
		resolver: r,
		cache:    c,
		logger:   logger,
	}
	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	srv.registerRoutes()
	return srv
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening and serving HTTP requests. It blocks until the
// server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	s.logger.Info("API server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
