// Package server wires the mounted services behind the shared middleware
// chain and owns the HTTP listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sort"
	"time"

	"golang.org/x/net/netutil"

	"github.com/vedesh-padal/tal-chat-app/internal/frameworks/service"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/config"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/deps"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

var ErrMissingSharedDeps = errors.New("shared deps not initialized: call deps.SetDeps() before server.New()")

// Server wraps the HTTP server and the services it mounts.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	services   map[string]service.Service

	// mountedServices is in mount order; Shutdown closes them in reverse.
	mountedServices []service.Service
}

// New builds the router for services. Nil entries are skipped. Shared deps
// must be set.
func New(cfg *config.Config, logger *slog.Logger, services map[string]service.Service) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	d := deps.GetDeps()
	if d == nil {
		return nil, ErrMissingSharedDeps
	}
	if d.RealIP == nil {
		return nil, errors.New("shared deps: RealIP is required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		services: services,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(l)
}

// Serve serves on l, capping concurrent connections when configured.
func (s *Server) Serve(l net.Listener) error {
	if s.cfg.Server.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.cfg.Server.MaxConnections)
	}
	s.logger.Info("starting server",
		"addr", l.Addr().String(),
		"public_origin", s.cfg.PublicOrigin,
		"max_connections", s.cfg.Server.MaxConnections,
	)
	return s.httpServer.Serve(l)
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// the mounted services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	httpErr := s.httpServer.Shutdown(ctx)

	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		if err := svc.Close(); err != nil {
			s.logger.Warn("service close error", "service", svc.Prefix(), "error", err)
			continue
		}
		s.logger.Debug("service closed", "service", svc.Prefix())
	}

	if errors.Is(httpErr, http.ErrServerClosed) {
		return nil
	}
	return httpErr
}

// mountOrder lists core services first, then any others by name.
func (s *Server) mountOrder() []string {
	names := make([]string, 0, len(s.services))
	for _, name := range service.CoreServices {
		if _, ok := s.services[name]; ok {
			names = append(names, name)
		}
	}
	var extra []string
	for name := range s.services {
		if !slices.Contains(service.CoreServices, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}
