// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

// Package httpapi exposes the authentication service over an HTTP JSON API.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/doorward/doorward/internal/auth"
	"github.com/doorward/doorward/internal/observability"
)

// CookieOptions control how the session cookie is issued.
type CookieOptions struct {
	Name   string
	Secure bool
}

// Options configure the API server.
type Options struct {
	Addr        string
	Service     *auth.Service
	Cookie      CookieOptions
	CORSOrigins []string
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	Version     string
}

// Server is the public HTTP API server.
type Server struct {
	addr       string
	engine     *gin.Engine
	listener   net.Listener
	httpServer *http.Server
	svc        *auth.Service
	cookie     CookieOptions
	metrics    *observability.Metrics
	logger     *slog.Logger
	version    string
	running    atomic.Bool
}

// NewServer builds the API server and its routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if opts.Cookie.Name == "" {
		return nil, oops.Errorf("cookie name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:    opts.Addr,
		svc:     opts.Service,
		cookie:  opts.Cookie,
		metrics: opts.Metrics,
		logger:  logger,
		version: opts.Version,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if s.metrics != nil {
		engine.Use(s.requestMetrics())
	}

	if len(opts.CORSOrigins) > 0 {
		corsMW, err := corsMiddleware(opts.CORSOrigins)
		if err != nil {
			return nil, err
		}
		engine.Use(corsMW)
	}

	engine.Use(s.sessionBinder())
	engine.NoRoute(s.handleNotFound)

	engine.GET("/health", s.handleHealth)
	authRoutes := engine.Group("/auth")
	{
		authRoutes.POST("/signup", s.handleSignup)
		authRoutes.POST("/login", s.handleLogin)
		authRoutes.POST("/logout", s.handleLogout)
		authRoutes.GET("/me", s.handleWhoAmI)
	}

	s.engine = engine
	return s, nil
}

// corsMiddleware builds a CORS policy whose allowed origins are glob
// patterns (e.g. "https://*.example.com").
func corsMiddleware(origins []string) (gin.HandlerFunc, error) {
	globs := make([]glob.Glob, 0, len(origins))
	for _, pattern := range origins {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.With("pattern", pattern).Wrap(err)
		}
		globs = append(globs, g)
	}

	cfg := cors.DefaultConfig()
	cfg.AllowCredentials = true
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	cfg.AllowOriginFunc = func(origin string) bool {
		for _, g := range globs {
			if g.Match(origin) {
				return true
			}
		}
		return false
	}
	return cors.New(cfg), nil
}

// Handler returns the underlying HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving the API. It returns an error channel that receives
// any errors from the HTTP server after it starts; the channel is closed on
// graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
