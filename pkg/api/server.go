// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Address string
	Logger  *slog.Logger
}

// Server provides the HTTP API for settingsd.
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	logger     *slog.Logger
	handlers   *Handlers
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, handlers *Handlers) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:   cfg,
		logger:   logger,
		handlers: handlers,
	}, nil
}

// Handler builds the full request handler, routing plus middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/settings", s.handlers.HandleSettings)
	mux.HandleFunc("/api/v1/settings/", s.handlers.HandleField)
	mux.HandleFunc("/api/v1/history", s.handlers.HandleHistory)
	mux.HandleFunc("/api/v1/status", s.handlers.HandleStatus)
	mux.HandleFunc("/api/v1/health", s.handlers.HandleHealth)

	return NewLoggingMiddleware(s.logger).Wrap(mux)
}

// Start starts the API server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "address", s.config.Address)

	// Start server in a way that respects context cancellation
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping API server")
	return s.httpServer.Shutdown(ctx)
}
