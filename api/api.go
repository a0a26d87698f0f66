// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultListenAddress = ":8080"

// Config controls the HTTP surface
type Config struct {
	PromRegistry  prometheus.Registerer
	ListenAddress string
	// JWTSecret enables HS256 bearer verification when set
	JWTSecret string
	JWTIssuer string
}

// Server is the ledger REST API server
type Server struct {
	config     Config
	logger     *slog.Logger
	ledger     Ledger
	auth       *Verifier
	metrics    *apiMetrics
	handler    http.Handler
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a new API server instance
func New(
	cfg Config,
	ledger Ledger,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	s := &Server{
		config:  cfg,
		logger:  logger,
		ledger:  ledger,
		metrics: newAPIMetrics(cfg.PromRegistry),
	}
	if cfg.JWTSecret != "" {
		s.auth = NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the server's routed handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/transactions", s.handleSettle)
	api.HandleFunc(
		"GET /api/transactions/{transactionId}",
		s.handleTransaction,
	)
	api.HandleFunc(
		"GET /api/transactions/{transactionId}/receipt",
		s.handleReceipt,
	)
	api.HandleFunc(
		"GET /api/users/{userId}/ownership",
		s.handleUserOwnership,
	)
	api.HandleFunc(
		"GET /api/users/{userId}/transactions",
		s.handleUserTransactions,
	)
	api.HandleFunc("GET /api/pools", s.handlePools)
	api.HandleFunc("GET /api/pools/{poolId}", s.handlePool)
	api.HandleFunc(
		"GET /api/pools/{poolId}/ownership",
		s.handlePoolOwnership,
	)
	api.HandleFunc(
		"GET /api/pools/{poolId}/transactions",
		s.handlePoolTransactions,
	)
	api.HandleFunc("PATCH /api/herds/{herdId}", s.handlePatchHerd)

	var apiHandler http.Handler = api
	if s.auth != nil {
		apiHandler = s.auth.Middleware(apiHandler)
	}
	mux.Handle("/api/", apiHandler)
	return s.metrics.instrument(mux, api)
}

// Start starts the HTTP server in a background goroutine
func (s *Server) Start(
	ctx context.Context,
) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.mu.Unlock()

	if err := s.startServer(server); err != nil {
		s.mu.Lock()
		s.httpServer = nil
		s.mu.Unlock()
		return err
	}

	s.logger.Info(
		"API listener started on " + s.config.ListenAddress,
	)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		srv := s.httpServer
		s.httpServer = nil
		s.mu.Unlock()

		if srv != nil {
			s.logger.Debug(
				"context cancelled, shutting down API server",
			)
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Error(
					"failed to shutdown API server on context cancellation",
					"error", err,
				)
			}
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(
	ctx context.Context,
) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if srv != nil {
		s.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown API server: %w", err)
		}
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// reported to the caller, then serves in a background goroutine
func (s *Server) startServer(
	server *http.Server,
) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	return nil
}
