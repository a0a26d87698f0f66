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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/herdledger/api"
	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/event"
	"github.com/blinklabs-io/herdledger/event/kafka"
	"github.com/blinklabs-io/herdledger/internal/config"
	"github.com/blinklabs-io/herdledger/ledger"
	"github.com/blinklabs-io/herdledger/ledger/lock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Node owns the running ledger service and everything it depends on
type Node struct {
	config        *config.Config
	logger        *slog.Logger
	promRegistry  prometheus.Registerer
	db            *database.Database
	eventBus      *event.EventBus
	locker        lock.Locker
	publisher     *kafka.Publisher
	ledger        *ledger.Ledger
	api           *api.Server
	shutdownFuncs []func(context.Context) error
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) *Node {
	return &Node{
		config:       cfg,
		logger:       logger.With("component", "node"),
		promRegistry: promRegistry,
	}
}

// OpenDatabase opens the configured metadata and blob stores. Schema
// migrations run as part of opening the metadata store
func OpenDatabase(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*database.Database, error) {
	db, err := database.New(&database.Config{
		DataDir:        cfg.DatabasePath,
		Logger:         logger,
		PromRegistry:   promRegistry,
		BlobPlugin:     cfg.BlobPlugin,
		MetadataPlugin: cfg.MetadataPlugin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewLocker returns the configured account locker, or nil to let the
// ledger pick one for the metadata dialect
func NewLocker(cfg *config.Config, logger *slog.Logger) (lock.Locker, error) {
	if cfg.Lock.Strategy == "" {
		return nil, nil
	}
	redisCfg := lock.DefaultRedisConfig()
	if cfg.Lock.Redis.Addr != "" {
		redisCfg.Addr = cfg.Lock.Redis.Addr
	}
	redisCfg.Password = cfg.Lock.Redis.Password
	redisCfg.DB = cfg.Lock.Redis.DB
	if cfg.Lock.Redis.Expiry > 0 {
		redisCfg.Expiry = cfg.Lock.Redis.Expiry
	}
	if cfg.Lock.Redis.Tries > 0 {
		redisCfg.Tries = cfg.Lock.Redis.Tries
	}
	if cfg.Lock.Redis.RetryDelay > 0 {
		redisCfg.RetryDelay = cfg.Lock.Redis.RetryDelay
	}
	locker, err := lock.New(lock.Config{
		Logger:   logger,
		Strategy: cfg.Lock.Strategy,
		Redis:    redisCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account locker: %w", err)
	}
	return locker, nil
}

// Start opens storage, wires the event bus and its subscribers, builds the
// ledger and starts the API listener
func (n *Node) Start(ctx context.Context) error {
	if n.config.Tracing.Enabled {
		shutdown, err := setupTracing(ctx, n.config.Tracing)
		if err != nil {
			return err
		}
		n.shutdownFuncs = append(n.shutdownFuncs, shutdown)
	}
	db, err := OpenDatabase(n.config, n.logger, n.promRegistry)
	if err != nil {
		return err
	}
	n.db = db
	n.logger.Info(
		"database opened",
		"metadata", n.config.MetadataPlugin,
		"blob", n.config.BlobPlugin,
		"dialect", db.Metadata().Dialect(),
	)
	locker, err := NewLocker(n.config, n.logger)
	if err != nil {
		return err
	}
	n.locker = locker
	n.eventBus = event.NewEventBus(n.promRegistry, n.logger)
	if len(n.config.Kafka.Brokers) > 0 {
		publisher, err := kafka.New(kafka.Config{
			Logger:       n.logger,
			PromRegistry: n.promRegistry,
			Brokers:      n.config.Kafka.Brokers,
			Topic:        n.config.Kafka.Topic,
			WriteTimeout: n.config.Kafka.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		n.publisher = publisher
		n.eventBus.RegisterSubscriber(ledger.SettlementEventType, publisher)
		n.logger.Info(
			"publishing settlement events to kafka",
			"topic", n.config.Kafka.Topic,
		)
	}
	l, err := ledger.New(ledger.Config{
		Database:        db,
		Locker:          locker,
		EventBus:        n.eventBus,
		Logger:          n.logger,
		PromRegistry:    n.promRegistry,
		DefaultStatus:   n.config.Ledger.DefaultStatus,
		DisableReceipts: n.config.Ledger.DisableReceipts,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	n.ledger = l
	n.api = api.New(
		api.Config{
			PromRegistry:  n.promRegistry,
			ListenAddress: n.config.ApiListenAddress(),
			JWTSecret:     n.config.Auth.JWTSecret,
			JWTIssuer:     n.config.Auth.JWTIssuer,
		},
		l,
		n.logger,
	)
	if n.config.Auth.JWTSecret == "" {
		n.logger.Warn("bearer verification disabled, the API trusts its callers")
	}
	if err := n.api.Start(ctx); err != nil {
		return err
	}
	return nil
}

// Stop shuts components down in reverse dependency order. Queued settlement
// events are delivered before storage closes
func (n *Node) Stop(ctx context.Context) error {
	var err error
	if n.api != nil {
		err = errors.Join(err, n.api.Stop(ctx))
	}
	if n.eventBus != nil {
		n.eventBus.Stop()
	}
	if n.ledger != nil {
		n.ledger.Close()
	}
	if n.publisher != nil {
		n.publisher.Close()
	}
	if n.locker != nil {
		err = errors.Join(err, n.locker.Close())
	}
	if n.db != nil {
		err = errors.Join(err, n.db.Close())
	}
	for _, fn := range n.shutdownFuncs {
		err = errors.Join(err, fn(ctx))
	}
	n.shutdownFuncs = nil
	return err
}

// Ledger returns the running ledger, nil before Start
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", redacted(cfg)), "component", "node")
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	n := New(cfg, logger, prometheus.DefaultRegisterer)
	errChan := make(chan error, 1)
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		metricsServer = newMetricsServer(cfg)
		logger.Info(
			"serving prometheus metrics on "+metricsServer.Addr,
			"component", "node",
		)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("failed to start metrics listener: %w", err)
			}
		}()
	}

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		var err error
		if metricsServer != nil {
			if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Error("metrics server shutdown error", "error", shutdownErr)
			}
		}
		if stopErr := n.Stop(shutdownCtx); stopErr != nil {
			logger.Error("shutdown errors occurred", "error", stopErr)
			err = stopErr
		}
		return err
	}

	if err := n.Start(signalCtx); err != nil {
		_ = shutdown()
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		if err := shutdown(); err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errChan:
		logger.Error("node error", "error", err)
		signalCtxStop()
		_ = shutdown()
		return err
	}
}

func newMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// redacted returns a copy of cfg safe to log
func redacted(cfg *config.Config) config.Config {
	ret := *cfg
	if ret.Auth.JWTSecret != "" {
		ret.Auth.JWTSecret = "<redacted>"
	}
	if ret.Lock.Redis.Password != "" {
		ret.Lock.Redis.Password = "<redacted>"
	}
	return ret
}
