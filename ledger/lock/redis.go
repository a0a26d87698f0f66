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

package lock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

const RedisKeyPrefix = "herdledger:ownership:"

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Expiry      time.Duration
	Tries       int
	RetryDelay  time.Duration
	DriftFactor float64
}

// DefaultRedisConfig returns the lock timings used when none are configured
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		Expiry:      10 * time.Second,
		Tries:       3,
		RetryDelay:  500 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

func (c RedisConfig) withDefaults() RedisConfig {
	def := DefaultRedisConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Expiry <= 0 {
		c.Expiry = def.Expiry
	}
	if c.Tries <= 0 {
		c.Tries = def.Tries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.DriftFactor <= 0 {
		c.DriftFactor = def.DriftFactor
	}
	return c
}

// Redis is a distributed account lock for deployments running several
// ledger processes against one database
type Redis struct {
	client  goredislib.UniversalClient
	rs      *redsync.Redsync
	logger  *slog.Logger
	cfg     RedisConfig
	ownsCli bool
}

// NewRedis connects to the configured redis server
func NewRedis(cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	cfg = cfg.withDefaults()
	client := goredislib.NewClient(&goredislib.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis lock: ping %s: %w", cfg.Addr, err)
	}
	r := NewRedisWithClient(client, cfg, logger)
	r.ownsCli = true
	return r, nil
}

// NewRedisWithClient builds the locker on an existing client. The client is
// not closed by Close
func NewRedisWithClient(
	client goredislib.UniversalClient,
	cfg RedisConfig,
	logger *slog.Logger,
) *Redis {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Redis{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		logger: logger.With("component", "lock"),
		cfg:    cfg.withDefaults(),
	}
}

func (r *Redis) Name() string {
	return StrategyRedis
}

func (r *Redis) Close() error {
	if r.ownsCli {
		return r.client.Close()
	}
	return nil
}

func (r *Redis) WithAccountLock(
	ctx context.Context,
	txn Finisher,
	key Key,
	fn func() error,
) error {
	lockKey := RedisKeyPrefix + key.String()
	mutex := r.rs.NewMutex(
		lockKey,
		redsync.WithExpiry(r.cfg.Expiry),
		redsync.WithTries(r.cfg.Tries),
		redsync.WithRetryDelay(r.cfg.RetryDelay),
		redsync.WithDriftFactor(r.cfg.DriftFactor),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLockUnavailable, lockKey, err)
	}
	r.logger.Debug("account lock acquired", "key", lockKey)
	var once sync.Once
	release := func() {
		once.Do(func() {
			// The request context may already be cancelled at this point
			unlockCtx, cancel := context.WithTimeout(
				context.Background(),
				r.cfg.Expiry,
			)
			defer cancel()
			if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
				r.logger.Warn(
					"failed to release account lock",
					"key", lockKey,
					"ok", ok,
					"error", err,
				)
			}
		})
	}
	return holdUntilFinish(txn, release, fn)
}
