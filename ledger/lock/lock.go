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

// Package lock provides the per-account exclusion used around ownership
// read-modify-write cycles
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	StrategyRow    = "row"
	StrategyMemory = "memory"
	StrategyRedis  = "redis"
)

// ErrLockUnavailable is returned when an account lock cannot be acquired
var ErrLockUnavailable = errors.New("account lock unavailable")

// Key identifies a (user, pool) account
type Key struct {
	UserID string
	PoolID string
}

func (k Key) String() string {
	return k.UserID + ":" + k.PoolID
}

// Finisher is a unit of work that reports when it has committed or rolled
// back. *database.Txn implements it
type Finisher interface {
	OnFinish(func())
}

// Locker serializes work on a single account. The lock taken by
// WithAccountLock is held until txn finishes, or until fn returns when txn
// is nil. Work on different keys never contends
type Locker interface {
	WithAccountLock(
		ctx context.Context,
		txn Finisher,
		key Key,
		fn func() error,
	) error
	Name() string
	Close() error
}

// Config selects and configures a Locker
type Config struct {
	Logger   *slog.Logger
	Strategy string
	Redis    RedisConfig
}

// New returns the locker for cfg.Strategy
func New(cfg Config) (Locker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case StrategyRow:
		return NewRow(), nil
	case StrategyMemory, "":
		return NewMemory(), nil
	case StrategyRedis:
		return NewRedis(cfg.Redis, cfg.Logger)
	default:
		return nil, fmt.Errorf("unknown lock strategy: %s", cfg.Strategy)
	}
}

// holdUntilFinish runs fn and arranges for release to run when txn finishes
func holdUntilFinish(txn Finisher, release func(), fn func() error) error {
	if txn == nil {
		defer release()
		return fn()
	}
	txn.OnFinish(release)
	return fn()
}
