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

// Package gormstore holds the ledger queries shared by the gorm-backed
// metadata plugins. The plugins differ only in how they connect and whether
// the dialect supports row-level locks.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db        *gorm.DB
	logger    *slog.Logger
	rowLocks  bool
	dialectID string
}

// New wraps an open gorm handle. rowLocks reports whether the dialect
// supports SELECT ... FOR UPDATE.
func New(db *gorm.DB, logger *slog.Logger, rowLocks bool) *Store {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Store{
		db:        db,
		logger:    logger,
		rowLocks:  rowLocks,
		dialectID: db.Name(),
	}
}

// DB returns the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Dialect returns the gorm dialector name
func (s *Store) Dialect() string {
	return s.dialectID
}

// SupportsRowLocking reports whether ownership reads can take row locks
func (s *Store) SupportsRowLocking() bool {
	return s.rowLocks
}

// Transaction begins a new gorm transaction bound to ctx. The returned
// handle carries any begin error in its Error field.
func (s *Store) Transaction(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Begin()
}

// Migrate creates or updates the table schemas
func (s *Store) Migrate() error {
	for _, model := range models.MigrateModels {
		s.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := s.db.AutoMigrate(model); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) conn(txn *gorm.DB) *gorm.DB {
	if txn != nil {
		return txn
	}
	return s.db
}

func applyListOptions(q *gorm.DB, column string, opts types.ListOptions) *gorm.DB {
	q = q.Order(clause.OrderByColumn{
		Column: clause.Column{Name: column},
		Desc:   !opts.Ascending,
	})
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q
}

// isDuplicateKey recognizes unique index violations. TranslateError covers
// the postgres and mysql drivers; the message checks cover sqlite.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "duplicate entry")
}
