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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
	"github.com/blinklabs-io/herdledger/ledger/lock"
)

// AccountKey identifies the ownership row of a user in a pool
type AccountKey = lock.Key

// Store owns every write to the ownership table
type Store struct {
	db     *database.Database
	locker lock.Locker
	logger *slog.Logger
}

func NewStore(
	db *database.Database,
	locker lock.Locker,
	logger *slog.Logger,
) *Store {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Store{
		db:     db,
		locker: locker,
		logger: logger,
	}
}

// ApplySettlement adds delta to the account balance inside txn. The account
// stays locked until txn commits or rolls back. A result below zero fails
// with ErrInsufficientBalance and nothing is written
func (s *Store) ApplySettlement(
	ctx context.Context,
	txn *database.Txn,
	key AccountKey,
	delta int64,
) (*models.Ownership, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	if !txn.ReadWrite() {
		return nil, types.ErrTxnReadOnly
	}
	var ret *models.Ownership
	err := s.locker.WithAccountLock(ctx, txn, key, func() error {
		ownership, err := s.db.GetOwnership(key.UserID, key.PoolID, true, txn)
		if err != nil {
			return fmt.Errorf("read ownership: %w", err)
		}
		if ownership == nil {
			if delta < 0 {
				return insufficient(key, 0, delta)
			}
			created := &models.Ownership{
				UserID:      key.UserID,
				PoolID:      key.PoolID,
				TokenAmount: delta,
			}
			ok, err := s.db.CreateOwnership(created, txn)
			if err != nil {
				return fmt.Errorf("create ownership: %w", err)
			}
			if ok {
				ret = created
				return nil
			}
			// Another unit created the row first
			s.logger.Debug(
				"ownership creation race lost, re-reading",
				"user_id", key.UserID,
				"pool_id", key.PoolID,
			)
			ownership, err = s.db.GetOwnership(key.UserID, key.PoolID, true, txn)
			if err != nil {
				return fmt.Errorf("read ownership: %w", err)
			}
			if ownership == nil {
				return errors.New("ownership row missing after conflicting insert")
			}
		}
		updated, err := addBalance(ownership.TokenAmount, delta)
		if err != nil {
			return err
		}
		if updated < 0 {
			return insufficient(key, ownership.TokenAmount, delta)
		}
		if err := s.db.SetOwnershipAmount(ownership.OwnershipID, updated, txn); err != nil {
			return fmt.Errorf("update ownership: %w", err)
		}
		ownership.TokenAmount = updated
		ret = ownership
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func addBalance(balance, delta int64) (int64, error) {
	if delta > 0 && balance > math.MaxInt64-delta {
		return 0, invalid(CodeInvalidAmount, "amount", "amount overflows the account balance")
	}
	return balance + delta, nil
}

func insufficient(key AccountKey, balance, delta int64) error {
	return fmt.Errorf(
		"%w: user %s holds %d in pool %s, requested %d",
		ErrInsufficientBalance,
		key.UserID,
		balance,
		key.PoolID,
		-delta,
	)
}
