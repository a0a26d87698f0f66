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

package gormstore

import (
	"errors"

	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
	"gorm.io/gorm"
)

// CreateTransaction appends a transaction to the log. A clash on the
// (user, idempotency key) index is reported as types.ErrDuplicateKey.
func (s *Store) CreateTransaction(
	txRecord *models.Transaction,
	txn *gorm.DB,
) error {
	result := s.conn(txn).Create(txRecord)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return errors.Join(types.ErrDuplicateKey, result.Error)
		}
		return result.Error
	}
	return nil
}

// GetTransaction returns a transaction by ID, or nil if it does not exist
func (s *Store) GetTransaction(
	transactionID string,
	txn *gorm.DB,
) (*models.Transaction, error) {
	ret := &models.Transaction{}
	result := s.conn(txn).
		Where("transaction_id = ?", transactionID).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetTransactionByIdempotencyKey returns the transaction a user submitted
// with the given idempotency key, or nil if there is none
func (s *Store) GetTransactionByIdempotencyKey(
	userID string,
	key string,
	txn *gorm.DB,
) (*models.Transaction, error) {
	ret := &models.Transaction{}
	result := s.conn(txn).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetUserTransactions lists a user's transactions joined with the herd
// backing each pool
func (s *Store) GetUserTransactions(
	userID string,
	opts types.ListOptions,
	txn *gorm.DB,
) ([]models.TransactionView, error) {
	var ret []models.TransactionView
	q := s.conn(txn).
		Table("transactions").
		Select("transactions.*, herds.herd_id, herds.herd_name").
		Joins("LEFT JOIN token_pools ON token_pools.pool_id = transactions.pool_id").
		Joins("LEFT JOIN herds ON herds.herd_id = token_pools.herd_id").
		Where("transactions.user_id = ?", userID)
	result := applyListOptions(q, "transactions.created_at", opts).Scan(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetPoolTransactions lists the transactions recorded against a pool joined
// with each submitting user's email
func (s *Store) GetPoolTransactions(
	poolID string,
	opts types.ListOptions,
	txn *gorm.DB,
) ([]models.PoolTransactionView, error) {
	var ret []models.PoolTransactionView
	q := s.conn(txn).
		Table("transactions").
		Select("transactions.*, users.email").
		Joins("LEFT JOIN users ON users.user_id = transactions.user_id").
		Where("transactions.pool_id = ?", poolID)
	result := applyListOptions(q, "transactions.created_at", opts).Scan(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
