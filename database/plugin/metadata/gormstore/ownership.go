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
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ownershipConflict skips the insert when the (user, pool) pair exists
var ownershipConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "user_id"}, {Name: "pool_id"}},
	DoNothing: true,
}

// ownershipQuery selects the (user, pool) row, locking it when forUpdate is
// set and the dialect supports row locks
func (s *Store) ownershipQuery(
	conn *gorm.DB,
	userID string,
	poolID string,
	forUpdate bool,
) *gorm.DB {
	if forUpdate && s.rowLocks {
		conn = conn.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return conn.Where("user_id = ? AND pool_id = ?", userID, poolID)
}

// GetOwnership returns the ownership row for a (user, pool) pair, or nil if
// none exists. With forUpdate set the row is locked until the transaction
// ends on dialects that support row locks.
func (s *Store) GetOwnership(
	userID string,
	poolID string,
	forUpdate bool,
	txn *gorm.DB,
) (*models.Ownership, error) {
	ret := &models.Ownership{}
	result := s.ownershipQuery(s.conn(txn), userID, poolID, forUpdate).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// CreateOwnership inserts a new ownership row. It returns false without
// error if a row for the (user, pool) pair already exists.
func (s *Store) CreateOwnership(
	ownership *models.Ownership,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Clauses(ownershipConflict).
		Create(ownership)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetOwnershipAmount writes a new token amount for an ownership row
func (s *Store) SetOwnershipAmount(
	ownershipID string,
	amount int64,
	txn *gorm.DB,
) error {
	result := s.conn(txn).
		Model(&models.Ownership{}).
		Where("ownership_id = ?", ownershipID).
		Update("token_amount", amount)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetUserOwnership lists a user's holdings joined with herd display fields,
// most recently acquired first
func (s *Store) GetUserOwnership(
	userID string,
	txn *gorm.DB,
) ([]models.UserOwnershipView, error) {
	var ret []models.UserOwnershipView
	result := s.conn(txn).
		Table("ownerships").
		Select(
			"ownerships.ownership_id, ownerships.user_id, ownerships.pool_id, " +
				"ownerships.token_amount, ownerships.acquired_at, " +
				"herds.herd_id, herds.herd_name, herds.purchase_status",
		).
		Joins("LEFT JOIN token_pools ON token_pools.pool_id = ownerships.pool_id").
		Joins("LEFT JOIN herds ON herds.herd_id = token_pools.herd_id").
		Where("ownerships.user_id = ?", userID).
		Order("ownerships.acquired_at DESC").
		Scan(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetPoolOwnership lists the holders of a pool joined with their display
// fields, largest holding first
func (s *Store) GetPoolOwnership(
	poolID string,
	txn *gorm.DB,
) ([]models.PoolOwnershipView, error) {
	var ret []models.PoolOwnershipView
	result := s.conn(txn).
		Table("ownerships").
		Select(
			"ownerships.ownership_id, ownerships.user_id, ownerships.pool_id, " +
				"ownerships.token_amount, ownerships.acquired_at, " +
				"users.email, users.wallet_address",
		).
		Joins("LEFT JOIN users ON users.user_id = ownerships.user_id").
		Where("ownerships.pool_id = ?", poolID).
		Order("ownerships.token_amount DESC").
		Order("ownerships.acquired_at DESC").
		Scan(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
