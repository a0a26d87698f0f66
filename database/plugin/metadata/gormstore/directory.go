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

// GetUser returns a user, or nil if the user does not exist
func (s *Store) GetUser(userID string, txn *gorm.DB) (*models.User, error) {
	ret := &models.User{}
	result := s.conn(txn).Where("user_id = ?", userID).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetUser creates or replaces a user
func (s *Store) SetUser(user *models.User, txn *gorm.DB) error {
	result := s.conn(txn).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "wallet_address", "role"}),
	}).Create(user)
	return result.Error
}

// GetHerd returns a herd, or nil if the herd does not exist
func (s *Store) GetHerd(herdID string, txn *gorm.DB) (*models.Herd, error) {
	ret := &models.Herd{}
	result := s.conn(txn).Where("herd_id = ?", herdID).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetHerd creates or replaces a herd
func (s *Store) SetHerd(herd *models.Herd, txn *gorm.DB) error {
	result := s.conn(txn).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "herd_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"rancher_id",
			"herd_name",
			"head_count",
			"listing_price",
			"purchase_status",
			"verified_flag",
			"last_updated",
		}),
	}).Create(herd)
	return result.Error
}

// UpdateHerd applies column updates to a herd and reports whether the herd
// exists
func (s *Store) UpdateHerd(
	herdID string,
	updates map[string]any,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Model(&models.Herd{}).
		Where("herd_id = ?", herdID).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetPool creates a token pool. Pools are reference data and are never
// modified once created.
func (s *Store) SetPool(pool *models.TokenPool, txn *gorm.DB) error {
	result := s.conn(txn).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(pool)
	return result.Error
}

// ResolvePoolID maps a pool ID or herd ID to the canonical pool ID. An empty
// string is returned when neither matches. A pool ID match takes precedence
// over a herd ID match.
func (s *Store) ResolvePoolID(id string, txn *gorm.DB) (string, error) {
	var poolIDs []string
	result := s.conn(txn).
		Model(&models.TokenPool{}).
		Where("pool_id = ? OR herd_id = ?", id, id).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{
				SQL:                "CASE WHEN pool_id = ? THEN 0 ELSE 1 END",
				Vars:               []any{id},
				WithoutParentheses: true,
			},
		}).
		Limit(1).
		Pluck("pool_id", &poolIDs)
	if result.Error != nil {
		return "", result.Error
	}
	if len(poolIDs) == 0 {
		return "", nil
	}
	return poolIDs[0], nil
}

// poolViewQuery is driven by herds so a herd without a pool still shows up
func (s *Store) poolViewQuery(txn *gorm.DB) *gorm.DB {
	return s.conn(txn).
		Table("herds").
		Select(
			"herds.herd_id, herds.herd_name, herds.purchase_status, " +
				"herds.listing_price, herds.head_count, herds.verified_flag, " +
				"herds.created_at, token_pools.pool_id, " +
				"token_pools.total_supply, token_pools.contract_address",
		).
		Joins("LEFT JOIN token_pools ON token_pools.herd_id = herds.herd_id")
}

// GetPoolView returns a herd and its pool fields by pool ID or herd ID, or
// nil if neither matches. A pool ID match takes precedence.
func (s *Store) GetPoolView(id string, txn *gorm.DB) (*models.PoolView, error) {
	var ret []models.PoolView
	result := s.poolViewQuery(txn).
		Where("token_pools.pool_id = ? OR herds.herd_id = ?", id, id).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{
				SQL:                "CASE WHEN token_pools.pool_id = ? THEN 0 ELSE 1 END",
				Vars:               []any{id},
				WithoutParentheses: true,
			},
		}).
		Limit(1).
		Scan(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	if len(ret) == 0 {
		return nil, nil
	}
	return &ret[0], nil
}

// GetPoolViews lists all herds with their pool fields, newest herd first
func (s *Store) GetPoolViews(txn *gorm.DB) ([]models.PoolView, error) {
	var ret []models.PoolView
	result := s.poolViewQuery(txn).
		Order("herds.created_at DESC").
		Scan(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
