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

package database

import (
	"github.com/blinklabs-io/herdledger/database/models"
)

// GetUser returns the user or nil if it does not exist
func (d *Database) GetUser(userID string, txn *Txn) (*models.User, error) {
	return d.metadata.GetUser(userID, txn.Metadata())
}

func (d *Database) SetUser(user *models.User, txn *Txn) error {
	return d.metadata.SetUser(user, txn.Metadata())
}

// GetHerd returns the herd or nil if it does not exist
func (d *Database) GetHerd(herdID string, txn *Txn) (*models.Herd, error) {
	return d.metadata.GetHerd(herdID, txn.Metadata())
}

func (d *Database) SetHerd(herd *models.Herd, txn *Txn) error {
	return d.metadata.SetHerd(herd, txn.Metadata())
}

// UpdateHerd applies column updates and reports whether the herd exists
func (d *Database) UpdateHerd(
	herdID string,
	updates map[string]any,
	txn *Txn,
) (bool, error) {
	return d.metadata.UpdateHerd(herdID, updates, txn.Metadata())
}

func (d *Database) SetPool(pool *models.TokenPool, txn *Txn) error {
	return d.metadata.SetPool(pool, txn.Metadata())
}

// ResolvePoolID maps a pool or herd identifier to a pool identifier. An
// empty result means no pool matched
func (d *Database) ResolvePoolID(id string, txn *Txn) (string, error) {
	return d.metadata.ResolvePoolID(id, txn.Metadata())
}

func (d *Database) GetPoolView(id string, txn *Txn) (*models.PoolView, error) {
	return d.metadata.GetPoolView(id, txn.Metadata())
}

func (d *Database) GetPoolViews(txn *Txn) ([]models.PoolView, error) {
	return d.metadata.GetPoolViews(txn.Metadata())
}
