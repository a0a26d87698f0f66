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

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ownership is the balance of a user in a token pool. There is at most one
// row per (user, pool) and TokenAmount never goes below zero.
type Ownership struct {
	AcquiredAt  time.Time `                                                  json:"acquiredAt"`
	OwnershipID string    `gorm:"primaryKey;size:36"                         json:"ownershipId"`
	UserID      string    `gorm:"uniqueIndex:idx_ownership_account;size:36"  json:"userId"`
	PoolID      string    `gorm:"uniqueIndex:idx_ownership_account;size:36"  json:"poolId"`
	TokenAmount int64     `gorm:"not null;default:0;check:token_amount >= 0" json:"tokenAmount"`
}

func (Ownership) TableName() string {
	return "ownerships"
}

func (o *Ownership) BeforeCreate(_ *gorm.DB) error {
	if o.OwnershipID == "" {
		o.OwnershipID = uuid.NewString()
	}
	if o.AcquiredAt.IsZero() {
		o.AcquiredAt = time.Now().UTC()
	}
	return nil
}

// UserOwnershipView is an ownership row joined with pool and herd display
// fields, as listed for a single user
type UserOwnershipView struct {
	AcquiredAt     time.Time `json:"acquiredAt"`
	HerdID         *string   `json:"herdId"`
	HerdName       *string   `json:"herdName"`
	PurchaseStatus *string   `json:"purchaseStatus"`
	OwnershipID    string    `json:"ownershipId"`
	UserID         string    `json:"userId"`
	PoolID         string    `json:"poolId"`
	TokenAmount    int64     `json:"tokenAmount"`
}

// PoolOwnershipView is an ownership row joined with the holder's display
// fields, as listed for a single pool
type PoolOwnershipView struct {
	AcquiredAt    time.Time `json:"acquiredAt"`
	OwnershipID   string    `json:"ownershipId"`
	UserID        string    `json:"userId"`
	PoolID        string    `json:"poolId"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"walletAddress"`
	TokenAmount   int64     `json:"tokenAmount"`
}
