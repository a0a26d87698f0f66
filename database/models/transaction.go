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

// Transaction is an immutable ledger log entry. Rows are inserted once and
// never updated or deleted.
type Transaction struct {
	CreatedAt      time.Time `gorm:"index"                                                            json:"createdAt"`
	ExternalRef    *string   `gorm:"size:255"                                                         json:"externalRef"`
	IdempotencyKey *string   `gorm:"uniqueIndex:idx_transaction_idempotency,priority:2;size:128"      json:"idempotencyKey,omitempty"`
	TransactionID  string    `gorm:"primaryKey;size:36"                                               json:"transactionId"`
	UserID         string    `gorm:"index;uniqueIndex:idx_transaction_idempotency,priority:1;size:36" json:"userId"`
	PoolID         string    `gorm:"index;size:36"                                                    json:"poolId"`
	Type           string    `gorm:"size:16"                                                          json:"type"`
	Status         string    `gorm:"size:64"                                                          json:"status"`
	Amount         int64     `                                                                        json:"amount"`
	Settled        bool      `                                                                        json:"settled"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(_ *gorm.DB) error {
	if t.TransactionID == "" {
		t.TransactionID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}

// TransactionView is a transaction joined with the herd backing its pool
type TransactionView struct {
	Transaction
	HerdID   *string `json:"herdId"`
	HerdName *string `json:"herdName"`
}

// PoolTransactionView is a transaction joined with the submitting user's
// email
type PoolTransactionView struct {
	Transaction
	Email *string `json:"email"`
}
