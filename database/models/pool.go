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

	"github.com/shopspring/decimal"
)

// TokenPool is the tokenized representation of a herd. A pool can be looked
// up by its own ID or by the ID of the herd backing it.
type TokenPool struct {
	CreatedAt       time.Time
	HerdID          *string `gorm:"uniqueIndex;size:36"`
	Herd            *Herd   `gorm:"foreignKey:HerdID;references:HerdID"`
	PoolID          string  `gorm:"primaryKey;size:36"`
	ContractAddress string  `gorm:"size:128"`
	TotalSupply     int64
}

func (TokenPool) TableName() string {
	return "token_pools"
}

// PoolView is a herd joined with the token pool backing it, if any. The
// pool fields are nil for a herd that has not been tokenized yet.
type PoolView struct {
	CreatedAt       time.Time           `json:"createdAt"`
	HerdID          *string             `json:"herdId"`
	HerdName        *string             `json:"herdName"`
	PurchaseStatus  *string             `json:"purchaseStatus"`
	HeadCount       *int                `json:"headCount"`
	VerifiedFlag    *bool               `json:"verifiedFlag"`
	ListingPrice    decimal.NullDecimal `json:"listingPrice"`
	PoolID          *string             `json:"poolId"`
	ContractAddress *string             `json:"contractAddress"`
	TotalSupply     *int64              `json:"totalSupply"`
}
