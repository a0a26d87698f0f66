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

const (
	PurchaseStatusAvailable = "available"
	PurchaseStatusPending   = "pending"
	PurchaseStatusSold      = "sold"
)

// MinHeadCount is the smallest herd that can back a token pool
const MinHeadCount = 20

type Herd struct {
	CreatedAt      time.Time       `                                   json:"createdAt"`
	LastUpdated    time.Time       `                                   json:"lastUpdated"`
	HerdID         string          `gorm:"primaryKey;size:36"          json:"herdId"`
	RancherID      string          `gorm:"index;size:36"               json:"rancherId"`
	HerdName       string          `gorm:"size:255"                    json:"herdName"`
	PurchaseStatus string          `gorm:"size:16;default:available"   json:"purchaseStatus"`
	ListingPrice   decimal.Decimal `gorm:"type:numeric(14,2)"          json:"listingPrice"`
	HeadCount      int             `                                   json:"headCount"`
	VerifiedFlag   bool            `                                   json:"verifiedFlag"`
}

func (Herd) TableName() string {
	return "herds"
}

// ValidPurchaseStatus reports whether status is a known herd purchase status
func ValidPurchaseStatus(status string) bool {
	switch status {
	case PurchaseStatusAvailable, PurchaseStatusPending, PurchaseStatusSold:
		return true
	}
	return false
}
