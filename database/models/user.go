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

import "time"

// User is the ledger's view of an identity. Users are created by the
// identity service and only read by the ledger.
type User struct {
	CreatedAt     time.Time `                           json:"createdAt"`
	UserID        string    `gorm:"primaryKey;size:36"  json:"userId"`
	Email         string    `gorm:"index;size:255"      json:"email"`
	WalletAddress string    `gorm:"size:128"            json:"walletAddress"`
	Role          string    `gorm:"size:32"             json:"role"`
}

func (User) TableName() string {
	return "users"
}
