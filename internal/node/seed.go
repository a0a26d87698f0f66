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

package node

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SeedFile is the directory data loaded by the seed command. Users and
// herds normally belong to the identity and directory services
type SeedFile struct {
	Users []SeedUser `yaml:"users" validate:"dive"`
	Herds []SeedHerd `yaml:"herds" validate:"dive"`
	Pools []SeedPool `yaml:"pools" validate:"dive"`
}

type SeedUser struct {
	UserID        string `yaml:"userId"        validate:"required,uuid"`
	Email         string `yaml:"email"         validate:"omitempty,email"`
	WalletAddress string `yaml:"walletAddress"`
	Role          string `yaml:"role"`
}

type SeedHerd struct {
	HerdID         string `yaml:"herdId"         validate:"required,uuid"`
	RancherID      string `yaml:"rancherId"      validate:"omitempty,uuid"`
	HerdName       string `yaml:"herdName"`
	PurchaseStatus string `yaml:"purchaseStatus" validate:"omitempty,oneof=available pending sold"`
	ListingPrice   string `yaml:"listingPrice"`
	HeadCount      int    `yaml:"headCount"      validate:"gte=20"`
	VerifiedFlag   bool   `yaml:"verifiedFlag"`
}

type SeedPool struct {
	PoolID          string `yaml:"poolId"          validate:"required,uuid"`
	HerdID          string `yaml:"herdId"          validate:"omitempty,uuid"`
	ContractAddress string `yaml:"contractAddress"`
	TotalSupply     int64  `yaml:"totalSupply"     validate:"gte=0"`
}

// SeedResult counts the rows written by Seed
type SeedResult struct {
	Users int
	Herds int
	Pools int
}

// LoadSeedFile reads and validates a seed file
func LoadSeedFile(path string) (*SeedFile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seed file: %w", err)
	}
	var ret SeedFile
	if err := yaml.Unmarshal(buf, &ret); err != nil {
		return nil, fmt.Errorf("error parsing seed file: %w", err)
	}
	if err := validator.New().Struct(&ret); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	return &ret, nil
}

// Seed upserts the users, herds and pools of f in a single transaction
func Seed(ctx context.Context, db *database.Database, f *SeedFile) (SeedResult, error) {
	var ret SeedResult
	herds := make([]*models.Herd, 0, len(f.Herds))
	now := time.Now().UTC()
	for _, h := range f.Herds {
		price := decimal.Zero
		if h.ListingPrice != "" {
			var err error
			price, err = decimal.NewFromString(h.ListingPrice)
			if err != nil {
				return ret, fmt.Errorf("herd %s: invalid listingPrice: %w", h.HerdID, err)
			}
			if price.IsNegative() {
				return ret, fmt.Errorf("herd %s: listingPrice must not be negative", h.HerdID)
			}
		}
		status := h.PurchaseStatus
		if status == "" {
			status = models.PurchaseStatusAvailable
		}
		herds = append(herds, &models.Herd{
			HerdID:         strings.ToLower(h.HerdID),
			RancherID:      strings.ToLower(h.RancherID),
			HerdName:       h.HerdName,
			PurchaseStatus: status,
			ListingPrice:   price,
			HeadCount:      h.HeadCount,
			VerifiedFlag:   h.VerifiedFlag,
			CreatedAt:      now,
			LastUpdated:    now,
		})
	}
	txn := db.Transaction(ctx, true)
	err := txn.Do(func(txn *database.Txn) error {
		for _, u := range f.Users {
			err := db.SetUser(&models.User{
				UserID:        strings.ToLower(u.UserID),
				Email:         u.Email,
				WalletAddress: u.WalletAddress,
				Role:          u.Role,
				CreatedAt:     now,
			}, txn)
			if err != nil {
				return fmt.Errorf("user %s: %w", u.UserID, err)
			}
			ret.Users++
		}
		for _, h := range herds {
			if err := db.SetHerd(h, txn); err != nil {
				return fmt.Errorf("herd %s: %w", h.HerdID, err)
			}
			ret.Herds++
		}
		for _, p := range f.Pools {
			pool := &models.TokenPool{
				PoolID:          strings.ToLower(p.PoolID),
				ContractAddress: p.ContractAddress,
				TotalSupply:     p.TotalSupply,
				CreatedAt:       now,
			}
			if p.HerdID != "" {
				herdID := strings.ToLower(p.HerdID)
				pool.HerdID = &herdID
			}
			if err := db.SetPool(pool, txn); err != nil {
				return fmt.Errorf("pool %s: %w", p.PoolID, err)
			}
			ret.Pools++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return ret, nil
}
