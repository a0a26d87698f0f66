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

// Package testutil provides shared fixtures and synchronization helpers for
// herdledger tests
package testutil

import (
	"testing"
	"time"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Fixture identifiers. UserID and OtherUserID are investors, PoolID
// tokenizes HerdID, UnpooledHerdID has no pool and UnknownID matches nothing
const (
	UserID         = "0b8f7a2e-5d41-4c3a-9e2b-1f6d8c7a3b21"
	OtherUserID    = "5e6f7a8b-9c0d-4e1f-a2b3-c4d5e6f7a8b9"
	HerdID         = "7c1e2d3f-4a5b-4c6d-8e7f-9a0b1c2d3e4f"
	PoolID         = "3a4b5c6d-7e8f-4a0b-9c2d-3e4f5a6b7c8d"
	UnpooledHerdID = "1f2e3d4c-5b6a-4978-8a6b-5c4d3e2f1a0b"
	UnknownID      = "a0000000-0000-4000-8000-000000000000"
)

// NewDatabase opens an in-memory database that is closed when the test ends
func NewDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// SeedDirectory writes the fixture users, herd and pool
func SeedDirectory(t *testing.T, db *database.Database) {
	t.Helper()
	require.NoError(t, db.SetUser(&models.User{
		UserID:        UserID,
		Email:         "investor@example.com",
		WalletAddress: "0xabc",
		Role:          "investor",
	}, nil))
	require.NoError(t, db.SetUser(&models.User{
		UserID: OtherUserID,
		Email:  "other@example.com",
		Role:   "investor",
	}, nil))
	require.NoError(t, db.SetHerd(&models.Herd{
		CreatedAt:      time.Now().UTC(),
		HerdID:         HerdID,
		HerdName:       "North Pasture",
		HeadCount:      42,
		ListingPrice:   decimal.RequireFromString("125000.50"),
		PurchaseStatus: models.PurchaseStatusAvailable,
	}, nil))
	herdID := HerdID
	require.NoError(t, db.SetPool(&models.TokenPool{
		PoolID:      PoolID,
		HerdID:      &herdID,
		TotalSupply: 1000,
	}, nil))
}

// SeedUnpooledHerd writes a herd listed after the fixture herd that has not
// been tokenized
func SeedUnpooledHerd(t *testing.T, db *database.Database) {
	t.Helper()
	require.NoError(t, db.SetHerd(&models.Herd{
		CreatedAt:      time.Now().Add(time.Hour).UTC(),
		HerdID:         UnpooledHerdID,
		HerdName:       "South Ridge",
		HeadCount:      25,
		ListingPrice:   decimal.RequireFromString("64000"),
		PurchaseStatus: models.PurchaseStatusAvailable,
	}, nil))
}

// RequireReceive waits for a value on the given channel or fails the test
// if the timeout expires
func RequireReceive[T any](
	t *testing.T,
	ch <-chan T,
	timeout time.Duration,
	msg string,
) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for channel receive: %s", msg)
		var zero T
		return zero
	}
}

// RequireNoReceive verifies that nothing arrives on the given channel
// within the specified duration
func RequireNoReceive[T any](
	t *testing.T,
	ch <-chan T,
	duration time.Duration,
	msg string,
) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf(
			"unexpected value received on channel: %v: %s",
			v,
			msg,
		)
	case <-time.After(duration):
	}
}
