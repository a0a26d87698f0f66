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
package ledger_test

import (
	"context"
	"testing"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/plugin/metadata"
	"github.com/blinklabs-io/herdledger/database/plugin/metadata/sqlite"
	"github.com/blinklabs-io/herdledger/internal/test/testutil"
	"github.com/blinklabs-io/herdledger/ledger"
	"github.com/blinklabs-io/herdledger/ledger/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// racingMetadata lets another writer create the account row just before
// the ledger's own insert, so the insert reports a conflict
type racingMetadata struct {
	metadata.MetadataStore
	winner  int64
	inserts int
}

func (m *racingMetadata) CreateOwnership(
	ownership *models.Ownership,
	txn *gorm.DB,
) (bool, error) {
	m.inserts++
	if m.inserts > 1 {
		return m.MetadataStore.CreateOwnership(ownership, txn)
	}
	ok, err := m.MetadataStore.CreateOwnership(&models.Ownership{
		UserID:      ownership.UserID,
		PoolID:      ownership.PoolID,
		TokenAmount: m.winner,
	}, txn)
	if err != nil || !ok {
		return false, err
	}
	return false, nil
}

func newRacingDatabase(t *testing.T, winner int64) (*database.Database, *racingMetadata) {
	t.Helper()
	store, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	racing := &racingMetadata{MetadataStore: store, winner: winner}
	db := database.NewWithStores(nil, racing, nil, "")
	t.Cleanup(func() {
		_ = db.Close()
	})
	testutil.SeedDirectory(t, db)
	return db, racing
}

func TestApplySettlementAfterLostInsert(t *testing.T) {
	db, racing := newRacingDatabase(t, 40)
	store := ledger.NewStore(db, lock.NewMemory(), nil)
	key := ledger.AccountKey{UserID: testUserID, PoolID: testPoolID}

	var applied *models.Ownership
	txn := db.Transaction(context.Background(), true)
	err := txn.Do(func(txn *database.Txn) error {
		var err error
		applied, err = store.ApplySettlement(context.Background(), txn, key, 5)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, racing.inserts)
	require.NotNil(t, applied)
	assert.Equal(t, int64(45), applied.TokenAmount)

	stored, err := db.GetOwnership(testUserID, testPoolID, false, nil)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, applied.OwnershipID, stored.OwnershipID)
	assert.Equal(t, int64(45), stored.TokenAmount)
}

func TestApplySettlementAfterLostInsertChecksBalance(t *testing.T) {
	db, _ := newRacingDatabase(t, 2)
	store := ledger.NewStore(db, lock.NewMemory(), nil)
	key := ledger.AccountKey{UserID: testUserID, PoolID: testPoolID}

	// The first settlement loses the insert race to a row holding 2
	txn := db.Transaction(context.Background(), true)
	require.NoError(t, txn.Do(func(txn *database.Txn) error {
		_, err := store.ApplySettlement(context.Background(), txn, key, 1)
		return err
	}))

	txn = db.Transaction(context.Background(), true)
	err := txn.Do(func(txn *database.Txn) error {
		_, err := store.ApplySettlement(context.Background(), txn, key, -4)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	stored, err := db.GetOwnership(testUserID, testPoolID, false, nil)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(3), stored.TokenAmount)
}
