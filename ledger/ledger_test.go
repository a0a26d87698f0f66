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
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
	"github.com/blinklabs-io/herdledger/event"
	"github.com/blinklabs-io/herdledger/internal/test/testutil"
	"github.com/blinklabs-io/herdledger/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID   = testutil.UserID
	otherUserID  = testutil.OtherUserID
	testHerdID   = testutil.HerdID
	testPoolID   = testutil.PoolID
	unpooledHerd = testutil.UnpooledHerdID
	unknownID    = testutil.UnknownID
)

type testEnv struct {
	db     *database.Database
	bus    *event.EventBus
	ledger *ledger.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDatabase(t)
	testutil.SeedDirectory(t, db)
	bus := event.NewEventBus(nil, nil)
	l, err := ledger.New(ledger.Config{
		Database:     db,
		EventBus:     bus,
		PromRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		bus.Stop()
		l.Close()
	})
	return &testEnv{db: db, bus: bus, ledger: l}
}

func (e *testEnv) settle(
	t *testing.T,
	userID string,
	txType string,
	amount string,
	status *string,
) (*ledger.SettlementResult, error) {
	t.Helper()
	return e.ledger.Settle(context.Background(), ledger.RawRequest{
		UserID: userID,
		PoolID: testPoolID,
		Type:   txType,
		Amount: ledger.Amount(amount),
		Status: status,
	})
}

func (e *testEnv) balance(t *testing.T, userID string) (int64, bool) {
	t.Helper()
	ownership, err := e.db.GetOwnership(userID, testPoolID, false, nil)
	require.NoError(t, err)
	if ownership == nil {
		return 0, false
	}
	return ownership.TokenAmount, true
}

func (e *testEnv) transactions(t *testing.T) []models.PoolTransactionView {
	t.Helper()
	ret, err := e.db.GetPoolTransactions(testPoolID, types.ListOptions{Limit: 1000}, nil)
	require.NoError(t, err)
	return ret
}

func strPtr(s string) *string {
	return &s
}

func TestBuySellScenario(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.settle(t, testUserID, "buy", "20", strPtr("completed"))
	require.NoError(t, err)
	assert.True(t, res.OwnershipUpdated)
	assert.Equal(t, int64(20), res.Delta)
	require.NotNil(t, res.Ownership)
	assert.Equal(t, int64(20), res.Ownership.TokenAmount)

	_, err = env.settle(t, testUserID, "sell", "25", strPtr("completed"))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, ledger.ClassInsufficientBalance, ledger.ClassOf(err))
	bal, _ := env.balance(t, testUserID)
	assert.Equal(t, int64(20), bal)
	// The failed sell left no log entry
	assert.Len(t, env.transactions(t), 1)

	res, err = env.settle(t, testUserID, "sell", "20", strPtr("completed"))
	require.NoError(t, err)
	assert.Equal(t, int64(-20), res.Delta)
	assert.Equal(t, int64(0), res.Ownership.TokenAmount)
	bal, found := env.balance(t, testUserID)
	assert.True(t, found)
	assert.Equal(t, int64(0), bal)
	assert.Len(t, env.transactions(t), 2)
}

func TestMintWithoutStatusSettles(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.settle(t, testUserID, "mint", "5", nil)
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Transaction.Status)
	assert.True(t, res.Transaction.Settled)
	assert.True(t, res.OwnershipUpdated)
	bal, _ := env.balance(t, testUserID)
	assert.Equal(t, int64(5), bal)
}

func TestPendingDoesNotTouchBalance(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.settle(t, testUserID, "buy", "10", strPtr("pending"))
	require.NoError(t, err)
	assert.False(t, res.OwnershipUpdated)
	assert.Nil(t, res.Ownership)
	assert.False(t, res.Transaction.Settled)
	_, found := env.balance(t, testUserID)
	assert.False(t, found)

	// An unsettled sell is recorded even without a balance to cover it
	res, err = env.settle(t, testUserID, "sell", "99", strPtr("failed"))
	require.NoError(t, err)
	assert.False(t, res.OwnershipUpdated)
	assert.Len(t, env.transactions(t), 2)
}

func TestSellWithoutOwnershipFails(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.settle(t, testUserID, "redeem", "1", nil)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	_, found := env.balance(t, testUserID)
	assert.False(t, found)
	assert.Empty(t, env.transactions(t))
}

func TestSettleUnknownUserAndPool(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.settle(t, unknownID, "buy", "1", nil)
	require.ErrorIs(t, err, ledger.ErrUserNotFound)
	assert.Equal(t, ledger.CodeUserNotFound, ledger.CodeOf(err))

	_, err = env.ledger.Settle(context.Background(), ledger.RawRequest{
		UserID: testUserID,
		PoolID: unknownID,
		Type:   "buy",
		Amount: "1",
	})
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
	assert.Equal(t, ledger.ClassNotFound, ledger.ClassOf(err))
	assert.Empty(t, env.transactions(t))
}

func TestSettleByHerdID(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.ledger.Settle(context.Background(), ledger.RawRequest{
		UserID: testUserID,
		PoolID: testHerdID,
		Type:   "buy",
		Amount: "3",
	})
	require.NoError(t, err)
	assert.Equal(t, testPoolID, res.Transaction.PoolID)
	assert.Equal(t, testPoolID, res.Ownership.PoolID)
}

func TestSettleIdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	raw := ledger.RawRequest{
		UserID:         testUserID,
		PoolID:         testPoolID,
		Type:           "buy",
		Amount:         "7",
		IdempotencyKey: strPtr("order-42"),
	}
	first, err := env.ledger.Settle(context.Background(), raw)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := env.ledger.Settle(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.TransactionID, second.Transaction.TransactionID)
	assert.Equal(t, int64(7), second.Ownership.TokenAmount)

	bal, _ := env.balance(t, testUserID)
	assert.Equal(t, int64(7), bal)
	assert.Len(t, env.transactions(t), 1)

	// The same key from another user is a separate request
	raw.UserID = otherUserID
	third, err := env.ledger.Settle(context.Background(), raw)
	require.NoError(t, err)
	assert.False(t, third.Replayed)
	assert.Len(t, env.transactions(t), 2)
}

func TestSettleIdempotencyConflict(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.settle(t, testUserID, "mint", "500", nil)
	require.NoError(t, err)
	raw := ledger.RawRequest{
		UserID:         testUserID,
		PoolID:         testPoolID,
		Type:           "buy",
		Amount:         "3",
		IdempotencyKey: strPtr("order-7"),
	}
	_, err = env.ledger.Settle(context.Background(), raw)
	require.NoError(t, err)

	testDefs := []struct {
		name   string
		txType string
		amount string
		poolID string
	}{
		{name: "type and amount", txType: "sell", amount: "300", poolID: testPoolID},
		{name: "amount", txType: "buy", amount: "4", poolID: testPoolID},
		{name: "type", txType: "sell", amount: "3", poolID: testPoolID},
	}
	for _, td := range testDefs {
		t.Run(td.name, func(t *testing.T) {
			_, err := env.ledger.Settle(context.Background(), ledger.RawRequest{
				UserID:         testUserID,
				PoolID:         td.poolID,
				Type:           td.txType,
				Amount:         ledger.Amount(td.amount),
				IdempotencyKey: raw.IdempotencyKey,
			})
			require.ErrorIs(t, err, ledger.ErrIdempotencyConflict)
			assert.Equal(t, ledger.ClassConflict, ledger.ClassOf(err))
			assert.Equal(t, ledger.CodeIdempotencyConflict, ledger.CodeOf(err))
		})
	}
	bal, _ := env.balance(t, testUserID)
	assert.Equal(t, int64(503), bal)
	assert.Len(t, env.transactions(t), 2)

	// Addressing the same pool by its herd ID is still a replay
	raw.PoolID = testHerdID
	again, err := env.ledger.Settle(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
}

func TestHerdWithoutPool(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedUnpooledHerd(t, env.db)
	ctx := context.Background()

	pools, err := env.ledger.Pools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.NotNil(t, pools[0].HerdID)
	assert.Equal(t, unpooledHerd, *pools[0].HerdID)
	assert.Nil(t, pools[0].PoolID)
	assert.Nil(t, pools[0].TotalSupply)
	require.NotNil(t, pools[1].PoolID)
	assert.Equal(t, testPoolID, *pools[1].PoolID)

	pool, err := env.ledger.Pool(ctx, unpooledHerd)
	require.NoError(t, err)
	assert.Nil(t, pool.PoolID)
	require.NotNil(t, pool.HerdName)
	assert.Equal(t, "South Ridge", *pool.HerdName)

	holders, err := env.ledger.PoolOwnership(ctx, unpooledHerd)
	require.NoError(t, err)
	assert.NotNil(t, holders)
	assert.Empty(t, holders)

	txs, err := env.ledger.PoolTransactions(ctx, unpooledHerd, types.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)

	// Settlement still needs a pool
	_, err = env.ledger.Settle(ctx, ledger.RawRequest{
		UserID: testUserID,
		PoolID: unpooledHerd,
		Type:   "buy",
		Amount: "1",
	})
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
}

func TestPoolTransactionsCarryEmail(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.settle(t, testUserID, "buy", "2", nil)
	require.NoError(t, err)
	txs, err := env.ledger.PoolTransactions(context.Background(), testHerdID, types.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].Email)
	assert.Equal(t, "investor@example.com", *txs[0].Email)
	assert.Equal(t, testUserID, txs[0].UserID)
}

func TestTransactionLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.settle(t, testUserID, "mint", "9", nil)
	require.NoError(t, err)

	got, err := env.ledger.Transaction(ctx, res.Transaction.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, res.Transaction.TransactionID, got.TransactionID)
	assert.Equal(t, "mint", got.Type)
	assert.Equal(t, int64(9), got.Amount)

	_, err = env.ledger.Transaction(ctx, unknownID)
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	assert.Equal(t, ledger.ClassNotFound, ledger.ClassOf(err))

	_, err = env.ledger.Transaction(ctx, "nope")
	assert.Equal(t, ledger.CodeInvalidFormat, ledger.CodeOf(err))
}

func TestConcurrentIdempotentRequests(t *testing.T) {
	env := newTestEnv(t)
	const workers = 5
	var wg sync.WaitGroup
	results := make([]*ledger.SettlementResult, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.ledger.Settle(context.Background(), ledger.RawRequest{
				UserID:         testUserID,
				PoolID:         testPoolID,
				Type:           "mint",
				Amount:         "2",
				IdempotencyKey: strPtr("mint-once"),
			})
		}(i)
	}
	wg.Wait()
	replays := 0
	for i := range workers {
		require.NoError(t, errs[i])
		if results[i].Replayed {
			replays++
		}
		assert.Equal(t, results[0].Transaction.TransactionID, results[i].Transaction.TransactionID)
	}
	assert.Equal(t, workers-1, replays)
	bal, _ := env.balance(t, testUserID)
	assert.Equal(t, int64(2), bal)
}

func TestConcurrentSettlementsConserveBalance(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.settle(t, testUserID, "mint", "5", nil)
	require.NoError(t, err)

	const workers = 5
	const rounds = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var applied int64
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for r := range rounds {
				txType, delta := "buy", int64(10)
				if (i+r)%2 == 1 {
					txType, delta = "sell", -10
				}
				_, err := env.settle(t, testUserID, txType, "10", nil)
				if err != nil {
					assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
					continue
				}
				mu.Lock()
				applied += delta
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	bal, _ := env.balance(t, testUserID)
	assert.Equal(t, 5+applied, bal)
	assert.GreaterOrEqual(t, bal, int64(0))

	var logged int64
	for _, tx := range env.transactions(t) {
		logged += ledger.TransactionType(tx.Type).Sign() * tx.Amount
	}
	assert.Equal(t, bal, logged)
}

func TestReceiptsArchived(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.settle(t, testUserID, "buy", "11", nil)
	require.NoError(t, err)
	pending, err := env.settle(t, testUserID, "buy", "4", strPtr("pending"))
	require.NoError(t, err)
	// Stop drains queued events and waits for the archiver
	env.bus.Stop()

	receipt, err := env.ledger.Receipt(context.Background(), res.Transaction.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, res.Transaction.TransactionID, receipt.TransactionID)
	assert.Equal(t, int64(11), receipt.Delta)
	require.NotNil(t, receipt.Balance)
	assert.Equal(t, int64(11), *receipt.Balance)
	assert.True(t, receipt.Settled)

	receipt, err = env.ledger.Receipt(context.Background(), pending.Transaction.TransactionID)
	require.NoError(t, err)
	assert.False(t, receipt.Settled)
	assert.Nil(t, receipt.Balance)

	_, err = env.ledger.Receipt(context.Background(), unknownID)
	require.ErrorIs(t, err, ledger.ErrReceiptNotFound)
}

func TestSettlementEventPublished(t *testing.T) {
	env := newTestEnv(t)
	_, ch := env.bus.Subscribe(ledger.SettlementEventType)
	res, err := env.settle(t, testUserID, "mint", "9", nil)
	require.NoError(t, err)
	evt := testutil.RequireReceive(t, ch, 5*time.Second, "settlement event")
	data, ok := evt.Data.(ledger.SettlementEvent)
	require.True(t, ok)
	assert.Equal(t, res.Transaction.TransactionID, data.Transaction.TransactionID)
	assert.Equal(t, testUserID+":"+testPoolID, data.EventKey())
	require.NotNil(t, data.Ownership)
	assert.Equal(t, int64(9), data.Ownership.TokenAmount)

	// Rejected requests publish nothing
	_, err = env.settle(t, testUserID, "sell", "100", nil)
	require.Error(t, err)
	testutil.RequireNoReceive(t, ch, 100*time.Millisecond, "rejected settlement")
}

func TestDirectoryReads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.settle(t, testUserID, "buy", "30", nil)
	require.NoError(t, err)
	_, err = env.settle(t, otherUserID, "buy", "50", nil)
	require.NoError(t, err)

	holdings, err := env.ledger.UserOwnership(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(30), holdings[0].TokenAmount)
	require.NotNil(t, holdings[0].HerdName)
	assert.Equal(t, "North Pasture", *holdings[0].HerdName)

	empty, err := env.ledger.UserOwnership(ctx, unknownID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = env.ledger.UserOwnership(ctx, "bad")
	assert.Equal(t, ledger.CodeInvalidFormat, ledger.CodeOf(err))

	holders, err := env.ledger.PoolOwnership(ctx, testHerdID)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, otherUserID, holders[0].UserID)

	_, err = env.ledger.PoolOwnership(ctx, unknownID)
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)

	txs, err := env.ledger.UserTransactions(ctx, testUserID, types.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "buy", txs[0].Type)

	poolTxs, err := env.ledger.PoolTransactions(ctx, testPoolID, types.ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, poolTxs, 1)

	pools, err := env.ledger.Pools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 1)

	pool, err := env.ledger.Pool(ctx, testHerdID)
	require.NoError(t, err)
	require.NotNil(t, pool.PoolID)
	assert.Equal(t, testPoolID, *pool.PoolID)

	_, err = env.ledger.Pool(ctx, unknownID)
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
}

func TestPatchHerd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	price := decimal.RequireFromString("99000")
	herd, err := env.ledger.PatchHerd(ctx, testHerdID, ledger.HerdPatch{
		ListingPrice:   &price,
		PurchaseStatus: strPtr("pending"),
	})
	require.NoError(t, err)
	assert.True(t, price.Equal(herd.ListingPrice))
	assert.Equal(t, "pending", herd.PurchaseStatus)
	assert.Equal(t, "North Pasture", herd.HerdName)

	headCount := 12
	negative := decimal.NewFromInt(-1)
	testDefs := []struct {
		name  string
		patch ledger.HerdPatch
	}{
		{name: "empty", patch: ledger.HerdPatch{}},
		{name: "status", patch: ledger.HerdPatch{PurchaseStatus: strPtr("gone")}},
		{name: "head count", patch: ledger.HerdPatch{HeadCount: &headCount}},
		{name: "price", patch: ledger.HerdPatch{ListingPrice: &negative}},
		{name: "name", patch: ledger.HerdPatch{HerdName: strPtr("  ")}},
	}
	for _, testDef := range testDefs {
		_, err := env.ledger.PatchHerd(ctx, testHerdID, testDef.patch)
		assert.Equal(t, ledger.ClassValidation, ledger.ClassOf(err), testDef.name)
	}

	verified := true
	_, err = env.ledger.PatchHerd(ctx, unknownID, ledger.HerdPatch{VerifiedFlag: &verified})
	require.ErrorIs(t, err, ledger.ErrHerdNotFound)
}
