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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
	"github.com/blinklabs-io/herdledger/event"
)

// settleStep is the last stage a settlement attempt reached
type settleStep string

const (
	stepReceived       settleStep = "RECEIVED"
	stepValidated      settleStep = "VALIDATED"
	stepUserChecked    settleStep = "USER_CHECKED"
	stepPoolResolved   settleStep = "POOL_RESOLVED"
	stepLogged         settleStep = "LOGGED"
	stepBalanceApplied settleStep = "BALANCE_APPLIED"
)

// errReplay aborts a unit that found an earlier transaction with the same
// idempotency key
var errReplay = errors.New("idempotent replay")

// SettlementResult is the outcome of a settlement request
type SettlementResult struct {
	Transaction      *models.Transaction `json:"transaction"`
	Ownership        *models.Ownership   `json:"ownership"`
	Delta            int64               `json:"delta"`
	OwnershipUpdated bool                `json:"ownershipUpdated"`
	Replayed         bool                `json:"replayed,omitempty"`
}

// Coordinator runs validation, pool resolution, the transaction insert and
// the balance update as one atomic unit
type Coordinator struct {
	db        *database.Database
	validator *Validator
	resolver  *Resolver
	store     *Store
	bus       *event.EventBus
	logger    *slog.Logger
	metrics   *ledgerMetrics
}

func (c *Coordinator) Settle(
	ctx context.Context,
	raw RawRequest,
) (*SettlementResult, error) {
	start := time.Now()
	step := stepReceived
	req, err := c.validator.Validate(raw)
	if err != nil {
		c.metrics.settlements.WithLabelValues("rejected").Inc()
		c.logger.Debug(
			"settlement rejected",
			"step", step,
			"code", CodeOf(err),
			"error", err,
		)
		return nil, err
	}
	step = stepValidated
	var result *SettlementResult
	var original *models.Transaction
	var poolID string
	txn := c.db.Transaction(ctx, true)
	err = txn.Do(func(txn *database.Txn) error {
		user, err := c.db.GetUser(req.UserID, txn)
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUserNotFound, req.UserID)
		}
		step = stepUserChecked
		poolID, err = c.resolver.ResolvePool(ctx, txn, req.PoolID)
		if err != nil {
			return err
		}
		step = stepPoolResolved
		if req.IdempotencyKey != nil {
			original, err = c.db.GetTransactionByIdempotencyKey(
				req.UserID,
				*req.IdempotencyKey,
				txn,
			)
			if err != nil {
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
			if original != nil {
				return errReplay
			}
		}
		record := &models.Transaction{
			UserID:         req.UserID,
			PoolID:         poolID,
			Type:           string(req.Type),
			Amount:         req.Amount,
			Status:         req.Status,
			Settled:        req.State == Settled,
			ExternalRef:    req.ExternalRef,
			IdempotencyKey: req.IdempotencyKey,
		}
		if err := c.db.CreateTransaction(record, txn); err != nil {
			if errors.Is(err, types.ErrDuplicateKey) && req.IdempotencyKey != nil {
				// A concurrent request with the same key committed first
				return errReplay
			}
			return fmt.Errorf("record transaction: %w", err)
		}
		step = stepLogged
		result = &SettlementResult{
			Transaction: record,
			Delta:       req.Delta,
		}
		if req.State == Settled {
			ownership, err := c.store.ApplySettlement(
				ctx,
				txn,
				AccountKey{UserID: req.UserID, PoolID: poolID},
				req.Delta,
			)
			if err != nil {
				return err
			}
			step = stepBalanceApplied
			result.Ownership = ownership
			result.OwnershipUpdated = true
		}
		txn.OnCommit(func() {
			c.publish(result)
		})
		return nil
	})
	c.metrics.settlementDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, errReplay) {
		return c.replay(req, poolID, original)
	}
	if err != nil {
		c.metrics.settlements.WithLabelValues("aborted").Inc()
		c.logger.Debug(
			"settlement aborted",
			"step", step,
			"user_id", req.UserID,
			"pool_id", req.PoolID,
			"code", CodeOf(err),
			"error", err,
		)
		return nil, err
	}
	if result.OwnershipUpdated {
		c.metrics.settlements.WithLabelValues("settled").Inc()
	} else {
		c.metrics.settlements.WithLabelValues("recorded").Inc()
	}
	c.logger.Info(
		"transaction settled",
		"transaction_id", result.Transaction.TransactionID,
		"user_id", req.UserID,
		"pool_id", result.Transaction.PoolID,
		"type", req.Type,
		"amount", req.Amount,
		"status", req.Status,
		"ownership_updated", result.OwnershipUpdated,
	)
	return result, nil
}

// replay answers a request whose idempotency key was already used with the
// original transaction and the current balance. The request must match the
// original's type, amount and pool.
func (c *Coordinator) replay(
	req Request,
	poolID string,
	original *models.Transaction,
) (*SettlementResult, error) {
	if original == nil {
		var err error
		original, err = c.db.GetTransactionByIdempotencyKey(
			req.UserID,
			*req.IdempotencyKey,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if original == nil {
			return nil, errors.New("idempotency key conflict without a stored transaction")
		}
	}
	if original.Type != string(req.Type) ||
		original.Amount != req.Amount ||
		original.PoolID != poolID {
		c.metrics.settlements.WithLabelValues("conflict").Inc()
		c.logger.Debug(
			"idempotency key reused with a different request",
			"transaction_id", original.TransactionID,
			"idempotency_key", *req.IdempotencyKey,
			"type", req.Type,
			"amount", req.Amount,
			"pool_id", poolID,
		)
		return nil, fmt.Errorf(
			"%w: key %q was used for %s %d on pool %s",
			ErrIdempotencyConflict,
			*req.IdempotencyKey,
			original.Type,
			original.Amount,
			original.PoolID,
		)
	}
	result := &SettlementResult{
		Transaction: original,
		Delta:       TransactionType(original.Type).Sign() * original.Amount,
		Replayed:    true,
	}
	if original.Settled {
		ownership, err := c.db.GetOwnership(original.UserID, original.PoolID, false, nil)
		if err != nil {
			return nil, fmt.Errorf("read ownership: %w", err)
		}
		result.Ownership = ownership
		result.OwnershipUpdated = true
	}
	c.metrics.settlements.WithLabelValues("replayed").Inc()
	c.logger.Info(
		"settlement replayed",
		"transaction_id", original.TransactionID,
		"idempotency_key", *req.IdempotencyKey,
	)
	return result, nil
}

func (c *Coordinator) publish(result *SettlementResult) {
	if c.bus == nil {
		return
	}
	evt := SettlementEvent{
		Transaction:      *result.Transaction,
		Delta:            result.Delta,
		OwnershipUpdated: result.OwnershipUpdated,
		CommittedAt:      time.Now(),
	}
	if result.Ownership != nil {
		ownership := *result.Ownership
		evt.Ownership = &ownership
	}
	c.bus.PublishAsync(SettlementEventType, event.NewEvent(SettlementEventType, evt))
}
