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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/types"
	"github.com/blinklabs-io/herdledger/event"
	"github.com/sony/gobreaker"
)

const receiptWriteTimeout = 30 * time.Second

// Receipt is the archived record of a committed settlement
type Receipt struct {
	CommittedAt   time.Time `json:"committedAt"`
	Balance       *int64    `json:"balance"`
	ExternalRef   *string   `json:"externalRef"`
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	PoolID        string    `json:"poolId"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Delta         int64     `json:"delta"`
	Settled       bool      `json:"settled"`
}

func NewReceipt(evt SettlementEvent) Receipt {
	r := Receipt{
		TransactionID: evt.Transaction.TransactionID,
		UserID:        evt.Transaction.UserID,
		PoolID:        evt.Transaction.PoolID,
		Type:          evt.Transaction.Type,
		Amount:        evt.Transaction.Amount,
		Status:        evt.Transaction.Status,
		Settled:       evt.Transaction.Settled,
		ExternalRef:   evt.Transaction.ExternalRef,
		Delta:         evt.Delta,
		CommittedAt:   evt.CommittedAt.UTC(),
	}
	if evt.Ownership != nil {
		balance := evt.Ownership.TokenAmount
		r.Balance = &balance
	}
	return r
}

// ReceiptArchiver writes receipts to the blob store. Writes go through a
// circuit breaker so a failing cloud bucket is not hammered by every
// settlement
type ReceiptArchiver struct {
	db      *database.Database
	logger  *slog.Logger
	metrics *ledgerMetrics
	breaker *gobreaker.CircuitBreaker
}

func NewReceiptArchiver(
	db *database.Database,
	logger *slog.Logger,
	metrics *ledgerMetrics,
) *ReceiptArchiver {
	a := &ReceiptArchiver{
		db:      db,
		logger:  logger,
		metrics: metrics,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "receipt-archive",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"receipt archive breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return a
}

// Archive stores the receipt for evt under its transaction ID
func (a *ReceiptArchiver) Archive(ctx context.Context, evt SettlementEvent) error {
	data, err := json.Marshal(NewReceipt(evt))
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	_, err = a.breaker.Execute(func() (any, error) {
		return nil, a.db.SetReceipt(ctx, evt.Transaction.TransactionID, data)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			a.metrics.receipts.WithLabelValues("rejected").Inc()
			return fmt.Errorf("receipt archive unavailable: %w", err)
		}
		a.metrics.receipts.WithLabelValues("error").Inc()
		return fmt.Errorf("store receipt: %w", err)
	}
	a.metrics.receipts.WithLabelValues("ok").Inc()
	return nil
}

// HandleEvent is the event bus handler for settlement events
func (a *ReceiptArchiver) HandleEvent(evt event.Event) {
	data, ok := evt.Data.(SettlementEvent)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), receiptWriteTimeout)
	defer cancel()
	if err := a.Archive(ctx, data); err != nil {
		a.logger.Error(
			"failed to archive receipt",
			"transaction_id", data.Transaction.TransactionID,
			"error", err,
		)
	}
}

// Receipt reads an archived receipt back
func (a *ReceiptArchiver) Receipt(
	ctx context.Context,
	transactionID string,
) (*Receipt, error) {
	data, err := a.db.GetReceipt(ctx, transactionID)
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, transactionID)
		}
		return nil, fmt.Errorf("read receipt: %w", err)
	}
	var ret Receipt
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &ret, nil
}
