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
	"io"
	"log/slog"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/event"
	"github.com/blinklabs-io/herdledger/ledger/lock"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	Database     *database.Database
	Locker       lock.Locker
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DefaultStatus applies to requests without a status. Empty means
	// DefaultStatus
	DefaultStatus string
	// DisableReceipts skips the receipt archive subscriber
	DisableReceipts bool
}

// Ledger is the settlement engine plus its read side
type Ledger struct {
	*Coordinator
	*Directory
	db       *database.Database
	receipts *ReceiptArchiver
	bus      *event.EventBus
	subID    event.EventSubscriberId
}

func New(cfg Config) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, errors.New("ledger: database is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "ledger")
	locker := cfg.Locker
	if locker == nil {
		if cfg.Database.Metadata().SupportsRowLocking() {
			locker = lock.NewRow()
		} else {
			locker = lock.NewMemory()
		}
	}
	metrics := newLedgerMetrics(cfg.PromRegistry)
	validator := NewValidator(cfg.DefaultStatus)
	if validator.DefaultStatus() == DefaultStatus {
		logger.Warn(
			"requests without a status settle immediately",
			"default_status", validator.DefaultStatus(),
		)
	}
	resolver := NewResolver(cfg.Database)
	l := &Ledger{
		Coordinator: &Coordinator{
			db:        cfg.Database,
			validator: validator,
			resolver:  resolver,
			store:     NewStore(cfg.Database, locker, logger),
			bus:       cfg.EventBus,
			logger:    logger,
			metrics:   metrics,
		},
		db:       cfg.Database,
		receipts: NewReceiptArchiver(cfg.Database, logger, metrics),
		bus:      cfg.EventBus,
	}
	l.Directory = &Directory{
		db:       cfg.Database,
		receipts: l.receipts,
	}
	if cfg.EventBus != nil && !cfg.DisableReceipts {
		l.subID = cfg.EventBus.SubscribeFunc(
			SettlementEventType,
			l.receipts.HandleEvent,
		)
	}
	logger.Debug(
		"ledger started",
		"locker", locker.Name(),
		"dialect", cfg.Database.Metadata().Dialect(),
	)
	return l, nil
}

// Close detaches the receipt archiver from the event bus
func (l *Ledger) Close() {
	if l.bus != nil && l.subID != 0 {
		l.bus.Unsubscribe(SettlementEventType, l.subID)
		l.subID = 0
	}
}

// Ping checks that the metadata store answers
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.Metadata().Ping(ctx)
}

// Validator returns the request validator used by Settle
func (l *Ledger) Validator() *Validator {
	return l.validator
}
