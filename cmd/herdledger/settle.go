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

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/blinklabs-io/herdledger/event"
	"github.com/blinklabs-io/herdledger/internal/config"
	"github.com/blinklabs-io/herdledger/internal/node"
	"github.com/blinklabs-io/herdledger/ledger"
	"github.com/spf13/cobra"
)

var settleFlags = struct {
	userID         string
	poolID         string
	txType         string
	amount         string
	status         string
	externalRef    string
	idempotencyKey string
}{}

func settleRun(cmd *cobra.Command, cfg *config.Config) error {
	logger := commonRun()
	req := ledger.RawRequest{
		UserID: settleFlags.userID,
		PoolID: settleFlags.poolID,
		Type:   settleFlags.txType,
		Amount: ledger.Amount(settleFlags.amount),
	}
	if cmd.Flags().Changed("status") {
		req.Status = &settleFlags.status
	}
	if settleFlags.externalRef != "" {
		req.ExternalRef = &settleFlags.externalRef
	}
	if settleFlags.idempotencyKey != "" {
		req.IdempotencyKey = &settleFlags.idempotencyKey
	}
	db, err := node.OpenDatabase(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	locker, err := node.NewLocker(cfg, logger)
	if err != nil {
		return err
	}
	if locker != nil {
		defer locker.Close()
	}
	bus := event.NewEventBus(nil, logger)
	l, err := ledger.New(ledger.Config{
		Database:        db,
		Locker:          locker,
		EventBus:        bus,
		Logger:          logger,
		DefaultStatus:   cfg.Ledger.DefaultStatus,
		DisableReceipts: cfg.Ledger.DisableReceipts,
	})
	if err != nil {
		bus.Stop()
		return err
	}
	res, err := l.Settle(cmd.Context(), req)
	// Drain the receipt archiver before the database closes
	bus.Stop()
	l.Close()
	if err != nil {
		return fmt.Errorf("%s %s: %w", ledger.ClassOf(err), ledger.CodeOf(err), err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func settleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Submit a single settlement request",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			if err := settleRun(cmd, cfg); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&settleFlags.userID, "user", "", "user ID")
	cmd.Flags().StringVar(&settleFlags.poolID, "pool", "", "pool ID or herd ID")
	cmd.Flags().StringVar(&settleFlags.txType, "type", "", "transaction type (buy, sell, mint, redeem)")
	cmd.Flags().StringVar(&settleFlags.amount, "amount", "", "whole token amount")
	cmd.Flags().StringVar(&settleFlags.status, "status", "", "transaction status, omit to use the configured default")
	cmd.Flags().StringVar(&settleFlags.externalRef, "external-ref", "", "external reference such as a chain transaction hash")
	cmd.Flags().StringVar(&settleFlags.idempotencyKey, "idempotency-key", "", "client key that makes retries safe")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
