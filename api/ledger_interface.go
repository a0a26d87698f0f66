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

package api

import (
	"context"

	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
	"github.com/blinklabs-io/herdledger/ledger"
)

// Ledger is the interface the API server uses to settle transactions and
// read the directory. *ledger.Ledger satisfies it
type Ledger interface {
	Ping(context.Context) error
	Settle(context.Context, ledger.RawRequest) (*ledger.SettlementResult, error)
	Receipt(context.Context, string) (*ledger.Receipt, error)

	UserOwnership(context.Context, string) ([]models.UserOwnershipView, error)
	UserTransactions(
		context.Context,
		string,
		types.ListOptions,
	) ([]models.TransactionView, error)

	Pools(context.Context) ([]models.PoolView, error)
	Pool(context.Context, string) (*models.PoolView, error)
	PoolOwnership(context.Context, string) ([]models.PoolOwnershipView, error)
	PoolTransactions(
		context.Context,
		string,
		types.ListOptions,
	) ([]models.PoolTransactionView, error)
	Transaction(context.Context, string) (*models.Transaction, error)

	PatchHerd(context.Context, string, ledger.HerdPatch) (*models.Herd, error)
}

var _ Ledger = (*ledger.Ledger)(nil)
