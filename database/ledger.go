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

package database

import (
	"context"

	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
)

// GetOwnership returns the ownership row for the account or nil. With
// forUpdate the row is locked until txn finishes on stores that support it
func (d *Database) GetOwnership(
	userID string,
	poolID string,
	forUpdate bool,
	txn *Txn,
) (*models.Ownership, error) {
	return d.metadata.GetOwnership(userID, poolID, forUpdate, txn.Metadata())
}

// CreateOwnership inserts a new ownership row. It returns false when a row
// for the account already exists
func (d *Database) CreateOwnership(
	ownership *models.Ownership,
	txn *Txn,
) (bool, error) {
	return d.metadata.CreateOwnership(ownership, txn.Metadata())
}

func (d *Database) SetOwnershipAmount(
	ownershipID string,
	amount int64,
	txn *Txn,
) error {
	return d.metadata.SetOwnershipAmount(ownershipID, amount, txn.Metadata())
}

func (d *Database) GetUserOwnership(
	userID string,
	txn *Txn,
) ([]models.UserOwnershipView, error) {
	return d.metadata.GetUserOwnership(userID, txn.Metadata())
}

func (d *Database) GetPoolOwnership(
	poolID string,
	txn *Txn,
) ([]models.PoolOwnershipView, error) {
	return d.metadata.GetPoolOwnership(poolID, txn.Metadata())
}

func (d *Database) CreateTransaction(
	transaction *models.Transaction,
	txn *Txn,
) error {
	return d.metadata.CreateTransaction(transaction, txn.Metadata())
}

func (d *Database) GetTransaction(
	transactionID string,
	txn *Txn,
) (*models.Transaction, error) {
	return d.metadata.GetTransaction(transactionID, txn.Metadata())
}

func (d *Database) GetTransactionByIdempotencyKey(
	userID string,
	key string,
	txn *Txn,
) (*models.Transaction, error) {
	return d.metadata.GetTransactionByIdempotencyKey(
		userID,
		key,
		txn.Metadata(),
	)
}

func (d *Database) GetUserTransactions(
	userID string,
	opts types.ListOptions,
	txn *Txn,
) ([]models.TransactionView, error) {
	return d.metadata.GetUserTransactions(userID, opts, txn.Metadata())
}

func (d *Database) GetPoolTransactions(
	poolID string,
	opts types.ListOptions,
	txn *Txn,
) ([]models.PoolTransactionView, error) {
	return d.metadata.GetPoolTransactions(poolID, opts, txn.Metadata())
}

// GetReceipt returns the archived receipt document for a transaction
func (d *Database) GetReceipt(
	ctx context.Context,
	transactionID string,
) ([]byte, error) {
	if d.blob == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	return d.blob.Get(ctx, types.ReceiptBlobKey(transactionID))
}

// SetReceipt archives the receipt document for a transaction
func (d *Database) SetReceipt(
	ctx context.Context,
	transactionID string,
	receipt []byte,
) error {
	if d.blob == nil {
		return types.ErrBlobStoreUnavailable
	}
	return d.blob.Set(ctx, types.ReceiptBlobKey(transactionID), receipt)
}
