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

package types

import (
	"errors"
	"fmt"
)

// ErrBlobKeyNotFound is returned by blob operations when a key is missing
var ErrBlobKeyNotFound = errors.New("blob key not found")

// ErrNilTxn is returned when a nil transaction is provided where a valid transaction is required
var ErrNilTxn = errors.New("nil transaction")

// ErrTxnFinished is returned when a transaction is used after commit or rollback
var ErrTxnFinished = errors.New("transaction already finished")

// ErrTxnReadOnly is returned when a write is attempted in a read-only transaction
var ErrTxnReadOnly = errors.New("transaction is read-only")

// ErrNoStoreAvailable is returned when no blob or metadata store is available
var ErrNoStoreAvailable = errors.New("no store available")

// ErrBlobStoreUnavailable is returned when blob store cannot be accessed
var ErrBlobStoreUnavailable = errors.New("blob store unavailable")

// ErrDuplicateKey is returned by metadata stores when an insert violates a
// unique index
var ErrDuplicateKey = errors.New("duplicate key")

// Txn is the common interface of metadata and blob transactions
type Txn interface {
	Commit() error
	Rollback() error
}

// ListOptions controls paging and ordering of list queries
type ListOptions struct {
	Limit     int
	Offset    int
	Ascending bool
}

const receiptBlobKeyPrefix = "receipt/"

// ReceiptBlobKey returns the blob key for a settlement receipt
func ReceiptBlobKey(transactionID string) []byte {
	return fmt.Appendf(nil, "%s%s", receiptBlobKeyPrefix, transactionID)
}
