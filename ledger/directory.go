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
	"reflect"
	"strings"
	"time"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Directory serves the read side: holdings, transaction history, pool
// listings and herd maintenance
type Directory struct {
	db       *database.Database
	receipts *ReceiptArchiver
}

// HerdPatch lists the herd fields a rancher may change. Nil fields are left
// untouched
type HerdPatch struct {
	ListingPrice   *decimal.Decimal `json:"listingPrice"`
	PurchaseStatus *string          `json:"purchaseStatus" validate:"omitnil,oneof=available pending sold"`
	VerifiedFlag   *bool            `json:"verifiedFlag"`
	HerdName       *string          `json:"herdName"       validate:"omitnil,min=1,max=255"`
	HeadCount      *int             `json:"headCount"      validate:"omitnil,min=20"`
}

var patchValidate = newPatchValidator()

func newPatchValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func checkUUID(field, value string) error {
	if !uuidPattern.MatchString(value) {
		return invalid(CodeInvalidFormat, field, "invalid %s format", field)
	}
	return nil
}

// UserOwnership lists a user's balances, newest first
func (d *Directory) UserOwnership(
	ctx context.Context,
	userID string,
) ([]models.UserOwnershipView, error) {
	if err := checkUUID("userId", userID); err != nil {
		return nil, err
	}
	txn := d.db.Transaction(ctx, false)
	defer txn.Release()
	ret, err := d.db.GetUserOwnership(strings.ToLower(userID), txn)
	if err != nil {
		return nil, fmt.Errorf("list user ownership: %w", err)
	}
	return ret, nil
}

// UserTransactions lists a user's transactions with their herd
func (d *Directory) UserTransactions(
	ctx context.Context,
	userID string,
	opts types.ListOptions,
) ([]models.TransactionView, error) {
	if err := checkUUID("userId", userID); err != nil {
		return nil, err
	}
	txn := d.db.Transaction(ctx, false)
	defer txn.Release()
	ret, err := d.db.GetUserTransactions(strings.ToLower(userID), opts, txn)
	if err != nil {
		return nil, fmt.Errorf("list user transactions: %w", err)
	}
	return ret, nil
}

// Pools lists every herd with its pool, if any, newest herd first
func (d *Directory) Pools(ctx context.Context) ([]models.PoolView, error) {
	txn := d.db.Transaction(ctx, false)
	defer txn.Release()
	ret, err := d.db.GetPoolViews(txn)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return ret, nil
}

// Pool returns a pool by pool ID or herd ID
func (d *Directory) Pool(ctx context.Context, id string) (*models.PoolView, error) {
	if err := checkUUID("poolId", id); err != nil {
		return nil, err
	}
	txn := d.db.Transaction(ctx, false)
	defer txn.Release()
	ret, err := d.db.GetPoolView(strings.ToLower(id), txn)
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}
	if ret == nil {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return ret, nil
}

// poolOf returns the pool ID recorded for a pool ID or herd ID. The empty
// string means a herd matched but it has no pool yet.
func (d *Directory) poolOf(txn *database.Txn, id string) (string, error) {
	view, err := d.db.GetPoolView(strings.ToLower(id), txn)
	if err != nil {
		return "", fmt.Errorf("get pool: %w", err)
	}
	if view == nil {
		return "", fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	if view.PoolID == nil {
		return "", nil
	}
	return *view.PoolID, nil
}

// PoolOwnership lists the holders of a pool, largest first. A herd without
// a pool has no holders.
func (d *Directory) PoolOwnership(
	ctx context.Context,
	id string,
) ([]models.PoolOwnershipView, error) {
	if err := checkUUID("poolId", id); err != nil {
		return nil, err
	}
	txn := d.db.Transaction(ctx, false)
	defer txn.Release()
	poolID, err := d.poolOf(txn, id)
	if err != nil {
		return nil, err
	}
	if poolID == "" {
		return []models.PoolOwnershipView{}, nil
	}
	ret, err := d.db.GetPoolOwnership(poolID, txn)
	if err != nil {
		return nil, fmt.Errorf("list pool ownership: %w", err)
	}
	return ret, nil
}

// PoolTransactions lists the transaction log of a pool. A herd without a
// pool has an empty log.
func (d *Directory) PoolTransactions(
	ctx context.Context,
	id string,
	opts types.ListOptions,
) ([]models.PoolTransactionView, error) {
	if err := checkUUID("poolId", id); err != nil {
		return nil, err
	}
	txn := d.db.Transaction(ctx, false)
	defer txn.Release()
	poolID, err := d.poolOf(txn, id)
	if err != nil {
		return nil, err
	}
	if poolID == "" {
		return []models.PoolTransactionView{}, nil
	}
	ret, err := d.db.GetPoolTransactions(poolID, opts, txn)
	if err != nil {
		return nil, fmt.Errorf("list pool transactions: %w", err)
	}
	return ret, nil
}

// Transaction returns a single logged transaction by ID
func (d *Directory) Transaction(
	ctx context.Context,
	transactionID string,
) (*models.Transaction, error) {
	if err := checkUUID("transactionId", transactionID); err != nil {
		return nil, err
	}
	txn := d.db.Transaction(ctx, false)
	defer txn.Release()
	ret, err := d.db.GetTransaction(strings.ToLower(transactionID), txn)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if ret == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}
	return ret, nil
}

// Receipt returns the archived receipt of a committed transaction
func (d *Directory) Receipt(ctx context.Context, transactionID string) (*Receipt, error) {
	if err := checkUUID("transactionId", transactionID); err != nil {
		return nil, err
	}
	return d.receipts.Receipt(ctx, strings.ToLower(transactionID))
}

// Validate checks the patch and returns the column updates it implies
func (p HerdPatch) Validate() (map[string]any, error) {
	if err := patchValidate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, invalid(
				CodeInvalidFormat,
				fe.Field(),
				"failed %s validation",
				fe.Tag(),
			)
		}
		return nil, invalid(CodeInvalidFormat, "", "invalid herd patch: %s", err)
	}
	updates := make(map[string]any)
	if p.ListingPrice != nil {
		if p.ListingPrice.IsNegative() {
			return nil, invalid(CodeInvalidFormat, "listingPrice", "listingPrice must not be negative")
		}
		updates["listing_price"] = *p.ListingPrice
	}
	if p.PurchaseStatus != nil {
		updates["purchase_status"] = *p.PurchaseStatus
	}
	if p.VerifiedFlag != nil {
		updates["verified_flag"] = *p.VerifiedFlag
	}
	if p.HerdName != nil {
		name := strings.TrimSpace(*p.HerdName)
		if name == "" {
			return nil, invalid(CodeInvalidFormat, "herdName", "herdName must not be empty")
		}
		updates["herd_name"] = name
	}
	if p.HeadCount != nil {
		updates["head_count"] = *p.HeadCount
	}
	if len(updates) == 0 {
		return nil, invalid(CodeInvalidFormat, "", "no herd fields to update")
	}
	return updates, nil
}

// PatchHerd applies patch to a herd and returns the updated herd
func (d *Directory) PatchHerd(
	ctx context.Context,
	herdID string,
	patch HerdPatch,
) (*models.Herd, error) {
	if err := checkUUID("herdId", herdID); err != nil {
		return nil, err
	}
	updates, err := patch.Validate()
	if err != nil {
		return nil, err
	}
	updates["last_updated"] = time.Now().UTC()
	herdID = strings.ToLower(herdID)
	var ret *models.Herd
	txn := d.db.Transaction(ctx, true)
	err = txn.Do(func(txn *database.Txn) error {
		found, err := d.db.UpdateHerd(herdID, updates, txn)
		if err != nil {
			return fmt.Errorf("update herd: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrHerdNotFound, herdID)
		}
		ret, err = d.db.GetHerd(herdID, txn)
		if err != nil {
			return fmt.Errorf("read herd: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
