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
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxIdempotencyKeyLength matches the width of the idempotency_key column
const MaxIdempotencyKeyLength = 128

// DefaultStatus is applied to requests that carry no status
const DefaultStatus = "completed"

var uuidPattern = regexp.MustCompile(
	`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`,
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

type TransactionType string

const (
	TypeBuy    TransactionType = "buy"
	TypeSell   TransactionType = "sell"
	TypeMint   TransactionType = "mint"
	TypeRedeem TransactionType = "redeem"
)

// Sign is +1 for types that credit the investor and -1 for types that debit
func (t TransactionType) Sign() int64 {
	switch t {
	case TypeBuy, TypeMint:
		return 1
	case TypeSell, TypeRedeem:
		return -1
	}
	return 0
}

func parseType(s string) (TransactionType, bool) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Sign() != 0
}

// SettlementState is decided once from the normalized status
type SettlementState int

const (
	Unsettled SettlementState = iota
	Settled
)

func (s SettlementState) String() string {
	if s == Settled {
		return "settled"
	}
	return "unsettled"
}

func settlementStateOf(status string) SettlementState {
	switch status {
	case "completed", "confirmed", "success", "settled":
		return Settled
	}
	return Unsettled
}

// Amount holds the textual form of a JSON amount, which may be sent as a
// number or as a numeric string
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	// Keep other literals verbatim, the validator rejects non-numbers
	*a = Amount(data)
	return nil
}

// RawRequest is a settlement request as received from a caller
type RawRequest struct {
	Status           *string `json:"status,omitempty"`
	ExternalRef      *string `json:"externalRef,omitempty"`
	BlockchainTxHash *string `json:"blockchainTxHash,omitempty"`
	IdempotencyKey   *string `json:"idempotencyKey,omitempty"`
	UserID           string  `json:"userId"`
	PoolID           string  `json:"poolId"`
	Type             string  `json:"type"`
	Amount           Amount  `json:"amount"`
}

// Request is a validated and normalized settlement request. PoolID is still
// the caller's pool-or-herd identifier
type Request struct {
	ExternalRef    *string
	IdempotencyKey *string
	UserID         string
	PoolID         string
	Type           TransactionType
	Status         string
	Amount         int64
	Delta          int64
	State          SettlementState
}

// Validator normalizes raw requests. It never touches storage
type Validator struct {
	defaultStatus string
}

// NewValidator returns a validator applying defaultStatus to requests with
// no status. An empty value means DefaultStatus
func NewValidator(defaultStatus string) *Validator {
	defaultStatus = strings.ToLower(strings.TrimSpace(defaultStatus))
	if defaultStatus == "" {
		defaultStatus = DefaultStatus
	}
	return &Validator{defaultStatus: defaultStatus}
}

// DefaultStatus returns the status applied to requests that carry none
func (v *Validator) DefaultStatus() string {
	return v.defaultStatus
}

// Validate applies the request rules in order and stops at the first failure
func (v *Validator) Validate(raw RawRequest) (Request, error) {
	var req Request
	if !uuidPattern.MatchString(raw.UserID) {
		return req, invalid(CodeInvalidFormat, "userId", "invalid userId format")
	}
	if !uuidPattern.MatchString(raw.PoolID) {
		return req, invalid(CodeInvalidFormat, "poolId", "invalid poolId format")
	}
	txType, ok := parseType(raw.Type)
	if !ok {
		return req, invalid(
			CodeInvalidType,
			"type",
			"type must be one of: buy, sell, mint, redeem",
		)
	}
	amount, err := parseAmount(raw.Amount)
	if err != nil {
		return req, err
	}
	status := v.defaultStatus
	if raw.Status != nil && *raw.Status != "" {
		status = strings.ToLower(strings.TrimSpace(*raw.Status))
	}
	externalRef := raw.ExternalRef
	if externalRef == nil {
		externalRef = raw.BlockchainTxHash
	}
	var idempotencyKey *string
	if raw.IdempotencyKey != nil {
		key := strings.TrimSpace(*raw.IdempotencyKey)
		if len(key) > MaxIdempotencyKeyLength {
			return req, invalid(
				CodeInvalidFormat,
				"idempotencyKey",
				"idempotencyKey must be at most %d characters",
				MaxIdempotencyKeyLength,
			)
		}
		if key != "" {
			idempotencyKey = &key
		}
	}
	req = Request{
		UserID:         strings.ToLower(raw.UserID),
		PoolID:         strings.ToLower(raw.PoolID),
		Type:           txType,
		Amount:         amount,
		Delta:          txType.Sign() * amount,
		Status:         status,
		State:          settlementStateOf(status),
		ExternalRef:    externalRef,
		IdempotencyKey: idempotencyKey,
	}
	return req, nil
}

func parseAmount(raw Amount) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, invalid(CodeInvalidAmount, "amount", "amount must be a number")
	}
	if !d.IsInteger() {
		return 0, invalid(CodeInvalidAmount, "amount", "amount must be an integer")
	}
	if !d.IsPositive() {
		return 0, invalid(CodeInvalidAmount, "amount", "amount must be positive")
	}
	if d.GreaterThan(maxAmount) {
		return 0, invalid(CodeInvalidAmount, "amount", "amount is too large")
	}
	return d.IntPart(), nil
}
