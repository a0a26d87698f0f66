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
	"github.com/blinklabs-io/herdledger/ledger"
)

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Class   string `json:"class"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody under an "error" key
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	IsHealthy bool   `json:"is_healthy"`
	Error     string `json:"error,omitempty"`
}

// SettleRequest is the body of POST /api/transactions
type SettleRequest = ledger.RawRequest

// SettleResponse is the body of a successful settlement
type SettleResponse = ledger.SettlementResult
