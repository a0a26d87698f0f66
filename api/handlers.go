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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blinklabs-io/herdledger/ledger"
)

const (
	maxRequestBodySize = 1 << 20

	IdempotencyKeyHeader = "Idempotency-Key"
)

// writeJSON writes a JSON response with the given status
// code.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func statusForClass(class ledger.Class) int {
	switch class {
	case ledger.ClassValidation, ledger.ClassInsufficientBalance:
		return http.StatusBadRequest
	case ledger.ClassNotFound:
		return http.StatusNotFound
	case ledger.ClassConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps err to its class and writes the error body. Internal
// errors are logged and answered without detail
func (s *Server) writeError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
) {
	class := ledger.ClassOf(err)
	status := statusForClass(class)
	body := ErrorBody{
		Class:   string(class),
		Code:    string(ledger.CodeOf(err)),
		Message: err.Error(),
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		body.Message = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: body})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error: ErrorBody{
			Class:   string(ledger.ClassValidation),
			Code:    string(ledger.CodeInvalidFormat),
			Message: message,
		},
	})
}

// decodeBody reads a single JSON object from the request body
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeBadRequest(w, "request body too large")
			return false
		}
		writeBadRequest(w, "malformed JSON body")
		return false
	}
	return true
}

// handleHealth handles GET /health and pings the metadata store
func (s *Server) handleHealth(
	w http.ResponseWriter,
	r *http.Request,
) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			IsHealthy: false,
			Error:     "database unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleSettle handles POST /api/transactions
func (s *Server) handleSettle(
	w http.ResponseWriter,
	r *http.Request,
) {
	var req SettleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IdempotencyKey == nil {
		if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
			req.IdempotencyKey = &key
		}
	}
	if !s.authorizeUser(w, r, req.UserID) {
		return
	}
	result, err := s.ledger.Settle(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// handleReceipt handles GET /api/transactions/{transactionId}/receipt
func (s *Server) handleReceipt(
	w http.ResponseWriter,
	r *http.Request,
) {
	receipt, err := s.ledger.Receipt(r.Context(), r.PathValue("transactionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.authorizeUser(w, r, receipt.UserID) {
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleTransaction handles GET /api/transactions/{transactionId}
func (s *Server) handleTransaction(
	w http.ResponseWriter,
	r *http.Request,
) {
	tx, err := s.ledger.Transaction(r.Context(), r.PathValue("transactionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.authorizeUser(w, r, tx.UserID) {
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handleUserOwnership handles GET /api/users/{userId}/ownership
func (s *Server) handleUserOwnership(
	w http.ResponseWriter,
	r *http.Request,
) {
	userID := r.PathValue("userId")
	if !s.authorizeUser(w, r, userID) {
		return
	}
	ret, err := s.ledger.UserOwnership(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, ret)
}

// handleUserTransactions handles GET /api/users/{userId}/transactions
func (s *Server) handleUserTransactions(
	w http.ResponseWriter,
	r *http.Request,
) {
	params, err := ParsePagination(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	userID := r.PathValue("userId")
	if !s.authorizeUser(w, r, userID) {
		return
	}
	ret, err := s.ledger.UserTransactions(
		r.Context(),
		userID,
		params.ListOptions(),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, ret)
}

// handlePools handles GET /api/pools
func (s *Server) handlePools(
	w http.ResponseWriter,
	r *http.Request,
) {
	ret, err := s.ledger.Pools(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, ret)
}

// handlePool handles GET /api/pools/{poolId}
func (s *Server) handlePool(
	w http.ResponseWriter,
	r *http.Request,
) {
	ret, err := s.ledger.Pool(r.Context(), r.PathValue("poolId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

// handlePoolOwnership handles GET /api/pools/{poolId}/ownership
func (s *Server) handlePoolOwnership(
	w http.ResponseWriter,
	r *http.Request,
) {
	ret, err := s.ledger.PoolOwnership(r.Context(), r.PathValue("poolId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, ret)
}

// handlePoolTransactions handles GET /api/pools/{poolId}/transactions
func (s *Server) handlePoolTransactions(
	w http.ResponseWriter,
	r *http.Request,
) {
	params, err := ParsePagination(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ret, err := s.ledger.PoolTransactions(
		r.Context(),
		r.PathValue("poolId"),
		params.ListOptions(),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, ret)
}

// handlePatchHerd handles PATCH /api/herds/{herdId}
func (s *Server) handlePatchHerd(
	w http.ResponseWriter,
	r *http.Request,
) {
	var patch ledger.HerdPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	herd, err := s.ledger.PatchHerd(r.Context(), r.PathValue("herdId"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, herd)
}

// writeList answers with a JSON array, never null
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}
