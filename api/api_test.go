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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/herdledger/database"
	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/types"
	"github.com/blinklabs-io/herdledger/internal/test/testutil"
	"github.com/blinklabs-io/herdledger/ledger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID  = testutil.UserID
	otherUserID = testutil.OtherUserID
	testHerdID  = testutil.HerdID
	testPoolID  = testutil.PoolID
	unknownID   = testutil.UnknownID
)

func newTestLedger(
	t *testing.T,
	seeds ...func(*testing.T, *database.Database),
) *ledger.Ledger {
	t.Helper()
	db := testutil.NewDatabase(t)
	testutil.SeedDirectory(t, db)
	for _, seed := range seeds {
		seed(t, db)
	}
	l, err := ledger.New(ledger.Config{Database: db, DisableReceipts: true})
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func doRequest(
	t *testing.T,
	h http.Handler,
	method string,
	path string,
	body string,
	header http.Header,
) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func settleBody(txType string, amount string, extra string) string {
	return `{"userId":"` + testUserID + `","poolId":"` + testPoolID +
		`","type":"` + txType + `","amount":` + amount + extra + `}`
}

func TestSettleEndpoint(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	h := s.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "20", ""), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result SettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OwnershipUpdated)
	assert.Equal(t, int64(20), result.Delta)
	require.NotNil(t, result.Ownership)
	assert.Equal(t, int64(20), result.Ownership.TokenAmount)

	rec = doRequest(
		t, h, http.MethodPost, "/api/transactions",
		settleBody("buy", `"5"`, `,"status":"pending"`), nil,
	)
	require.Equal(t, http.StatusCreated, rec.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, false, raw["ownershipUpdated"])
	assert.Contains(t, raw, "ownership")
	assert.Nil(t, raw["ownership"])
	assert.NotContains(t, raw, "replayed")
}

func TestSettleEndpointErrors(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	h := s.Handler()
	testDefs := []struct {
		name   string
		body   string
		status int
		class  ledger.Class
		code   ledger.Code
	}{
		{
			name:   "malformed JSON",
			body:   `{"userId":`,
			status: http.StatusBadRequest,
			class:  ledger.ClassValidation,
			code:   ledger.CodeInvalidFormat,
		},
		{
			name:   "bad amount",
			body:   settleBody("buy", "1.5", ""),
			status: http.StatusBadRequest,
			class:  ledger.ClassValidation,
			code:   ledger.CodeInvalidAmount,
		},
		{
			name:   "bad type",
			body:   settleBody("gift", "1", ""),
			status: http.StatusBadRequest,
			class:  ledger.ClassValidation,
			code:   ledger.CodeInvalidType,
		},
		{
			name: "unknown user",
			body: `{"userId":"` + unknownID + `","poolId":"` + testPoolID +
				`","type":"buy","amount":1}`,
			status: http.StatusNotFound,
			class:  ledger.ClassNotFound,
			code:   ledger.CodeUserNotFound,
		},
		{
			name: "unknown pool",
			body: `{"userId":"` + testUserID + `","poolId":"` + unknownID +
				`","type":"buy","amount":1}`,
			status: http.StatusNotFound,
			class:  ledger.ClassNotFound,
			code:   ledger.CodePoolNotFound,
		},
		{
			name:   "insufficient balance",
			body:   settleBody("sell", "25", ""),
			status: http.StatusBadRequest,
			class:  ledger.ClassInsufficientBalance,
			code:   ledger.CodeInsufficientBalance,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/transactions", testDef.body, nil)
			require.Equal(t, testDef.status, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, string(testDef.class), body.Class)
			assert.Equal(t, string(testDef.code), body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestSettleIdempotencyHeader(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	h := s.Handler()
	header := http.Header{IdempotencyKeyHeader: []string{"order-1"}}

	rec := doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("mint", "3", ""), header)
	require.Equal(t, http.StatusCreated, rec.Code)
	var first SettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("mint", "3", ""), header)
	require.Equal(t, http.StatusOK, rec.Code)
	var second SettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.TransactionID, second.Transaction.TransactionID)
	assert.Equal(t, int64(3), second.Ownership.TokenAmount)
}

func TestSettleIdempotencyConflictEndpoint(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	h := s.Handler()
	header := http.Header{IdempotencyKeyHeader: []string{"order-9"}}

	rec := doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("mint", "300", ""), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "3", ""), header)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("sell", "300", ""), header)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	body := decodeError(t, rec)
	assert.Equal(t, string(ledger.ClassConflict), body.Class)
	assert.Equal(t, string(ledger.CodeIdempotencyConflict), body.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/users/"+testUserID+"/ownership", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var holdings []models.UserOwnershipView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(303), holdings[0].TokenAmount)
}

func TestTransactionEndpoint(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	h := s.Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "4", ""), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var result SettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	rec = doRequest(t, h, http.MethodGet, "/api/transactions/"+result.Transaction.TransactionID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tx models.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tx))
	assert.Equal(t, result.Transaction.TransactionID, tx.TransactionID)
	assert.Equal(t, testUserID, tx.UserID)
	assert.Equal(t, int64(4), tx.Amount)

	rec = doRequest(t, h, http.MethodGet, "/api/transactions/"+unknownID, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(ledger.CodeTransactionNotFound), decodeError(t, rec).Code)

	rec = doRequest(t, h, http.MethodGet, "/api/transactions/not-a-uuid", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHerdWithoutPoolEndpoints(t *testing.T) {
	s := New(Config{}, newTestLedger(t, testutil.SeedUnpooledHerd), nil)
	h := s.Handler()
	herdPath := "/api/pools/" + testutil.UnpooledHerdID

	rec := doRequest(t, h, http.MethodGet, "/api/pools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pools []models.PoolView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pools))
	require.Len(t, pools, 2)

	rec = doRequest(t, h, http.MethodGet, herdPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "poolId")
	assert.Nil(t, raw["poolId"])
	assert.Equal(t, testutil.UnpooledHerdID, raw["herdId"])

	rec = doRequest(t, h, http.MethodGet, herdPath+"/ownership", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, herdPath+"/transactions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/api/pools/"+unknownID+"/transactions", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(ledger.CodePoolNotFound), decodeError(t, rec).Code)
}

func TestPoolTransactionsIncludeEmail(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	h := s.Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "2", ""), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/pools/"+testPoolID+"/transactions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "investor@example.com", txs[0]["email"])
	assert.Equal(t, testUserID, txs[0]["userId"])
}

func TestDirectoryEndpoints(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	h := s.Handler()
	for range 3 {
		rec := doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "2", ""), nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/users/"+testUserID+"/ownership", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var holdings []models.UserOwnershipView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(6), holdings[0].TokenAmount)

	rec = doRequest(t, h, http.MethodGet, "/api/users/"+unknownID+"/ownership", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/api/users/"+testUserID+"/transactions?count=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []models.TransactionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	assert.Len(t, txs, 2)

	rec = doRequest(t, h, http.MethodGet, "/api/users/"+testUserID+"/transactions?page=2&count=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	assert.Len(t, txs, 1)

	rec = doRequest(t, h, http.MethodGet, "/api/pools/"+testPoolID+"/transactions?order=sideways", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/pools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pools []models.PoolView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pools))
	require.Len(t, pools, 1)

	rec = doRequest(t, h, http.MethodGet, "/api/pools/"+testHerdID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pool models.PoolView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pool))
	require.NotNil(t, pool.PoolID)
	assert.Equal(t, testPoolID, *pool.PoolID)

	rec = doRequest(t, h, http.MethodGet, "/api/pools/"+unknownID, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(ledger.CodePoolNotFound), decodeError(t, rec).Code)

	rec = doRequest(t, h, http.MethodGet, "/api/pools/not-a-uuid/ownership", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/pools/"+testPoolID+"/ownership", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var holders []models.PoolOwnershipView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holders))
	require.Len(t, holders, 1)
	assert.Equal(t, "investor@example.com", holders[0].Email)
}

func TestPatchHerdEndpoint(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	h := s.Handler()

	rec := doRequest(
		t, h, http.MethodPatch, "/api/herds/"+testHerdID,
		`{"listingPrice":"2500.75","verifiedFlag":true}`, nil,
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var herd models.Herd
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &herd))
	assert.True(t, herd.VerifiedFlag)
	assert.Equal(t, "2500.75", herd.ListingPrice.String())

	rec = doRequest(t, h, http.MethodPatch, "/api/herds/"+testHerdID, `{"headCount":3}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "headCount", strings.Split(decodeError(t, rec).Message, ":")[0])

	rec = doRequest(t, h, http.MethodPatch, "/api/herds/"+testHerdID, `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPatch, "/api/herds/"+unknownID, `{"herdName":"South"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(ledger.CodeHerdNotFound), decodeError(t, rec).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(Config{}, newTestLedger(t), nil)
	rec := doRequest(t, s.Handler(), http.MethodDelete, "/api/pools", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// stubLedger fails every call with err
type stubLedger struct {
	Ledger
	err error
}

func (s *stubLedger) Ping(context.Context) error {
	return s.err
}

func (s *stubLedger) Pools(context.Context) ([]models.PoolView, error) {
	return nil, s.err
}

func (s *stubLedger) PoolTransactions(
	_ context.Context,
	_ string,
	opts types.ListOptions,
) ([]models.PoolTransactionView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []models.PoolTransactionView{
		{Transaction: models.Transaction{Amount: int64(opts.Offset), Type: "buy"}},
	}, nil
}

func TestInternalErrorsHideDetail(t *testing.T) {
	s := New(Config{}, &stubLedger{err: errors.New("dial tcp 10.0.0.5:5432: refused")}, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/pools", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, string(ledger.ClassInternal), body.Class)
	assert.Equal(t, "internal server error", body.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestHealth(t *testing.T) {
	s := New(Config{}, &stubLedger{}, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_healthy":true}`, rec.Body.String())

	s = New(Config{}, &stubLedger{err: errors.New("closed")}, nil)
	rec = doRequest(t, s.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPaginationOffset(t *testing.T) {
	s := New(Config{}, &stubLedger{}, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/pools/"+testPoolID+"/transactions?count=10&page=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []models.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, int64(20), txs[0].Amount)
}

func TestHistoryPagesPastDefaultCount(t *testing.T) {
	l := newTestLedger(t)
	for range DefaultPaginationCount + 1 {
		_, err := l.Settle(context.Background(), ledger.RawRequest{
			UserID: testUserID,
			PoolID: testPoolID,
			Type:   "mint",
			Amount: "1",
		})
		require.NoError(t, err)
	}
	h := New(Config{}, l, nil).Handler()
	for _, base := range []string{
		"/api/pools/" + testPoolID + "/transactions",
		"/api/users/" + testUserID + "/transactions",
	} {
		rec := doRequest(t, h, http.MethodGet, base, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var txs []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
		assert.Len(t, txs, DefaultPaginationCount, base)

		rec = doRequest(t, h, http.MethodGet, base+"?page=2", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
		assert.Len(t, txs, 1, base)
	}
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	s := New(Config{JWTSecret: secret, JWTIssuer: "identity"}, &stubLedger{}, nil)
	h := s.Handler()
	path := "/api/pools/" + testPoolID + "/transactions"

	rec := doRequest(t, h, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)

	// Health stays open
	rec = doRequest(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	valid := signToken(t, secret, jwt.RegisteredClaims{
		Subject:   testUserID,
		Issuer:    "identity",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	rec = doRequest(t, h, http.MethodGet, path, "", http.Header{
		"Authorization": []string{"Bearer " + valid},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	testDefs := map[string]string{
		"wrong secret": signToken(t, "other", jwt.RegisteredClaims{
			Subject:   testUserID,
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}),
		"expired": signToken(t, secret, jwt.RegisteredClaims{
			Subject:   testUserID,
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}),
		"wrong issuer": signToken(t, secret, jwt.RegisteredClaims{
			Subject:   testUserID,
			Issuer:    "elsewhere",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}),
		"no expiry": signToken(t, secret, jwt.RegisteredClaims{
			Subject: testUserID,
			Issuer:  "identity",
		}),
		"no subject": signToken(t, secret, jwt.RegisteredClaims{
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}),
	}
	for name, token := range testDefs {
		rec = doRequest(t, h, http.MethodGet, path, "", http.Header{
			"Authorization": []string{"Bearer " + token},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func signRoleToken(t *testing.T, secret string, subject string, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestBearerSubjectBinding(t *testing.T) {
	const secret = "test-secret"
	s := New(Config{JWTSecret: secret}, newTestLedger(t), nil)
	h := s.Handler()
	bearer := func(token string) http.Header {
		return http.Header{"Authorization": []string{"Bearer " + token}}
	}
	investor := bearer(signRoleToken(t, secret, testUserID, "investor"))
	upper := bearer(signRoleToken(t, secret, strings.ToUpper(testUserID), "investor"))
	other := bearer(signRoleToken(t, secret, otherUserID, "investor"))
	admin := bearer(signRoleToken(t, secret, unknownID, "admin"))

	rec := doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "2", ""), investor)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result SettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	txPath := "/api/transactions/" + result.Transaction.TransactionID

	rec = doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "2", ""), upper)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "2", ""), other)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)

	rec = doRequest(t, h, http.MethodPost, "/api/transactions", settleBody("buy", "2", ""), admin)
	require.Equal(t, http.StatusCreated, rec.Code)

	testDefs := []struct {
		name   string
		path   string
		header http.Header
		status int
	}{
		{"own holdings", "/api/users/" + testUserID + "/ownership", investor, http.StatusOK},
		{"other holdings", "/api/users/" + testUserID + "/ownership", other, http.StatusForbidden},
		{"admin holdings", "/api/users/" + testUserID + "/ownership", admin, http.StatusOK},
		{"own history", "/api/users/" + testUserID + "/transactions", investor, http.StatusOK},
		{"other history", "/api/users/" + testUserID + "/transactions", other, http.StatusForbidden},
		{"own transaction", txPath, investor, http.StatusOK},
		{"other transaction", txPath, other, http.StatusForbidden},
		{"admin transaction", txPath, admin, http.StatusOK},
		{"pool reads stay open", "/api/pools/" + testPoolID + "/transactions", other, http.StatusOK},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodGet, testDef.path, "", testDef.header)
			assert.Equal(t, testDef.status, rec.Code, rec.Body.String())
		})
	}

	rec = doRequest(t, h, http.MethodGet, "/api/users/"+testUserID+"/ownership", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var holdings []models.UserOwnershipView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(6), holdings[0].TokenAmount)
}

func TestStartStop(t *testing.T) {
	s := New(Config{ListenAddress: "127.0.0.1:0"}, &stubLedger{}, nil)

	require.NoError(t, s.Start(t.Context()))
	s.mu.Lock()
	assert.NotNil(t, s.httpServer)
	s.mu.Unlock()

	require.Error(t, s.Start(t.Context()))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	s.mu.Lock()
	assert.Nil(t, s.httpServer)
	s.mu.Unlock()
}
