package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/solclient/service/db"
	"github.com/brojonat/solclient/service/metrics"
	"github.com/brojonat/solclient/service/state"
	"github.com/brojonat/solclient/service/temporal"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDestination = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStateStore() *state.Store {
	return state.NewStore(state.Initial(state.ClusterState{
		Endpoint:          "https://rpc.test",
		WebsocketEndpoint: "wss://rpc.test",
		Commitment:        rpc.CommitmentConfirmed,
	}))
}

// fakeTransactions is an in-memory TransactionLister.
type fakeTransactions struct {
	txns    []*db.Transaction
	err     error
	lastArg db.ListTransactionsParams
}

func (f *fakeTransactions) ListTransactions(ctx context.Context, params db.ListTransactionsParams) ([]*db.Transaction, error) {
	f.lastArg = params
	if f.err != nil {
		return nil, f.err
	}
	end := int(params.Offset) + int(params.Limit)
	if end > len(f.txns) {
		end = len(f.txns)
	}
	if int(params.Offset) >= end {
		return nil, nil
	}
	return f.txns[params.Offset:end], nil
}

func (f *fakeTransactions) GetTransaction(ctx context.Context, id string) (*db.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, t := range f.txns {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func TestHandleGetState(t *testing.T) {
	// Setup
	store := newTestStateStore()
	store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithClusterStatus(state.ClusterReady{LatencyMs: 12})
	})
	handler := handleGetState(store)

	// Act
	req := httptest.NewRequest("GET", "/api/v1/state", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var view state.View
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	assert.Equal(t, "https://rpc.test", view.Cluster.Endpoint)
	assert.Equal(t, "ready", view.Cluster.Status)
	require.NotNil(t, view.Cluster.LatencyMs)
	assert.Equal(t, int64(12), *view.Cluster.LatencyMs)
	assert.Equal(t, "disconnected", view.Wallet.Status)
}

func TestHandleListTransactions(t *testing.T) {
	sig := solana.Signature{7}.String()
	store := &fakeTransactions{txns: []*db.Transaction{
		{ID: "a", Endpoint: "https://rpc.test", Status: "confirmed", Signature: &sig, UpdatedAt: time.Unix(2, 0)},
		{ID: "b", Endpoint: "https://rpc.test", Status: "sending", UpdatedAt: time.Unix(1, 0)},
	}}
	handler := handleListTransactions(store, testLogger())

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCount  int
		expectedError  string
	}{
		{name: "defaults", query: "", expectedStatus: http.StatusOK, expectedCount: 2},
		{name: "paged", query: "?limit=1&offset=1", expectedStatus: http.StatusOK, expectedCount: 1},
		{name: "limit not a number", query: "?limit=ten", expectedStatus: http.StatusBadRequest, expectedError: "invalid limit"},
		{name: "limit too large", query: "?limit=5000", expectedStatus: http.StatusBadRequest, expectedError: "cannot exceed 1000"},
		{name: "negative offset", query: "?offset=-1", expectedStatus: http.StatusBadRequest, expectedError: "invalid offset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/transactions"+tt.query, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
				return
			}
			var resp struct {
				Transactions []transactionResponse `json:"transactions"`
				Count        int                   `json:"count"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedCount, resp.Count)
			assert.Len(t, resp.Transactions, tt.expectedCount)
		})
	}

	// Defaults reach the store
	req := httptest.NewRequest("GET", "/api/v1/transactions", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, db.ListTransactionsParams{Limit: 100, Offset: 0}, store.lastArg)
}

func TestHandleListTransactions_StoreError(t *testing.T) {
	handler := handleListTransactions(&fakeTransactions{err: errors.New("connection refused")}, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/transactions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestHandleGetTransaction(t *testing.T) {
	store := &fakeTransactions{txns: []*db.Transaction{{ID: "a", Status: "confirmed", Address: testDestination}}}
	handler := handleGetTransaction(store, testLogger())

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/transactions/a", nil)
		req.SetPathValue("id", "a")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp transactionResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "confirmed", resp.Status)
		assert.Equal(t, testDestination, resp.Address)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/transactions/zzz", nil)
		req.SetPathValue("id", "zzz")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleStartTransfer(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		key            string
		expectedStatus int
		checkError     func(t *testing.T, body string)
	}{
		{
			name:           "sol transfer",
			body:           `{"destination":"` + testDestination + `","amount":5000}`,
			key:            "order-42",
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "token transfer",
			body:           `{"destination":"` + testDestination + `","mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","amount":1,"commitment":"finalized"}`,
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "malformed JSON",
			body:           `{"destination":`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid request body")
			},
		},
		{
			name:           "extremely large request body",
			body:           `{"destination":"` + strings.Repeat("A", 2<<20) + `"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "request body too large")
			},
		},
		{
			name:           "missing destination",
			body:           `{"amount":1}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "address is required")
			},
		},
		{
			name:           "non base58 destination",
			body:           `{"destination":"0OIl","amount":1}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "base58")
			},
		},
		{
			name:           "zero amount",
			body:           `{"destination":"` + testDestination + `","amount":0}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "amount must be positive")
			},
		},
		{
			name:           "unknown commitment",
			body:           `{"destination":"` + testDestination + `","amount":1,"commitment":"max"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid commitment")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			starter := temporal.NewMockStarter()
			handler := handleStartTransfer(starter, testLogger())

			// Act
			req := httptest.NewRequest("POST", "/api/v1/transfers", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.key != "" {
				req.Header.Set("Idempotency-Key", tt.key)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			// Assert
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.checkError != nil {
				tt.checkError(t, w.Body.String())
				assert.Equal(t, 0, starter.CallCount(), "invalid requests must not start a workflow")
				return
			}

			var resp map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			input, ok := starter.Started(resp["workflow_id"])
			require.True(t, ok)
			assert.Equal(t, testDestination, input.Destination)
			assert.Equal(t, tt.key, starter.LastKey())
		})
	}
}

func TestHandleStartTransfer_TemporalFailure(t *testing.T) {
	starter := temporal.NewMockStarter()
	starter.SetStartError(errors.New("temporal service unavailable"))
	handler := handleStartTransfer(starter, testLogger())

	req := httptest.NewRequest("POST", "/api/v1/transfers", strings.NewReader(`{"destination":"`+testDestination+`","amount":1}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var errResp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Equal(t, "failed to start transfer", errResp["error"])
}

func TestServerHandler_Routes(t *testing.T) {
	// Setup
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	srv := New(":0", newTestStateStore(), nil, nil, nil, m, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{name: "health", method: "GET", path: "/healthz", expectedStatus: http.StatusOK},
		{name: "state", method: "GET", path: "/api/v1/state", expectedStatus: http.StatusOK},
		{name: "metrics", method: "GET", path: "/metrics", expectedStatus: http.StatusOK},
		{name: "preflight", method: "OPTIONS", path: "/api/v1/state", expectedStatus: http.StatusNoContent},
		{name: "history disabled without a store", method: "GET", path: "/api/v1/transactions", expectedStatus: http.StatusNotFound},
		{name: "transfers disabled without temporal", method: "POST", path: "/api/v1/transfers", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}

	// The state route went through the metrics middleware
	assert.Equal(t, 1, testutil.CollectAndCount(registry, "http_requests_total"))
}
