package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/solclient/service/db"
	"github.com/brojonat/solclient/service/state"
	"github.com/brojonat/solclient/service/temporal"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxIdempotencyKey  = 128
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// TransactionLister reads persisted transaction records. *db.Store
// implements it.
type TransactionLister interface {
	ListTransactions(ctx context.Context, params db.ListTransactionsParams) ([]*db.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*db.Transaction, error)
}

// TransferStarter starts durable transfers. *temporal.Client implements it.
type TransferStarter interface {
	StartTransfer(ctx context.Context, key string, input temporal.TransferInput) (string, error)
}

// handleGetState returns the current client state.
// GET /api/v1/state
func handleGetState(store *state.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, state.NewView(store.GetState()), http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists persisted transaction records.
// GET /api/v1/transactions?limit=N&offset=N
func handleListTransactions(store TransactionLister, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		// Parse limit (default 100, max 1000)
		limit, err := parseBoundedInt(query.Get("limit"), 100, 1, 1000)
		if err != nil {
			writeError(w, fmt.Sprintf("invalid limit parameter: %v", err), http.StatusBadRequest)
			return
		}

		// Parse offset (default 0)
		offset, err := parseBoundedInt(query.Get("offset"), 0, 0, -1)
		if err != nil {
			writeError(w, fmt.Sprintf("invalid offset parameter: %v", err), http.StatusBadRequest)
			return
		}

		transactions, err := store.ListTransactions(r.Context(), db.ListTransactionsParams{
			Limit:  int32(limit),
			Offset: int32(offset),
		})
		if err != nil {
			logger.Error("failed to list transactions", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("transactions listed", "count", len(transactions))

		resp := make([]transactionResponse, len(transactions))
		for i := range transactions {
			resp[i] = transactionToResponse(transactions[i])
		}

		writeJSON(w, map[string]interface{}{
			"transactions": resp,
			"count":        len(resp),
			"limit":        limit,
			"offset":       offset,
		}, http.StatusOK)
	})
}

// handleGetTransaction returns one persisted transaction record.
// GET /api/v1/transactions/{id}
func handleGetTransaction(store TransactionLister, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" || len(id) > maxIdempotencyKey {
			writeError(w, "invalid transaction id", http.StatusBadRequest)
			return
		}

		txn, err := store.GetTransaction(r.Context(), id)
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get transaction", "transaction_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, transactionToResponse(txn), http.StatusOK)
	})
}

type transferRequest struct {
	Destination string `json:"destination"`
	Mint        string `json:"mint,omitempty"`
	Amount      uint64 `json:"amount"`
	Commitment  string `json:"commitment,omitempty"`
}

// handleStartTransfer starts a durable transfer workflow.
// POST /api/v1/transfers
// The optional Idempotency-Key header names the workflow, so a retried
// request cannot start a second transfer.
func handleStartTransfer(starter TransferStarter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Destination); err != nil {
			writeError(w, fmt.Sprintf("invalid destination: %v", err), http.StatusBadRequest)
			return
		}
		if req.Mint != "" {
			if err := validateAddress(req.Mint); err != nil {
				writeError(w, fmt.Sprintf("invalid mint: %v", err), http.StatusBadRequest)
				return
			}
		}
		if req.Amount == 0 {
			writeError(w, "amount must be positive", http.StatusBadRequest)
			return
		}
		if err := validateCommitment(req.Commitment); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if len(key) > maxIdempotencyKey {
			writeError(w, "idempotency key too long", http.StatusBadRequest)
			return
		}

		workflowID, err := starter.StartTransfer(r.Context(), key, temporal.TransferInput{
			Destination: req.Destination,
			Mint:        req.Mint,
			Amount:      req.Amount,
			Commitment:  req.Commitment,
		})
		if err != nil {
			logger.Error("failed to start transfer", "destination", req.Destination, "error", err)
			writeError(w, "failed to start transfer", http.StatusInternalServerError)
			return
		}

		logger.Info("transfer started",
			"workflow_id", workflowID,
			"destination", req.Destination,
			"amount", req.Amount,
		)
		writeJSON(w, map[string]string{"workflow_id": workflowID}, http.StatusAccepted)
	})
}

// transactionResponse is the JSON response format for a transaction record.
type transactionResponse struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Address   string    `json:"address,omitempty"`
	Status    string    `json:"status"`
	Signature *string   `json:"signature,omitempty"`
	Error     *string   `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

func transactionToResponse(t *db.Transaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		Endpoint:  t.Endpoint,
		Address:   t.Address,
		Status:    t.Status,
		Signature: t.Signature,
		Error:     t.Error,
		UpdatedAt: t.UpdatedAt,
		CreatedAt: t.CreatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a base58 account address.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

func validateCommitment(c string) error {
	switch rpc.CommitmentType(c) {
	case "", rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return nil
	}
	return errorf("invalid commitment %q: must be processed, confirmed or finalized", c)
}

// parseBoundedInt parses s, returning def when empty. hi < 0 means no
// upper bound.
func parseBoundedInt(s string, def, lo, hi int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errorf("must be an integer")
	}
	if n < lo {
		return 0, errorf("must be at least %d", lo)
	}
	if hi >= 0 && n > hi {
		return 0, errorf("cannot exceed %d", hi)
	}
	return n, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
