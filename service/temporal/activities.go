package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solclient/service/features"
	"github.com/brojonat/solclient/service/metrics"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Non-retryable application error types returned by ConfirmTransfer.
const (
	ErrTypeTransactionFailed = "TransactionFailed"
	ErrTypeBlockhashExpired  = "BlockhashExpired"
	ErrTypeInvalidInput      = "InvalidInput"
)

// TransferInput contains the input parameters for a transfer.
type TransferInput struct {
	Destination string `json:"destination"`
	// Mint selects an SPL token transfer of Amount base units; empty moves
	// native SOL.
	Mint       string `json:"mint,omitempty"`
	Amount     uint64 `json:"amount"`
	Commitment string `json:"commitment,omitempty"`
}

// SendTransferResult contains the signature and lifetime of a submitted transfer.
type SendTransferResult struct {
	Signature            string `json:"signature"`
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"last_valid_block_height"`
	Commitment           string `json:"commitment"`
}

// ConfirmTransferInput contains parameters for the ConfirmTransfer activity.
type ConfirmTransferInput struct {
	Signature            string `json:"signature"`
	LastValidBlockHeight uint64 `json:"last_valid_block_height"`
	Commitment           string `json:"commitment"`
}

// TransferResult contains the result of a transfer workflow.
type TransferResult struct {
	Destination string    `json:"destination"`
	Mint        string    `json:"mint,omitempty"`
	Amount      uint64    `json:"amount"`
	Signature   *string   `json:"signature,omitempty"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	Error       *string   `json:"error,omitempty"`
}

// TransferPreparer builds transfer transactions. *features.Helpers
// implements it.
type TransferPreparer interface {
	PrepareTransfer(ctx context.Context, req features.TransferRequest) (*txn.Prepared, error)
	PrepareTokenTransfer(ctx context.Context, req features.TokenTransferRequest) (*txn.Prepared, error)
}

// Submitter sends and confirms prepared transactions. *txn.Pipeline
// implements it.
type Submitter interface {
	SendWithExpiryRetry(ctx context.Context, prepare txn.PrepareFunc, lifetime *txn.Lifetime, opts txn.SendOptions) (solana.Signature, error)
	ConfirmSignature(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType, lifetime *txn.Lifetime, interval time.Duration) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	transfers       TransferPreparer
	submitter       Submitter
	authority       txn.Authority
	confirmInterval time.Duration
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	transfers TransferPreparer,
	submitter Submitter,
	authority txn.Authority,
	confirmInterval time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		transfers:       transfers,
		submitter:       submitter,
		authority:       authority,
		confirmInterval: confirmInterval,
		metrics:         m,
		logger:          logger,
	}
}

// SendTransfer prepares, signs and submits a transfer from the worker's
// authority. An expired blockhash is retried once inside the pipeline with a
// fresh one; the activity itself must not be retried, since a second
// submission could move funds twice.
func (a *Activities) SendTransfer(ctx context.Context, input TransferInput) (result *SendTransferResult, err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("SendTransfer", err, time.Since(start).Seconds())
	}()

	destination, err := solana.PublicKeyFromBase58(input.Destination)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid destination %q", input.Destination), ErrTypeInvalidInput, err)
	}
	var mint solana.PublicKey
	if input.Mint != "" {
		if mint, err = solana.PublicKeyFromBase58(input.Mint); err != nil {
			return nil, temporalsdk.NewNonRetryableApplicationError(
				fmt.Sprintf("invalid mint %q", input.Mint), ErrTypeInvalidInput, err)
		}
	}
	commitment := rpc.CommitmentType(input.Commitment)

	a.logger.InfoContext(ctx, "sending transfer",
		"authority", a.authority.Address().String(),
		"destination", input.Destination,
		"mint", input.Mint,
		"amount", input.Amount,
	)

	var last *txn.Prepared
	prepare := func(ctx context.Context, lifetime *txn.Lifetime) (*txn.Prepared, error) {
		common := features.Common{Authority: a.authority, Lifetime: lifetime, Commitment: commitment}
		var prepared *txn.Prepared
		var err error
		if input.Mint == "" {
			prepared, err = a.transfers.PrepareTransfer(ctx, features.TransferRequest{
				Common:      common,
				Destination: destination,
				Lamports:    input.Amount,
			})
		} else {
			prepared, err = a.transfers.PrepareTokenTransfer(ctx, features.TokenTransferRequest{
				Common:            common,
				Mint:              mint,
				Destination:       destination,
				Amount:            input.Amount,
				CreateDestination: true,
			})
		}
		if err == nil {
			last = prepared
		}
		return prepared, err
	}

	sig, err := a.submitter.SendWithExpiryRetry(ctx, prepare, nil, txn.SendOptions{})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to send transfer",
			"destination", input.Destination,
			"error", err,
		)
		return nil, fmt.Errorf("failed to send transfer: %w", err)
	}

	result = &SendTransferResult{
		Signature:            sig.String(),
		Blockhash:            last.Lifetime.Blockhash.String(),
		LastValidBlockHeight: last.Lifetime.LastValidBlockHeight,
		Commitment:           string(last.Commitment),
	}

	a.logger.InfoContext(ctx, "transfer sent",
		"destination", input.Destination,
		"signature", result.Signature,
		"last_valid_block_height", result.LastValidBlockHeight,
	)

	return result, nil
}

// ConfirmTransfer waits for a submitted transfer to reach its commitment.
// Polling is read-only, so transient RPC failures may be retried; an
// on-chain failure or an expired blockhash is final.
func (a *Activities) ConfirmTransfer(ctx context.Context, input ConfirmTransferInput) (err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("ConfirmTransfer", err, time.Since(start).Seconds())
	}()

	sig, err := solana.SignatureFromBase58(input.Signature)
	if err != nil {
		return temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid signature %q", input.Signature), ErrTypeInvalidInput, err)
	}

	var lifetime *txn.Lifetime
	if input.LastValidBlockHeight > 0 {
		lifetime = &txn.Lifetime{LastValidBlockHeight: input.LastValidBlockHeight}
	}

	err = a.submitter.ConfirmSignature(ctx, sig, rpc.CommitmentType(input.Commitment), lifetime, a.confirmInterval)

	var txErr *solclient.TransactionError
	switch {
	case err == nil:
		a.logger.InfoContext(ctx, "transfer confirmed", "signature", input.Signature)
		return nil
	case errors.As(err, &txErr):
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeTransactionFailed, err)
	case errors.Is(err, txn.ErrBlockhashExpired):
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeBlockhashExpired, err)
	default:
		a.logger.WarnContext(ctx, "transfer confirmation failed",
			"signature", input.Signature,
			"error", err,
		)
		return fmt.Errorf("failed to confirm transfer: %w", err)
	}
}
