// Package features builds the transaction-producing helpers (transfers,
// SPL token transfers, staking, wrapped SOL) on top of the txn pipeline.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
)

// Common carries the fields every feature request shares.
type Common struct {
	Authority txn.Authority
	// Lifetime is used verbatim when set.
	Lifetime   *txn.Lifetime
	Commitment rpc.CommitmentType
	Version    solana.MessageVersion
}

// Helpers exposes the feature helpers.
type Helpers struct {
	pipeline     *txn.Pipeline
	logger       *slog.Logger
	priorityFee  uint64
	computeLimit uint32
}

// Option configures Helpers.
type Option func(*Helpers)

// WithPriorityFee prepends a compute unit price, in micro-lamports, to every
// transaction.
func WithPriorityFee(microLamports uint64) Option {
	return func(h *Helpers) { h.priorityFee = microLamports }
}

// WithComputeUnitLimit prepends a compute unit limit to every transaction.
func WithComputeUnitLimit(units uint32) Option {
	return func(h *Helpers) { h.computeLimit = units }
}

// New creates the helpers.
func New(pipeline *txn.Pipeline, logger *slog.Logger, opts ...Option) *Helpers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Helpers{pipeline: pipeline, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Pipeline returns the underlying pipeline.
func (h *Helpers) Pipeline() *txn.Pipeline { return h.pipeline }

func (h *Helpers) budget() []solana.Instruction {
	var ixs []solana.Instruction
	if h.computeLimit > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitLimitInstruction(h.computeLimit).Build())
	}
	if h.priorityFee > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitPriceInstruction(h.priorityFee).Build())
	}
	return ixs
}

// prepare runs the pipeline prepare with the compute budget prefix.
func (h *Helpers) prepare(ctx context.Context, c Common, lifetime *txn.Lifetime, build txn.InstructionBuilder) (*txn.Prepared, error) {
	return h.pipeline.Prepare(ctx, txn.PrepareRequest{
		Authority: c.Authority,
		Instructions: func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
			ixs, err := build(ctx, payer)
			if err != nil {
				return nil, err
			}
			return append(h.budget(), ixs...), nil
		},
		Lifetime:   lifetime,
		Commitment: c.Commitment,
		Version:    c.Version,
	})
}

// SendPrepared submits a transaction produced by any Prepare helper.
func (h *Helpers) SendPrepared(ctx context.Context, prepared *txn.Prepared, opts txn.SendOptions) (solana.Signature, error) {
	return h.pipeline.Send(ctx, prepared, opts)
}

// accountExists reports whether address holds an account at commitment.
func (h *Helpers) accountExists(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) (bool, error) {
	_, err := h.pipeline.RPC().GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: commitment,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, rpc.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up account %s: %w", address, err)
	}
}
