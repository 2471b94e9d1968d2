package features

import (
	"context"
	"fmt"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// WrapRequest moves Lamports into the authority's wrapped SOL account,
// creating it when missing.
type WrapRequest struct {
	Common
	Lamports uint64
}

// UnwrapRequest closes the authority's wrapped SOL account and returns its
// lamports to the authority.
type UnwrapRequest struct {
	Common
}

func (h *Helpers) PrepareWrap(ctx context.Context, req WrapRequest) (*txn.Prepared, error) {
	return h.prepareWrap(ctx, req, req.Lifetime)
}

func (h *Helpers) prepareWrap(ctx context.Context, req WrapRequest, lifetime *txn.Lifetime) (*txn.Prepared, error) {
	if req.Lamports == 0 {
		return nil, fmt.Errorf("wrap: amount must be positive")
	}
	return h.prepare(ctx, req.Common, lifetime, func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
		ata, _, err := solana.FindAssociatedTokenAddress(payer, solclient.NativeMint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive wrapped SOL account: %w", err)
		}
		// Checked on every prepare; a retry may find the account created.
		exists, err := h.accountExists(ctx, ata, req.Commitment)
		if err != nil {
			return nil, err
		}

		var ixs []solana.Instruction
		if !exists {
			ixs = append(ixs, solclient.NewCreateIdempotentATAInstruction(payer, ata, payer, solclient.NativeMint))
		}
		ixs = append(ixs,
			system.NewTransferInstruction(req.Lamports, payer, ata).Build(),
			token.NewSyncNativeInstruction(ata).Build(),
		)
		return ixs, nil
	})
}

// SendWrap prepares and sends a wrap, retrying once with a fresh blockhash
// if the first attempt expired.
func (h *Helpers) SendWrap(ctx context.Context, req WrapRequest, opts txn.SendOptions) (solana.Signature, error) {
	return h.pipeline.SendWithExpiryRetry(ctx, func(ctx context.Context, lifetime *txn.Lifetime) (*txn.Prepared, error) {
		return h.prepareWrap(ctx, req, lifetime)
	}, req.Lifetime, opts)
}

func (h *Helpers) PrepareUnwrap(ctx context.Context, req UnwrapRequest) (*txn.Prepared, error) {
	return h.prepareUnwrap(ctx, req, req.Lifetime)
}

func (h *Helpers) prepareUnwrap(ctx context.Context, req UnwrapRequest, lifetime *txn.Lifetime) (*txn.Prepared, error) {
	return h.prepare(ctx, req.Common, lifetime, func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
		ata, _, err := solana.FindAssociatedTokenAddress(payer, solclient.NativeMint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive wrapped SOL account: %w", err)
		}
		return []solana.Instruction{
			token.NewCloseAccountInstruction(ata, payer, payer, []solana.PublicKey{}).Build(),
		}, nil
	})
}

// SendUnwrap prepares and sends an unwrap with the same single retry as
// SendWrap.
func (h *Helpers) SendUnwrap(ctx context.Context, req UnwrapRequest, opts txn.SendOptions) (solana.Signature, error) {
	return h.pipeline.SendWithExpiryRetry(ctx, func(ctx context.Context, lifetime *txn.Lifetime) (*txn.Prepared, error) {
		return h.prepareUnwrap(ctx, req, lifetime)
	}, req.Lifetime, opts)
}
