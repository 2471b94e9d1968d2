package features

import (
	"context"
	"fmt"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// TransferRequest moves native SOL from the authority to Destination.
type TransferRequest struct {
	Common
	Destination solana.PublicKey
	Lamports    uint64
}

func (h *Helpers) PrepareTransfer(ctx context.Context, req TransferRequest) (*txn.Prepared, error) {
	if req.Lamports == 0 {
		return nil, fmt.Errorf("transfer: amount must be positive")
	}
	return h.prepare(ctx, req.Common, req.Lifetime, func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
		return []solana.Instruction{
			system.NewTransferInstruction(req.Lamports, payer, req.Destination).Build(),
		}, nil
	})
}

func (h *Helpers) SendTransfer(ctx context.Context, req TransferRequest, opts txn.SendOptions) (solana.Signature, error) {
	prepared, err := h.PrepareTransfer(ctx, req)
	if err != nil {
		return solana.Signature{}, err
	}
	return h.SendPrepared(ctx, prepared, opts)
}

// TokenTransferRequest moves SPL tokens between the associated token
// accounts of the authority and Destination.
type TokenTransferRequest struct {
	Common
	Mint        solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
	// Decimals is read from the mint when nil.
	Decimals *uint8
	// CreateDestination adds an idempotent create of the destination ATA.
	CreateDestination bool
}

func (h *Helpers) PrepareTokenTransfer(ctx context.Context, req TokenTransferRequest) (*txn.Prepared, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("token transfer: amount must be positive")
	}
	return h.prepare(ctx, req.Common, req.Lifetime, func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
		decimals, err := h.decimals(ctx, req.Mint, req.Decimals, req.Commitment)
		if err != nil {
			return nil, err
		}
		source, _, err := solana.FindAssociatedTokenAddress(payer, req.Mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive source token account: %w", err)
		}
		destination, _, err := solana.FindAssociatedTokenAddress(req.Destination, req.Mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive destination token account: %w", err)
		}

		var ixs []solana.Instruction
		if req.CreateDestination {
			ixs = append(ixs, solclient.NewCreateIdempotentATAInstruction(payer, destination, req.Destination, req.Mint))
		}
		ixs = append(ixs, token.NewTransferCheckedInstruction(
			req.Amount,
			decimals,
			source,
			req.Mint,
			destination,
			payer,
			[]solana.PublicKey{},
		).Build())
		return ixs, nil
	})
}

func (h *Helpers) SendTokenTransfer(ctx context.Context, req TokenTransferRequest, opts txn.SendOptions) (solana.Signature, error) {
	prepared, err := h.PrepareTokenTransfer(ctx, req)
	if err != nil {
		return solana.Signature{}, err
	}
	return h.SendPrepared(ctx, prepared, opts)
}

func (h *Helpers) decimals(ctx context.Context, mint solana.PublicKey, known *uint8, commitment rpc.CommitmentType) (uint8, error) {
	if known != nil {
		return *known, nil
	}
	res, err := h.pipeline.RPC().GetAccountInfoWithOpts(ctx, mint, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: commitment,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch mint %s: %w", mint, err)
	}
	if res.Value == nil || res.Value.Data == nil {
		return 0, fmt.Errorf("mint %s has no data", mint)
	}
	return solclient.MintDecimals(res.Value.Data.GetBinary())
}
