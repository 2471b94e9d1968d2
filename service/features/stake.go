package features

import (
	"context"
	"fmt"
	"time"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// maxSeedLen is the longest seed CreateAccountWithSeed accepts.
const maxSeedLen = 32

// StakeRequest creates a stake account funded by the authority and
// delegates it to Vote. The authority becomes staker and withdrawer.
type StakeRequest struct {
	Common
	Vote     solana.PublicKey
	Lamports uint64
	// Seed derives the stake account address from the authority. A
	// time-based seed is generated when empty.
	Seed string
}

// StakeAddress returns the stake account derived from owner and seed.
func StakeAddress(owner solana.PublicKey, seed string) (solana.PublicKey, error) {
	return solana.CreateWithSeed(owner, seed, solclient.StakeProgramID)
}

// PrepareStake returns the prepared transaction and the stake account it
// creates.
func (h *Helpers) PrepareStake(ctx context.Context, req StakeRequest) (*txn.Prepared, solana.PublicKey, error) {
	if req.Lamports == 0 {
		return nil, solana.PublicKey{}, fmt.Errorf("stake: amount must be positive")
	}
	seed := req.Seed
	if seed == "" {
		seed = fmt.Sprintf("stake:%d", time.Now().UnixNano())
	}
	if len(seed) > maxSeedLen {
		return nil, solana.PublicKey{}, fmt.Errorf("stake: seed longer than %d bytes", maxSeedLen)
	}

	var stake solana.PublicKey
	prepared, err := h.prepare(ctx, req.Common, req.Lifetime, func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
		rent, err := h.pipeline.RPC().GetMinimumBalanceForRentExemption(ctx, solclient.StakeAccountSize, req.Commitment)
		if err != nil {
			return nil, fmt.Errorf("failed to get stake rent: %w", err)
		}
		stake, err = StakeAddress(payer, seed)
		if err != nil {
			return nil, fmt.Errorf("failed to derive stake account: %w", err)
		}

		create, err := solclient.NewCreateAccountWithSeedInstruction(
			payer, stake, payer, seed,
			req.Lamports+rent, solclient.StakeAccountSize,
			solclient.StakeProgramID,
		)
		if err != nil {
			return nil, err
		}
		initialize, err := solclient.NewStakeInitializeInstruction(stake, payer, payer, solclient.Lockup{})
		if err != nil {
			return nil, err
		}
		delegate, err := solclient.NewDelegateStakeInstruction(stake, req.Vote, payer)
		if err != nil {
			return nil, err
		}
		return []solana.Instruction{create, initialize, delegate}, nil
	})
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return prepared, stake, nil
}

func (h *Helpers) SendStake(ctx context.Context, req StakeRequest, opts txn.SendOptions) (solana.Signature, solana.PublicKey, error) {
	prepared, stake, err := h.PrepareStake(ctx, req)
	if err != nil {
		return solana.Signature{}, solana.PublicKey{}, err
	}
	sig, err := h.SendPrepared(ctx, prepared, opts)
	if err != nil {
		return solana.Signature{}, stake, err
	}
	h.logger.InfoContext(ctx, "stake delegated",
		"stake_account", stake.String(),
		"vote_account", req.Vote.String(),
		"lamports", req.Lamports,
		"signature", sig.String(),
	)
	return sig, stake, nil
}

// UnstakeRequest deactivates StakeAccount.
type UnstakeRequest struct {
	Common
	StakeAccount solana.PublicKey
}

func (h *Helpers) PrepareUnstake(ctx context.Context, req UnstakeRequest) (*txn.Prepared, error) {
	return h.prepare(ctx, req.Common, req.Lifetime, func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
		ix, err := solclient.NewDeactivateStakeInstruction(req.StakeAccount, payer)
		if err != nil {
			return nil, err
		}
		return []solana.Instruction{ix}, nil
	})
}

func (h *Helpers) SendUnstake(ctx context.Context, req UnstakeRequest, opts txn.SendOptions) (solana.Signature, error) {
	prepared, err := h.PrepareUnstake(ctx, req)
	if err != nil {
		return solana.Signature{}, err
	}
	return h.SendPrepared(ctx, prepared, opts)
}

// WithdrawRequest withdraws Lamports from an inactive StakeAccount to
// Destination, or to the authority when Destination is zero.
type WithdrawRequest struct {
	Common
	StakeAccount solana.PublicKey
	Destination  solana.PublicKey
	Lamports     uint64
}

func (h *Helpers) PrepareWithdraw(ctx context.Context, req WithdrawRequest) (*txn.Prepared, error) {
	if req.Lamports == 0 {
		return nil, fmt.Errorf("withdraw: amount must be positive")
	}
	return h.prepare(ctx, req.Common, req.Lifetime, func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
		destination := req.Destination
		if destination.IsZero() {
			destination = payer
		}
		ix, err := solclient.NewWithdrawStakeInstruction(req.StakeAccount, destination, payer, req.Lamports)
		if err != nil {
			return nil, err
		}
		return []solana.Instruction{ix}, nil
	})
}

func (h *Helpers) SendWithdraw(ctx context.Context, req WithdrawRequest, opts txn.SendOptions) (solana.Signature, error) {
	prepared, err := h.PrepareWithdraw(ctx, req)
	if err != nil {
		return solana.Signature{}, err
	}
	return h.SendPrepared(ctx, prepared, opts)
}

// StakeAccount is one stake account owned by a withdraw authority.
type StakeAccount struct {
	Address  solana.PublicKey
	Lamports uint64
	solclient.StakeState
}

// StakeAccounts lists the stake accounts whose withdraw authority is owner.
func (h *Helpers) StakeAccounts(ctx context.Context, owner solana.PublicKey, commitment rpc.CommitmentType) ([]StakeAccount, error) {
	res, err := h.pipeline.RPC().GetProgramAccountsWithOpts(ctx, solclient.StakeProgramID, &rpc.GetProgramAccountsOpts{
		Commitment: commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{DataSize: solclient.StakeAccountSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: solclient.StakeWithdrawerOffset, Bytes: solana.Base58(owner[:])}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stake accounts of %s: %w", owner, err)
	}

	out := make([]StakeAccount, 0, len(res))
	for _, keyed := range res {
		if keyed == nil || keyed.Account == nil || keyed.Account.Data == nil {
			continue
		}
		decoded, err := solclient.DecodeStakeAccount(keyed.Account.Data.GetBinary())
		if err != nil {
			h.logger.WarnContext(ctx, "skipping undecodable stake account",
				"address", keyed.Pubkey.String(),
				"error", err,
			)
			continue
		}
		out = append(out, StakeAccount{
			Address:    keyed.Pubkey,
			Lamports:   keyed.Account.Lamports,
			StakeState: decoded,
		})
	}
	return out, nil
}
