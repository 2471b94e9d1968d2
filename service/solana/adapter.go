package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// realRPCClient adapts the actual solana-go RPC client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string) RPCClient {
	return &realRPCClient{
		client: rpc.New(rpcURL),
	}
}

func (r *realRPCClient) GetHealth(ctx context.Context) (string, error) {
	return r.client.GetHealth(ctx)
}

func (r *realRPCClient) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	return r.client.GetSlot(ctx, commitment)
}

func (r *realRPCClient) GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	return r.client.GetBlockHeight(ctx, commitment)
}

func (r *realRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return r.client.GetLatestBlockhash(ctx, commitment)
}

func (r *realRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return r.client.GetBalance(ctx, account, commitment)
}

// GetAccountInfoWithOpts keeps the response context for a missing account,
// which solana-go drops when it returns rpc.ErrNotFound.
func (r *realRPCClient) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	var out *rpc.GetAccountInfoResult
	if err := r.client.RPCCallForInto(ctx, &out, "getAccountInfo", accountInfoParams(account, opts)); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("getAccountInfo returned a null result")
	}
	if out.Value == nil {
		return nil, &AccountNotFoundError{Account: account, Slot: out.Context.Slot}
	}
	return out, nil
}

func accountInfoParams(account solana.PublicKey, opts *rpc.GetAccountInfoOpts) []interface{} {
	cfg := rpc.M{"encoding": solana.EncodingBase64}
	if opts != nil {
		if opts.Encoding != "" {
			cfg["encoding"] = opts.Encoding
		}
		if opts.Commitment != "" {
			cfg["commitment"] = opts.Commitment
		}
		if opts.DataSlice != nil {
			cfg["dataSlice"] = rpc.M{
				"offset": opts.DataSlice.Offset,
				"length": opts.DataSlice.Length,
			}
		}
		if opts.MinContextSlot != nil {
			cfg["minContextSlot"] = *opts.MinContextSlot
		}
	}
	return []interface{}{account, cfg}
}

func (r *realRPCClient) GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	return r.client.GetProgramAccountsWithOpts(ctx, program, opts)
}

func (r *realRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	return r.client.GetMinimumBalanceForRentExemption(ctx, dataSize, commitment)
}

func (r *realRPCClient) GetSignatureStatuses(ctx context.Context, searchHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return r.client.GetSignatureStatuses(ctx, searchHistory, signatures...)
}

func (r *realRPCClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	return r.client.RequestAirdrop(ctx, account, lamports, commitment)
}

func (r *realRPCClient) SendEncodedTransaction(ctx context.Context, encoded string, opts rpc.TransactionOpts) (solana.Signature, error) {
	return r.client.SendEncodedTransactionWithOpts(ctx, encoded, opts)
}

// AccountNotFoundError is a getAccountInfo response with a null value. Slot
// is the context slot the absence was observed at. It matches rpc.ErrNotFound.
type AccountNotFoundError struct {
	Account solana.PublicKey
	Slot    uint64
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %s not found at slot %d", e.Account, e.Slot)
}

func (e *AccountNotFoundError) Is(target error) bool { return target == rpc.ErrNotFound }
