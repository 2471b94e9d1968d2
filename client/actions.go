package client

import (
	"context"
	"fmt"

	"github.com/brojonat/solclient/service/cache"
	"github.com/brojonat/solclient/service/state"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
)

// FetchAccount reads address into the account cache. The error is also
// recorded on the cache entry.
func (c *Client) FetchAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) (state.AccountCacheEntry, error) {
	return c.cache.FetchAccount(ctx, address, commitment)
}

// FetchBalance reads the lamport balance of address into the account cache.
func (c *Client) FetchBalance(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) (state.AccountCacheEntry, error) {
	return c.cache.FetchBalance(ctx, address, commitment)
}

// FetchProgramAccounts reads every account of program matching filters into
// the account cache.
func (c *Client) FetchProgramAccounts(ctx context.Context, program solana.PublicKey, commitment rpc.CommitmentType, filters ...rpc.RPCFilter) ([]state.AccountCacheEntry, error) {
	return c.cache.FetchProgramAccounts(ctx, program, commitment, filters...)
}

// WatchAccount keeps the cached account for address current until the
// returned watch is aborted or the client is destroyed.
func (c *Client) WatchAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) *cache.Watch {
	ctx, cancel := c.scope(ctx)
	return c.release(c.cache.WatchAccount(ctx, address, commitment), cancel)
}

// WatchBalance is WatchAccount for the lamport balance only.
func (c *Client) WatchBalance(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) *cache.Watch {
	ctx, cancel := c.scope(ctx)
	return c.release(c.cache.WatchBalance(ctx, address, commitment), cancel)
}

// WatchSignature waits for signature and settles the matching transaction
// record.
func (c *Client) WatchSignature(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) *cache.Watch {
	ctx, cancel := c.scope(ctx)
	return c.release(c.cache.WatchSignature(ctx, signature, commitment), cancel)
}

func (c *Client) release(w *cache.Watch, cancel context.CancelFunc) *cache.Watch {
	go func() {
		<-w.Done()
		cancel()
	}()
	return w
}

// Sent identifies a transaction tracked in state.
type Sent struct {
	ID        string
	Signature solana.Signature
}

// SendRequest describes a transaction for SendTransaction.
type SendRequest struct {
	// Authority defaults to the connected wallet.
	Authority    txn.Authority
	Instructions txn.InstructionBuilder
	Lifetime     *txn.Lifetime
	Commitment   rpc.CommitmentType
	Version      solana.MessageVersion
	Options      txn.SendOptions
	// SkipConfirmation returns as soon as the signature is known, leaving
	// the record waiting.
	SkipConfirmation bool
}

// SendTransaction prepares, sends and confirms a transaction, tracking it
// in state as sending, then waiting, then confirmed or failed.
func (c *Client) SendTransaction(ctx context.Context, req SendRequest) (Sent, error) {
	return c.Submit(ctx, Submission{
		Authority: req.Authority,
		Prepare: func(ctx context.Context, authority txn.Authority, lifetime *txn.Lifetime) (*txn.Prepared, error) {
			return c.pipeline.Prepare(ctx, txn.PrepareRequest{
				Authority:    authority,
				Instructions: req.Instructions,
				Lifetime:     lifetime,
				Commitment:   req.Commitment,
				Version:      req.Version,
			})
		},
		Lifetime:         req.Lifetime,
		Options:          req.Options,
		SkipConfirmation: req.SkipConfirmation,
	})
}

// Submission is a transaction for Submit, usually built by one of the
// features helpers.
type Submission struct {
	// Authority defaults to the connected wallet.
	Authority txn.Authority
	// Prepare builds the transaction. A nil lifetime means fetch a fresh
	// blockhash.
	Prepare  func(ctx context.Context, authority txn.Authority, lifetime *txn.Lifetime) (*txn.Prepared, error)
	Lifetime *txn.Lifetime
	Options  txn.SendOptions
	// RetryExpired prepares and sends once more with a fresh blockhash when
	// the first lifetime expired.
	RetryExpired     bool
	SkipConfirmation bool
}

// Submit sends a Submission and tracks it in state the way SendTransaction
// does.
func (c *Client) Submit(ctx context.Context, sub Submission) (Sent, error) {
	authority := sub.Authority
	if authority.IsZero() {
		session := state.SessionOf(c.store.GetState().Wallet)
		if session == nil {
			return Sent{}, &ConfigurationError{Op: "send transaction", Err: txn.ErrMissingAuthority}
		}
		authority = txn.WalletAuthority(session)
	}

	id := c.start(authority.Address())

	var prepared *txn.Prepared
	prepare := func(ctx context.Context, lifetime *txn.Lifetime) (*txn.Prepared, error) {
		p, err := sub.Prepare(ctx, authority, lifetime)
		if err == nil {
			prepared = p
		}
		return p, err
	}

	var (
		sig solana.Signature
		err error
	)
	if sub.RetryExpired {
		sig, err = c.pipeline.SendWithExpiryRetry(ctx, prepare, sub.Lifetime, sub.Options)
	} else if _, err = prepare(ctx, sub.Lifetime); err == nil {
		sig, err = c.pipeline.Send(ctx, prepared, sub.Options)
	}
	if err != nil {
		c.record(id, state.TransactionFailed, nil, err)
		return Sent{ID: id}, err
	}
	c.record(id, state.TransactionWaiting, &sig, nil)

	sent := Sent{ID: id, Signature: sig}
	if sub.SkipConfirmation {
		return sent, nil
	}
	lifetime := prepared.Lifetime
	return sent, c.confirm(ctx, id, sig, prepared.Commitment, &lifetime)
}

// RequestAirdrop asks the cluster faucet for lamports and waits for the
// airdrop to confirm.
func (c *Client) RequestAirdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (Sent, error) {
	id := c.start(address)

	commitment := c.store.GetState().Cluster.Commitment
	sig, err := c.transport.RPC().RequestAirdrop(ctx, address, lamports, commitment)
	if err != nil {
		err = fmt.Errorf("failed to request airdrop: %w", err)
		c.record(id, state.TransactionFailed, nil, err)
		return Sent{ID: id}, err
	}
	c.record(id, state.TransactionWaiting, &sig, nil)
	c.logger.InfoContext(ctx, "airdrop requested",
		"address", address.String(),
		"lamports", lamports,
		"signature", sig.String(),
	)
	return Sent{ID: id, Signature: sig}, c.confirm(ctx, id, sig, commitment, nil)
}

// confirm waits for sig and settles record id. A record already settled by
// a signature watcher is left alone.
func (c *Client) confirm(ctx context.Context, id string, sig solana.Signature, commitment rpc.CommitmentType, lifetime *txn.Lifetime) error {
	err := c.pipeline.ConfirmSignature(ctx, sig, commitment, lifetime, c.cfg.ConfirmInterval)
	if ctx.Err() != nil {
		// Cancelled while waiting; the transaction may still land.
		return err
	}
	status := state.TransactionConfirmed
	if err != nil {
		status = state.TransactionFailed
	}
	c.record(id, status, &sig, err)
	return err
}

// start tracks a new transaction for address in the sending state.
func (c *Client) start(address solana.PublicKey) string {
	id := uuid.NewString()
	now := c.cfg.Now()
	c.store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithTransaction(id, state.TransactionRecord{
			Address:       address.String(),
			Status:        state.TransactionSending,
			LastUpdatedAt: now,
		})
	})
	return id
}

func (c *Client) record(id string, status state.TransactionStatus, sig *solana.Signature, err error) {
	now := c.cfg.Now()
	c.store.SetState(func(s state.ClientState) state.ClientState {
		rec := s.Transactions[id]
		if rec.Status.Terminal() {
			return s
		}
		rec.Status = status
		if sig != nil {
			rec.Signature = sig
		}
		rec.Err = err
		rec.LastUpdatedAt = now
		return s.WithTransaction(id, rec)
	})
}
