// Package txn is the transaction pipeline shared by every feature that
// produces transactions: prepare a message against a blockhash lifetime,
// then sign and submit it through the wallet or through the RPC client.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/metrics"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Lifetime is the recent blockhash a transaction is valid against and the
// last block height at which it stays valid.
type Lifetime struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// InstructionBuilder returns the feature instructions for a fee payer. It
// runs on every prepare, so it may read chain state.
type InstructionBuilder func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error)

// Instructions wraps a fixed instruction list.
func Instructions(ixs ...solana.Instruction) InstructionBuilder {
	return func(context.Context, solana.PublicKey) ([]solana.Instruction, error) {
		return ixs, nil
	}
}

// PrepareRequest configures Prepare.
type PrepareRequest struct {
	Authority    Authority
	Instructions InstructionBuilder
	// Lifetime is used verbatim when set; otherwise the latest blockhash is
	// fetched at Commitment.
	Lifetime   *Lifetime
	Commitment rpc.CommitmentType
	// Version selects a legacy (default) or v0 message.
	Version solana.MessageVersion
}

// Prepared is a built, unsigned transaction ready for Send. It is consumed
// by a single Send and never stored.
type Prepared struct {
	Transaction *solana.Transaction
	Signer      Signer
	Mode        Mode
	Lifetime    Lifetime
	Commitment  rpc.CommitmentType
	Plan        Plan
}

// SendOptions are forwarded to sendTransaction or to the wallet.
type SendOptions struct {
	MaxRetries          *uint
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// Pipeline prepares and sends transactions.
type Pipeline struct {
	transport  solclient.Transport
	logger     *slog.Logger
	metrics    *metrics.Metrics
	commitment func() rpc.CommitmentType
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDefaultCommitment supplies the commitment used when a request has none.
func WithDefaultCommitment(fn func() rpc.CommitmentType) Option {
	return func(p *Pipeline) { p.commitment = fn }
}

// NewPipeline creates a pipeline. If m is nil, no metrics are recorded.
func NewPipeline(transport solclient.Transport, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		transport:  transport,
		logger:     logger,
		metrics:    m,
		commitment: func() rpc.CommitmentType { return rpc.CommitmentConfirmed },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RPC returns the client for the current cluster.
func (p *Pipeline) RPC() solclient.RPCClient { return p.transport.RPC() }

func (p *Pipeline) commitmentOr(c rpc.CommitmentType) rpc.CommitmentType {
	if c != "" {
		return c
	}
	if def := p.commitment(); def != "" {
		return def
	}
	return rpc.CommitmentConfirmed
}

// LatestLifetime fetches a fresh blockhash lifetime.
func (p *Pipeline) LatestLifetime(ctx context.Context, commitment rpc.CommitmentType) (Lifetime, error) {
	res, err := p.transport.RPC().GetLatestBlockhash(ctx, p.commitmentOr(commitment))
	if err != nil {
		return Lifetime{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if res == nil || res.Value == nil {
		return Lifetime{}, fmt.Errorf("failed to get latest blockhash: empty response")
	}
	return Lifetime{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
	}, nil
}

// Prepare builds a transaction without submitting anything.
func (p *Pipeline) Prepare(ctx context.Context, req PrepareRequest) (*Prepared, error) {
	signer, mode, err := req.Authority.resolve()
	if err != nil {
		return nil, err
	}
	if req.Instructions == nil {
		return nil, fmt.Errorf("prepare: no instructions")
	}
	commitment := p.commitmentOr(req.Commitment)

	var lifetime Lifetime
	if req.Lifetime != nil {
		lifetime = *req.Lifetime
	} else {
		lifetime, err = p.LatestLifetime(ctx, commitment)
		if err != nil {
			return nil, err
		}
	}

	payer := signer.Address()
	ixs, err := req.Instructions(ctx, payer)
	if err != nil {
		return nil, fmt.Errorf("failed to build instructions: %w", err)
	}
	if len(ixs) == 0 {
		return nil, fmt.Errorf("prepare: no instructions")
	}

	tx, err := solana.NewTransaction(ixs, lifetime.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	if req.Version == solana.MessageVersionV0 {
		tx.Message.SetVersion(solana.MessageVersionV0)
	}

	p.logger.DebugContext(ctx, "prepared transaction",
		"payer", payer.String(),
		"mode", mode,
		"instructions", len(ixs),
		"blockhash", lifetime.Blockhash.String(),
		"last_valid_block_height", lifetime.LastValidBlockHeight,
	)

	return &Prepared{
		Transaction: tx,
		Signer:      signer,
		Mode:        mode,
		Lifetime:    lifetime,
		Commitment:  commitment,
		Plan:        DefaultPlan(),
	}, nil
}

// Send signs and submits a prepared transaction.
//
// In send mode the wallet submits and owns retry semantics; nothing is
// retried here. In partial mode the plan signs, encodes, submits and
// captures the signature. Cancelling ctx stops waiting but cannot recall a
// transaction the cluster already accepted.
func (p *Pipeline) Send(ctx context.Context, prepared *Prepared, opts SendOptions) (solana.Signature, error) {
	if prepared == nil || prepared.Transaction == nil {
		return solana.Signature{}, fmt.Errorf("send: nothing prepared")
	}
	start := time.Now()
	sig, err := p.send(ctx, prepared, opts)

	status := "success"
	if err != nil {
		status = "error"
		p.logger.WarnContext(ctx, "transaction send failed",
			"mode", prepared.Mode,
			"error", err,
		)
	} else {
		p.logger.InfoContext(ctx, "transaction sent",
			"mode", prepared.Mode,
			"signature", sig.String(),
		)
	}
	p.metrics.RecordTransactionSent(string(prepared.Mode), status, time.Since(start).Seconds())
	return sig, err
}

func (p *Pipeline) send(ctx context.Context, prepared *Prepared, opts SendOptions) (solana.Signature, error) {
	if prepared.Mode == ModeSend && prepared.Signer.CanSignAndSend() {
		raw, err := prepared.Signer.SignAndSendTransaction(ctx, prepared.Transaction, opts)
		if err != nil {
			return solana.Signature{}, classify(err)
		}
		sig, err := connector.DecodeSignature(raw)
		if err != nil {
			return solana.Signature{}, &SubmissionError{Code: SignatureUnresolved, Err: err}
		}
		return sig, nil
	}

	plan := prepared.Plan
	if plan == nil {
		plan = DefaultPlan()
	}
	exec := &execution{
		pipeline: p,
		prepared: prepared,
		opts:     opts,
		tx:       prepared.Transaction,
	}
	for _, step := range plan {
		if err := ctx.Err(); err != nil {
			return solana.Signature{}, err
		}
		if err := step.Run(ctx, exec); err != nil {
			return solana.Signature{}, fmt.Errorf("%s: %w", step.Name, err)
		}
	}
	if exec.signature == nil {
		return solana.Signature{}, &SubmissionError{Code: SignatureUnresolved}
	}
	return *exec.signature, nil
}

// PrepareAndSend is Prepare followed by Send.
func (p *Pipeline) PrepareAndSend(ctx context.Context, req PrepareRequest, opts SendOptions) (solana.Signature, error) {
	prepared, err := p.Prepare(ctx, req)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.Send(ctx, prepared, opts)
}

// PrepareFunc prepares a transaction. A nil lifetime forces a fresh
// blockhash fetch.
type PrepareFunc func(ctx context.Context, lifetime *Lifetime) (*Prepared, error)

// SendWithExpiryRetry prepares and sends, and if the send fails because the
// lifetime expired or the message was already processed, prepares again
// with a fresh blockhash and sends exactly once more. The second failure is
// returned unchanged.
func (p *Pipeline) SendWithExpiryRetry(ctx context.Context, prepare PrepareFunc, lifetime *Lifetime, opts SendOptions) (solana.Signature, error) {
	prepared, err := prepare(ctx, lifetime)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := p.Send(ctx, prepared, opts)
	if err == nil || !IsLifetimeExpired(err) {
		return sig, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return solana.Signature{}, err
	}

	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		p.metrics.RecordTransactionRetry(string(subErr.Code))
	}
	p.logger.InfoContext(ctx, "retrying with a fresh blockhash",
		"error", err,
		"stale_blockhash", prepared.Lifetime.Blockhash.String(),
	)

	prepared, err = prepare(ctx, nil)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.Send(ctx, prepared, opts)
}
