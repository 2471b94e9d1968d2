package txn

import (
	"context"
	"fmt"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// execution is the mutable state threaded through one plan run.
type execution struct {
	pipeline  *Pipeline
	prepared  *Prepared
	opts      SendOptions
	tx        *solana.Transaction
	encoded   string
	submitted solana.Signature
	signature *solana.Signature
}

// Step is one stage of a client-submitted send.
type Step struct {
	Name string
	Run  func(ctx context.Context, exec *execution) error
}

// Plan is the ordered list of steps run for partial-mode sends.
type Plan []Step

// DefaultPlan signs, encodes, submits and captures the signature.
func DefaultPlan() Plan {
	return Plan{
		{Name: "sign", Run: signStep},
		{Name: "encode", Run: encodeStep},
		{Name: "submit", Run: submitStep},
		{Name: "capture", Run: captureStep},
	}
}

func signStep(ctx context.Context, exec *execution) error {
	signed, err := exec.prepared.Signer.SignTransaction(ctx, exec.tx)
	if err != nil {
		return err
	}
	if missing := solclient.MissingSigners(signed); len(missing) > 0 {
		return fmt.Errorf("transaction is missing %d signature(s), first %s", len(missing), missing[0])
	}
	exec.tx = signed
	return nil
}

func encodeStep(ctx context.Context, exec *execution) error {
	encoded, err := solclient.EncodeTransaction(exec.tx)
	if err != nil {
		return err
	}
	exec.encoded = encoded
	return nil
}

func submitStep(ctx context.Context, exec *execution) error {
	preflight := exec.opts.PreflightCommitment
	if preflight == "" {
		preflight = exec.prepared.Commitment
	}
	sig, err := exec.pipeline.transport.RPC().SendEncodedTransaction(ctx, exec.encoded, rpc.TransactionOpts{
		SkipPreflight:       exec.opts.SkipPreflight,
		PreflightCommitment: preflight,
		MaxRetries:          exec.opts.MaxRetries,
	})
	if err != nil {
		return classify(err)
	}
	exec.submitted = sig
	return nil
}

// captureStep takes the signature reported by the cluster, falling back to
// the fee payer signature, which is the transaction id.
func captureStep(ctx context.Context, exec *execution) error {
	if exec.submitted != (solana.Signature{}) {
		sig := exec.submitted
		exec.signature = &sig
		return nil
	}
	if len(exec.tx.Signatures) > 0 && exec.tx.Signatures[0] != (solana.Signature{}) {
		sig := exec.tx.Signatures[0]
		exec.signature = &sig
	}
	return nil
}
