package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrBlockhashExpired is returned by ConfirmSignature when the cluster
// passed the lifetime's last valid block height without seeing the
// transaction.
var ErrBlockhashExpired = errors.New("blockhash expired before confirmation")

// DefaultConfirmInterval is the polling interval used when none is given.
const DefaultConfirmInterval = 2 * time.Second

// reached reports whether status satisfies commitment.
func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch commitment {
	case rpc.CommitmentProcessed:
		return status != ""
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	default:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
}

// ConfirmSignature polls until sig reaches commitment. It fails with a
// *solclient.TransactionError when the transaction failed on chain, and with
// ErrBlockhashExpired when lifetime is given and has passed.
func (p *Pipeline) ConfirmSignature(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType, lifetime *Lifetime, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultConfirmInterval
	}
	commitment = p.commitmentOr(commitment)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		client := p.transport.RPC()
		res, err := client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			p.logger.DebugContext(ctx, "signature status poll failed", "signature", sig.String(), "error", err)
		} else if len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return &solclient.TransactionError{Signature: sig, Err: status.Err}
			}
			if reached(status.ConfirmationStatus, commitment) {
				p.logger.DebugContext(ctx, "signature confirmed",
					"signature", sig.String(),
					"slot", status.Slot,
					"status", status.ConfirmationStatus,
				)
				return nil
			}
		} else if lifetime != nil {
			height, err := client.GetBlockHeight(ctx, commitment)
			if err == nil && height > lifetime.LastValidBlockHeight {
				return fmt.Errorf("%w: block height %d > %d", ErrBlockhashExpired, height, lifetime.LastValidBlockHeight)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
