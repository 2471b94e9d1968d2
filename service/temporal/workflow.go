package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// Transfer statuses reported in TransferResult.
const (
	TransferConfirmed = "confirmed"
	TransferFailed    = "failed"
)

// TransferWorkflow sends a SOL or SPL token transfer and waits for it to
// confirm.
//
// The workflow performs these steps:
// 1. Submit the transfer (SendTransfer activity, never retried)
// 2. Wait for confirmation (ConfirmTransfer activity)
// 3. Return the signature and final status
func TransferWorkflow(ctx workflow.Context, input TransferInput) (*TransferResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("TransferWorkflow started", "destination", input.Destination, "amount", input.Amount)

	result := &TransferResult{
		Destination: input.Destination,
		Mint:        input.Mint,
		Amount:      input.Amount,
		StartedAt:   workflow.Now(ctx),
	}

	sendCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var sent *SendTransferResult
	err := workflow.ExecuteActivity(sendCtx, a.SendTransfer, input).Get(ctx, &sent)
	if err != nil {
		return fail(result, "failed to send transfer", err)
	}
	result.Signature = &sent.Signature
	logger.Info("transfer submitted", "signature", sent.Signature)

	confirmCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
			NonRetryableErrorTypes: []string{
				ErrTypeTransactionFailed,
				ErrTypeBlockhashExpired,
				ErrTypeInvalidInput,
			},
		},
	})

	confirmInput := ConfirmTransferInput{
		Signature:            sent.Signature,
		LastValidBlockHeight: sent.LastValidBlockHeight,
		Commitment:           sent.Commitment,
	}
	if err := workflow.ExecuteActivity(confirmCtx, a.ConfirmTransfer, confirmInput).Get(ctx, nil); err != nil {
		return fail(result, "failed to confirm transfer", err)
	}

	result.Status = TransferConfirmed
	logger.Info("TransferWorkflow completed successfully",
		"destination", input.Destination,
		"signature", sent.Signature,
	)
	return result, nil
}

func fail(result *TransferResult, msg string, err error) (*TransferResult, error) {
	errMsg := fmt.Sprintf("%s: %v", msg, err)
	result.Status = TransferFailed
	result.Error = &errMsg
	return result, fmt.Errorf("%s: %w", msg, err)
}
