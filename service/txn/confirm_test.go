package txn

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statuses(s *rpc.SignatureStatusesResult) *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{s}}
}

func TestConfirmSignature_WaitsForCommitment(t *testing.T) {
	// Setup
	var polls int32
	mock := &solclient.MockRPCClient{
		GetSignatureStatusesFunc: func(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			switch atomic.AddInt32(&polls, 1) {
			case 1:
				return statuses(nil), nil
			case 2:
				return statuses(&rpc.SignatureStatusesResult{Slot: 4, ConfirmationStatus: rpc.ConfirmationStatusProcessed}), nil
			default:
				return statuses(&rpc.SignatureStatusesResult{Slot: 5, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}), nil
			}
		},
	}
	p, _ := newTestPipeline(mock)

	// Act
	err := p.ConfirmSignature(context.Background(), solana.Signature{1}, rpc.CommitmentConfirmed, nil, time.Millisecond)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, mock.Calls("GetSignatureStatuses"))
}

func TestConfirmSignature_TransactionFailed(t *testing.T) {
	mock := &solclient.MockRPCClient{
		GetSignatureStatusesFunc: func(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			return statuses(&rpc.SignatureStatusesResult{
				Slot:               9,
				ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
				Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
			}), nil
		},
	}
	p, _ := newTestPipeline(mock)

	err := p.ConfirmSignature(context.Background(), solana.Signature{2}, "", nil, time.Millisecond)

	var txErr *solclient.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, solana.Signature{2}, txErr.Signature)
}

func TestConfirmSignature_LifetimeExpired(t *testing.T) {
	mock := &solclient.MockRPCClient{
		GetBlockHeightFunc: func(ctx context.Context) (uint64, error) { return 151, nil },
	}
	p, _ := newTestPipeline(mock)

	err := p.ConfirmSignature(context.Background(), solana.Signature{3}, "", &Lifetime{LastValidBlockHeight: 150}, time.Millisecond)

	assert.ErrorIs(t, err, ErrBlockhashExpired)
}

func TestConfirmSignature_ContextCancelled(t *testing.T) {
	p, _ := newTestPipeline(&solclient.MockRPCClient{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.ConfirmSignature(ctx, solana.Signature{4}, "", nil, time.Millisecond)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReached(t *testing.T) {
	assert.True(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed))
	assert.False(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	assert.True(t, reached(rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed))
	assert.False(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized))
}
