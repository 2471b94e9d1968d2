package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/features"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/state"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedAfter(polls int32) func(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	var n int32
	return func(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
		if atomic.AddInt32(&n, 1) < polls {
			return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
		}
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{
			{Slot: 12, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		}}, nil
	}
}

func transfer(lamports uint64) txn.InstructionBuilder {
	return func(ctx context.Context, payer solana.PublicKey) ([]solana.Instruction, error) {
		return []solana.Instruction{
			system.NewTransferInstruction(lamports, payer, solana.NewWallet().PublicKey()).Build(),
		}, nil
	}
}

// recordHistory collects every status the single tracked transaction passes
// through.
func recordHistory(c *Client) (history func() []state.TransactionStatus, unsubscribe func()) {
	var (
		mu   sync.Mutex
		seen []state.TransactionStatus
	)
	unsubscribe = c.Store().Subscribe(func(s state.ClientState) {
		for _, rec := range s.Transactions {
			mu.Lock()
			if len(seen) == 0 || seen[len(seen)-1] != rec.Status {
				seen = append(seen, rec.Status)
			}
			mu.Unlock()
		}
	})
	return func() []state.TransactionStatus {
		mu.Lock()
		defer mu.Unlock()
		return append([]state.TransactionStatus(nil), seen...)
	}, unsubscribe
}

func TestSendTransaction_Lifecycle(t *testing.T) {
	// Setup
	mock := &solclient.MockRPCClient{GetSignatureStatusesFunc: confirmedAfter(3)}
	conn := newFakeConnector("wallet-standard:phantom")
	c := newTestClient(t, mock, withConnectors(conn))
	_, err := c.ConnectWallet(context.Background(), "phantom", connector.ConnectOptions{})
	require.NoError(t, err)
	history, unsubscribe := recordHistory(c)
	defer unsubscribe()

	// Act
	sent, err := c.SendTransaction(context.Background(), SendRequest{Instructions: transfer(5000)})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{7}, sent.Signature)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, []state.TransactionStatus{
		state.TransactionSending,
		state.TransactionWaiting,
		state.TransactionConfirmed,
	}, history())

	rec := c.Store().GetState().Transactions[sent.ID]
	assert.Equal(t, state.TransactionConfirmed, rec.Status)
	assert.Equal(t, conn.key.PublicKey().String(), rec.Address)
	require.NotNil(t, rec.Signature)
	assert.Equal(t, solana.Signature{7}, *rec.Signature)
	assert.NoError(t, rec.Err)
	assert.Equal(t, 1, mock.Calls("SendTransaction"))
	assert.Equal(t, 3, mock.Calls("GetSignatureStatuses"))
}

func TestSendTransaction_SkipConfirmationLeavesRecordWaiting(t *testing.T) {
	mock := &solclient.MockRPCClient{}
	c := newTestClient(t, mock)
	signer := txn.NewKeypairSigner(solana.NewWallet().PrivateKey)

	sent, err := c.SendTransaction(context.Background(), SendRequest{
		Authority:        txn.SignerAuthority(signer),
		Instructions:     transfer(1),
		SkipConfirmation: true,
	})

	require.NoError(t, err)
	assert.Equal(t, state.TransactionWaiting, c.Store().GetState().Transactions[sent.ID].Status)
	assert.Equal(t, 0, mock.Calls("GetSignatureStatuses"))
}

func TestSendTransaction_SendFailureIsRecorded(t *testing.T) {
	mock := &solclient.MockRPCClient{
		SendEncodedTransactionFunc: func(ctx context.Context, encoded string, opts rpc.TransactionOpts) (solana.Signature, error) {
			return solana.Signature{}, errors.New("node unavailable")
		},
	}
	c := newTestClient(t, mock)
	signer := txn.NewKeypairSigner(solana.NewWallet().PrivateKey)

	sent, err := c.SendTransaction(context.Background(), SendRequest{
		Authority:    txn.SignerAuthority(signer),
		Instructions: transfer(1),
	})

	require.Error(t, err)
	rec := c.Store().GetState().Transactions[sent.ID]
	assert.Equal(t, state.TransactionFailed, rec.Status)
	assert.Nil(t, rec.Signature)
	assert.ErrorContains(t, rec.Err, "node unavailable")
}

func TestSubmit_FeatureHelper(t *testing.T) {
	// Setup
	mock := &solclient.MockRPCClient{GetSignatureStatusesFunc: confirmedAfter(1)}
	c := newTestClient(t, mock)
	key := solana.NewWallet().PrivateKey
	destination := solana.NewWallet().PublicKey()

	// Act
	sent, err := c.Submit(context.Background(), Submission{
		Authority: txn.SignerAuthority(txn.NewKeypairSigner(key)),
		Prepare: func(ctx context.Context, authority txn.Authority, lifetime *txn.Lifetime) (*txn.Prepared, error) {
			return c.Features().PrepareTransfer(ctx, features.TransferRequest{
				Common:      features.Common{Authority: authority, Lifetime: lifetime},
				Destination: destination,
				Lamports:    42,
			})
		},
	})

	// Assert
	require.NoError(t, err)
	rec := c.Store().GetState().Transactions[sent.ID]
	assert.Equal(t, state.TransactionConfirmed, rec.Status)
	assert.Equal(t, key.PublicKey().String(), rec.Address)
	assert.Equal(t, 1, mock.Calls("SendTransaction"))
}

func TestSubmit_PrepareFailureIsRecorded(t *testing.T) {
	c := newTestClient(t, &solclient.MockRPCClient{})
	key := solana.NewWallet().PrivateKey

	sent, err := c.Submit(context.Background(), Submission{
		Authority: txn.SignerAuthority(txn.NewKeypairSigner(key)),
		Prepare: func(ctx context.Context, authority txn.Authority, lifetime *txn.Lifetime) (*txn.Prepared, error) {
			return nil, errors.New("amount must be positive")
		},
	})

	require.Error(t, err)
	assert.Equal(t, state.TransactionFailed, c.Store().GetState().Transactions[sent.ID].Status)
}

func TestSubmit_RetryExpiredRefreshesBlockhashOnce(t *testing.T) {
	var sends int32
	mock := &solclient.MockRPCClient{
		GetSignatureStatusesFunc: confirmedAfter(1),
		SendEncodedTransactionFunc: func(ctx context.Context, encoded string, opts rpc.TransactionOpts) (solana.Signature, error) {
			if atomic.AddInt32(&sends, 1) == 1 {
				return solana.Signature{}, &jsonrpc.RPCError{Code: -32002, Data: map[string]interface{}{"err": "BlockhashNotFound"}}
			}
			return solana.Signature{9}, nil
		},
	}
	c := newTestClient(t, mock)
	key := solana.NewWallet().PrivateKey
	fetchesBefore := mock.Calls("GetLatestBlockhash")

	sent, err := c.Submit(context.Background(), Submission{
		Authority: txn.SignerAuthority(txn.NewKeypairSigner(key)),
		Prepare: func(ctx context.Context, authority txn.Authority, lifetime *txn.Lifetime) (*txn.Prepared, error) {
			return c.Features().PrepareWrap(ctx, features.WrapRequest{
				Common:   features.Common{Authority: authority, Lifetime: lifetime},
				Lamports: 1000,
			})
		},
		RetryExpired: true,
	})

	require.NoError(t, err)
	assert.Equal(t, solana.Signature{9}, sent.Signature)
	assert.Equal(t, int32(2), atomic.LoadInt32(&sends))
	assert.Equal(t, 2, mock.Calls("GetLatestBlockhash")-fetchesBefore)
	assert.Equal(t, state.TransactionConfirmed, c.Store().GetState().Transactions[sent.ID].Status)
}

func TestSendTransaction_OnChainFailure(t *testing.T) {
	mock := &solclient.MockRPCClient{
		GetSignatureStatusesFunc: func(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{
				{Slot: 3, ConfirmationStatus: rpc.ConfirmationStatusProcessed, Err: map[string]interface{}{"InsufficientFundsForRent": map[string]interface{}{"account_index": 0}}},
			}}, nil
		},
	}
	c := newTestClient(t, mock)

	sent, err := c.SendTransaction(context.Background(), SendRequest{
		Authority:    txn.SignerAuthority(txn.NewKeypairSigner(solana.NewWallet().PrivateKey)),
		Instructions: transfer(1),
	})

	var txErr *solclient.TransactionError
	require.ErrorAs(t, err, &txErr)
	rec := c.Store().GetState().Transactions[sent.ID]
	assert.Equal(t, state.TransactionFailed, rec.Status)
	require.NotNil(t, rec.Signature)
}

func TestSendTransaction_MissingAuthority(t *testing.T) {
	mock := &solclient.MockRPCClient{}
	c := newTestClient(t, mock)

	_, err := c.SendTransaction(context.Background(), SendRequest{Instructions: transfer(1)})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, txn.ErrMissingAuthority)
	assert.Empty(t, c.Store().GetState().Transactions)
	assert.Equal(t, 0, mock.Calls("GetLatestBlockhash"))
}

func TestSendTransaction_CancelledWhileWaiting(t *testing.T) {
	mock := &solclient.MockRPCClient{}
	c := newTestClient(t, mock)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sent, err := c.SendTransaction(ctx, SendRequest{
		Authority:    txn.SignerAuthority(txn.NewKeypairSigner(solana.NewWallet().PrivateKey)),
		Instructions: transfer(1),
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, state.TransactionWaiting, c.Store().GetState().Transactions[sent.ID].Status)
}

func TestRequestAirdrop(t *testing.T) {
	// Setup
	mock := &solclient.MockRPCClient{GetSignatureStatusesFunc: confirmedAfter(1)}
	c := newTestClient(t, mock)
	address := solana.NewWallet().PublicKey()

	// Act
	sent, err := c.RequestAirdrop(context.Background(), address, solana.LAMPORTS_PER_SOL)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{9}, sent.Signature)
	rec := c.Store().GetState().Transactions[sent.ID]
	assert.Equal(t, state.TransactionConfirmed, rec.Status)
	assert.Equal(t, address.String(), rec.Address)
}

func TestRequestAirdrop_FailureIsRecorded(t *testing.T) {
	mock := &solclient.MockRPCClient{
		RequestAirdropFunc: func(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error) {
			return solana.Signature{}, errors.New("airdrop limit reached")
		},
	}
	c := newTestClient(t, mock)

	sent, err := c.RequestAirdrop(context.Background(), solana.NewWallet().PublicKey(), 1)

	assert.ErrorContains(t, err, "airdrop limit reached")
	rec := c.Store().GetState().Transactions[sent.ID]
	assert.Equal(t, state.TransactionFailed, rec.Status)
	assert.ErrorContains(t, rec.Err, "airdrop limit reached")
}

func TestFetchBalance_UpdatesCache(t *testing.T) {
	address := solana.NewWallet().PublicKey()
	mock := &solclient.MockRPCClient{
		GetBalanceFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetBalanceResult, error) {
			return &rpc.GetBalanceResult{RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: 40}}, Value: 1234}, nil
		},
	}
	c := newTestClient(t, mock)

	entry, err := c.FetchBalance(context.Background(), address, "")

	require.NoError(t, err)
	assert.Equal(t, uint64(1234), entry.Lamports)
	cached, ok := c.Store().GetState().Account(address.String())
	require.True(t, ok)
	assert.Equal(t, uint64(40), cached.Slot)
	assert.False(t, cached.Fetching)
}

func TestWatchAccount_StopsOnDestroy(t *testing.T) {
	c := newTestClient(t, &solclient.MockRPCClient{})
	address := solana.NewWallet().PublicKey()

	w := c.WatchAccount(context.Background(), address, "")
	c.Destroy()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watch still running after destroy")
	}
}
