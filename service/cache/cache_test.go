package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/state"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(mock *solclient.MockRPCClient, sub solclient.Subscriber) (*Cache, *state.Store) {
	store := state.NewStore(state.Initial(state.ClusterState{
		Endpoint:   "https://rpc.test",
		Commitment: rpc.CommitmentConfirmed,
	}))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, solclient.StaticTransport(mock, sub), logger, nil), store
}

func balanceAt(slot, lamports uint64) *rpc.GetBalanceResult {
	return &rpc.GetBalanceResult{
		RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: slot}},
		Value:      lamports,
	}
}

func TestFetchBalance_OlderSlotNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	address := solana.NewWallet().PublicKey()

	// Setup: responses arrive as slot 10 then slot 7
	responses := []*rpc.GetBalanceResult{balanceAt(10, 1_000), balanceAt(7, 700)}
	var mu sync.Mutex
	mock := &solclient.MockRPCClient{
		GetBalanceFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetBalanceResult, error) {
			mu.Lock()
			defer mu.Unlock()
			next := responses[0]
			responses = responses[1:]
			return next, nil
		},
	}
	c, store := newTestCache(mock, nil)

	// Act
	_, err := c.FetchBalance(ctx, address, "")
	require.NoError(t, err)
	entry, err := c.FetchBalance(ctx, address, "")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, uint64(10), entry.Slot)
	assert.Equal(t, uint64(1_000), entry.Lamports)
	cached, ok := store.GetState().Account(address.String())
	require.True(t, ok)
	assert.Equal(t, uint64(10), cached.Slot)
	assert.Equal(t, uint64(1_000), cached.Lamports)
	assert.False(t, cached.Fetching)
}

func TestFetchBalance_OutOfOrderConcurrentResponses(t *testing.T) {
	ctx := context.Background()
	address := solana.NewWallet().PublicKey()

	// The processed read is slow and answers with an older slot than the
	// confirmed read that completes first.
	release := make(chan struct{})
	calls := make(chan struct{}, 2)
	slowClient := &slowBalanceRPC{MockRPCClient: &solclient.MockRPCClient{}, release: release, entered: calls}
	store := state.NewStore(state.Initial(state.ClusterState{Commitment: rpc.CommitmentConfirmed}))
	c := New(store, solclient.StaticTransport(slowClient, nil), nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.FetchBalance(ctx, address, rpc.CommitmentProcessed)
	}()
	<-calls

	// While the slow read is outstanding the entry reports fetching.
	entry, ok := store.GetState().Account(address.String())
	require.True(t, ok)
	assert.True(t, entry.Fetching)

	_, err := c.FetchBalance(ctx, address, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	close(release)
	wg.Wait()

	cached, _ := store.GetState().Account(address.String())
	assert.Equal(t, uint64(10), cached.Slot)
	assert.Equal(t, uint64(1_000), cached.Lamports)
	assert.False(t, cached.Fetching)
}

// slowBalanceRPC blocks processed reads until release is closed.
type slowBalanceRPC struct {
	*solclient.MockRPCClient
	release chan struct{}
	entered chan struct{}
}

func (s *slowBalanceRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if commitment == rpc.CommitmentProcessed {
		s.entered <- struct{}{}
		<-s.release
		return balanceAt(7, 700), nil
	}
	return balanceAt(10, 1_000), nil
}

func TestFetchBalance_ErrorKeepsCachedData(t *testing.T) {
	ctx := context.Background()
	address := solana.NewWallet().PublicKey()

	fail := false
	mock := &solclient.MockRPCClient{
		GetBalanceFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetBalanceResult, error) {
			if fail {
				return nil, errors.New("connection reset")
			}
			return balanceAt(4, 55), nil
		},
	}
	c, store := newTestCache(mock, nil)

	_, err := c.FetchBalance(ctx, address, "")
	require.NoError(t, err)

	fail = true
	entry, err := c.FetchBalance(ctx, address, "")

	require.Error(t, err)
	assert.ErrorContains(t, entry.Err, "connection reset")
	assert.Equal(t, uint64(55), entry.Lamports)
	assert.Equal(t, uint64(4), entry.Slot)

	cached, _ := store.GetState().Account(address.String())
	assert.Equal(t, uint64(55), cached.Lamports)
	assert.Error(t, cached.Err)
	assert.False(t, cached.Fetching)
}

func TestFetchAccount(t *testing.T) {
	ctx := context.Background()
	address := solana.NewWallet().PublicKey()
	owner := solclient.TokenProgramID

	mock := &solclient.MockRPCClient{
		GetAccountInfoFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
			return &rpc.GetAccountInfoResult{
				RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: 33}},
				Value: &rpc.Account{
					Lamports: 2_039_280,
					Owner:    owner,
					Data:     rpc.DataBytesOrJSONFromBytes([]byte{1, 2, 3}),
				},
			}, nil
		},
	}
	c, _ := newTestCache(mock, nil)

	entry, err := c.FetchAccount(ctx, address, "")

	require.NoError(t, err)
	assert.Equal(t, address.String(), entry.Address)
	assert.Equal(t, uint64(33), entry.Slot)
	assert.Equal(t, uint64(2_039_280), entry.Lamports)
	require.NotNil(t, entry.Owner)
	assert.Equal(t, owner, *entry.Owner)
	assert.Equal(t, []byte{1, 2, 3}, entry.Data)
	assert.False(t, entry.LastFetchedAt.IsZero())
}

func TestFetchAccount_NotFound(t *testing.T) {
	c, _ := newTestCache(&solclient.MockRPCClient{}, nil)

	entry, err := c.FetchAccount(context.Background(), solana.NewWallet().PublicKey(), "")

	require.NoError(t, err)
	assert.Zero(t, entry.Lamports)
	assert.Nil(t, entry.Owner)
	assert.Nil(t, entry.Err)
}

func TestFetchAccount_OlderNotFoundNeverClears(t *testing.T) {
	ctx := context.Background()
	address := solana.NewWallet().PublicKey()
	owner := solclient.TokenProgramID

	// Setup: the first (processed) read stalls and reports the account
	// missing at slot 8, after a second (confirmed) read saw it at slot 10.
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	mock := &solclient.MockRPCClient{
		GetAccountInfoFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				<-release
				return nil, &solclient.AccountNotFoundError{Account: account, Slot: 8}
			}
			return &rpc.GetAccountInfoResult{
				RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: 10}},
				Value:      &rpc.Account{Lamports: 1000, Owner: owner},
			}, nil
		},
	}
	c, store := newTestCache(mock, nil)

	// Act
	done := make(chan error, 1)
	go func() {
		_, err := c.FetchAccount(ctx, address, rpc.CommitmentProcessed)
		done <- err
	}()
	require.Eventually(t, func() bool { return mock.Calls("GetAccountInfo") == 1 }, time.Second, time.Millisecond)
	_, err := c.FetchAccount(ctx, address, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	// Assert
	entry, ok := store.GetState().Account(address.String())
	require.True(t, ok)
	assert.Equal(t, uint64(10), entry.Slot)
	assert.Equal(t, uint64(1000), entry.Lamports)
	require.NotNil(t, entry.Owner)
	assert.Equal(t, owner, *entry.Owner)
	assert.False(t, entry.Fetching)
}

func TestFetchAccount_NotFoundSlotOrdering(t *testing.T) {
	tests := []struct {
		name         string
		missing      error
		wantLamports uint64
		wantSlot     uint64
	}{
		{name: "newer absence clears", missing: &solclient.AccountNotFoundError{Slot: 12}, wantLamports: 0, wantSlot: 12},
		{name: "older absence dropped", missing: &solclient.AccountNotFoundError{Slot: 9}, wantLamports: 1000, wantSlot: 10},
		{name: "absence without slot dropped", missing: rpc.ErrNotFound, wantLamports: 1000, wantSlot: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			address := solana.NewWallet().PublicKey()
			found := true
			mock := &solclient.MockRPCClient{
				GetAccountInfoFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
					if !found {
						return nil, tt.missing
					}
					return &rpc.GetAccountInfoResult{
						RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: 10}},
						Value:      &rpc.Account{Lamports: 1000, Owner: solclient.TokenProgramID},
					}, nil
				},
			}
			c, _ := newTestCache(mock, nil)
			_, err := c.FetchAccount(context.Background(), address, "")
			require.NoError(t, err)

			// Act
			found = false
			entry, err := c.FetchAccount(context.Background(), address, "")

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantSlot, entry.Slot)
			assert.Equal(t, tt.wantLamports, entry.Lamports)
		})
	}
}

func TestFetchBalance_UsesClusterCommitment(t *testing.T) {
	var got rpc.CommitmentType
	rpcClient := &commitmentSpy{MockRPCClient: &solclient.MockRPCClient{}, got: &got}
	store := state.NewStore(state.Initial(state.ClusterState{Commitment: rpc.CommitmentFinalized}))
	c := New(store, solclient.StaticTransport(rpcClient, nil), nil, nil)

	_, err := c.FetchBalance(context.Background(), solana.NewWallet().PublicKey(), "")
	require.NoError(t, err)
	assert.Equal(t, rpc.CommitmentFinalized, got)

	_, err = c.FetchBalance(context.Background(), solana.NewWallet().PublicKey(), rpc.CommitmentProcessed)
	require.NoError(t, err)
	assert.Equal(t, rpc.CommitmentProcessed, got)
}

type commitmentSpy struct {
	*solclient.MockRPCClient
	got *rpc.CommitmentType
}

func (s *commitmentSpy) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	*s.got = commitment
	return balanceAt(1, 1), nil
}

func TestFetchProgramAccounts(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	mock := &solclient.MockRPCClient{
		GetSlotFunc: func(ctx context.Context) (uint64, error) { return 90, nil },
		GetProgramAccountsFunc: func(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
			require.Len(t, opts.Filters, 1)
			return rpc.GetProgramAccountsResult{
				{Pubkey: a, Account: &rpc.Account{Lamports: 1, Owner: program}},
				{Pubkey: b, Account: &rpc.Account{Lamports: 2, Owner: program}},
			}, nil
		},
	}
	c, store := newTestCache(mock, nil)

	entries, err := c.FetchProgramAccounts(context.Background(), solclient.StakeProgramID, "", rpc.RPCFilter{DataSize: solclient.StakeAccountSize})

	require.NoError(t, err)
	require.Len(t, entries, 2)
	cached, ok := store.GetState().Account(b.String())
	require.True(t, ok)
	assert.Equal(t, uint64(90), cached.Slot)
	assert.Equal(t, uint64(2), cached.Lamports)
}

func TestWatchAccount(t *testing.T) {
	ctx := context.Background()
	address := solana.NewWallet().PublicKey()
	sub := solclient.NewMockSubscriber()
	c, store := newTestCache(&solclient.MockRPCClient{}, sub)

	// Act
	w := c.WatchAccount(ctx, address, "")

	// Assert: subscription opened synchronously
	assert.Equal(t, state.SubscriptionActive{}, store.GetState().AccountSubscription(address.String()))
	stream, ok := sub.Account(address)
	require.True(t, ok)

	stream.Push(&solclient.AccountNotification{Slot: 5, Account: &rpc.Account{Lamports: 50}})
	stream.Push(&solclient.AccountNotification{Slot: 3, Account: &rpc.Account{Lamports: 30}})
	stream.Push(&solclient.AccountNotification{Slot: 6, Account: &rpc.Account{Lamports: 60}})

	require.Eventually(t, func() bool {
		e, ok := store.GetState().Account(address.String())
		return ok && e.Slot == 6
	}, time.Second, 5*time.Millisecond)
	e, _ := store.GetState().Account(address.String())
	assert.Equal(t, uint64(60), e.Lamports)

	w.Abort()
	assert.Equal(t, state.SubscriptionInactive{}, store.GetState().AccountSubscription(address.String()))
	assert.True(t, stream.Closed())
}

func TestWatchBalance_KeepsAccountData(t *testing.T) {
	address := solana.NewWallet().PublicKey()
	sub := solclient.NewMockSubscriber()
	c, store := newTestCache(&solclient.MockRPCClient{}, sub)
	store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithAccount(state.AccountCacheEntry{Address: address.String(), Data: []byte{9}, Slot: 1})
	})

	w := c.WatchBalance(context.Background(), address, "")
	defer w.Abort()

	stream, ok := sub.Account(address)
	require.True(t, ok)
	stream.Push(&solclient.AccountNotification{Slot: 2, Account: &rpc.Account{Lamports: 77}})

	require.Eventually(t, func() bool {
		e, _ := store.GetState().Account(address.String())
		return e.Slot == 2
	}, time.Second, 5*time.Millisecond)
	e, _ := store.GetState().Account(address.String())
	assert.Equal(t, uint64(77), e.Lamports)
	assert.Equal(t, []byte{9}, e.Data)
}

func TestWatchAccount_SubscribeFailure(t *testing.T) {
	address := solana.NewWallet().PublicKey()
	sub := solclient.NewMockSubscriber()
	sub.Err = errors.New("websocket refused")
	c, store := newTestCache(&solclient.MockRPCClient{}, sub)

	w := c.WatchAccount(context.Background(), address, "")

	status := store.GetState().AccountSubscription(address.String())
	subErr, ok := status.(state.SubscriptionError)
	require.True(t, ok, "got %v", status)
	assert.ErrorContains(t, subErr.Err, "websocket refused")

	w.Abort()
	assert.Equal(t, state.SubscriptionInactive{}, store.GetState().AccountSubscription(address.String()))
}

func TestWatchAccount_NoSubscriber(t *testing.T) {
	address := solana.NewWallet().PublicKey()
	c, store := newTestCache(&solclient.MockRPCClient{}, nil)

	w := c.WatchAccount(context.Background(), address, "")
	defer w.Abort()

	status, ok := store.GetState().AccountSubscription(address.String()).(state.SubscriptionError)
	require.True(t, ok)
	assert.ErrorIs(t, status.Err, ErrNoSubscriber)
}

func TestWatchSignature(t *testing.T) {
	sig := solana.Signature{1, 1, 1}
	sub := solclient.NewMockSubscriber()
	c, store := newTestCache(&solclient.MockRPCClient{}, sub)
	store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithTransaction("tx-1", state.TransactionRecord{Status: state.TransactionWaiting, Signature: &sig})
	})

	w := c.WatchSignature(context.Background(), sig, "")
	stream, ok := sub.Signature(sig)
	require.True(t, ok)

	stream.Push(&solclient.SignatureNotification{Slot: 8})

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not finish after notification")
	}
	rec := store.GetState().Transactions["tx-1"]
	assert.Equal(t, state.TransactionConfirmed, rec.Status)
	assert.Equal(t, state.SubscriptionInactive{}, store.GetState().SignatureSubscription(sig.String()))
}

func TestWatchSignature_Failed(t *testing.T) {
	sig := solana.Signature{2}
	sub := solclient.NewMockSubscriber()
	c, store := newTestCache(&solclient.MockRPCClient{}, sub)
	store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithTransaction("tx-2", state.TransactionRecord{Status: state.TransactionWaiting, Signature: &sig})
	})

	w := c.WatchSignature(context.Background(), sig, "")
	stream, _ := sub.Signature(sig)
	stream.Push(&solclient.SignatureNotification{Slot: 8, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}})
	<-w.Done()

	rec := store.GetState().Transactions["tx-2"]
	assert.Equal(t, state.TransactionFailed, rec.Status)
	var txErr *solclient.TransactionError
	require.ErrorAs(t, rec.Err, &txErr)
	assert.Equal(t, sig, txErr.Signature)
}
