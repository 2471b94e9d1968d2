package solana

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// MockRPCClient is a behavior-focused RPCClient for tests. Set the Func
// fields for the calls a test cares about; unset calls return benign
// defaults. Every call is counted.
type MockRPCClient struct {
	GetHealthFunc                         func(ctx context.Context) (string, error)
	GetSlotFunc                           func(ctx context.Context) (uint64, error)
	GetBlockHeightFunc                    func(ctx context.Context) (uint64, error)
	GetLatestBlockhashFunc                func(ctx context.Context) (*rpc.GetLatestBlockhashResult, error)
	GetBalanceFunc                        func(ctx context.Context, account solana.PublicKey) (*rpc.GetBalanceResult, error)
	GetAccountInfoFunc                    func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetProgramAccountsFunc                func(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	GetMinimumBalanceForRentExemptionFunc func(ctx context.Context, dataSize uint64) (uint64, error)
	GetSignatureStatusesFunc              func(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	RequestAirdropFunc                    func(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error)
	SendEncodedTransactionFunc            func(ctx context.Context, encoded string, opts rpc.TransactionOpts) (solana.Signature, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockRPCClient) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// Calls returns how many times method was invoked.
func (m *MockRPCClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockRPCClient) GetHealth(ctx context.Context) (string, error) {
	m.record("GetHealth")
	if m.GetHealthFunc != nil {
		return m.GetHealthFunc(ctx)
	}
	return "ok", nil
}

func (m *MockRPCClient) GetSlot(ctx context.Context, _ rpc.CommitmentType) (uint64, error) {
	m.record("GetSlot")
	if m.GetSlotFunc != nil {
		return m.GetSlotFunc(ctx)
	}
	return 0, nil
}

func (m *MockRPCClient) GetBlockHeight(ctx context.Context, _ rpc.CommitmentType) (uint64, error) {
	m.record("GetBlockHeight")
	if m.GetBlockHeightFunc != nil {
		return m.GetBlockHeightFunc(ctx)
	}
	return 0, nil
}

func (m *MockRPCClient) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	m.record("GetLatestBlockhash")
	if m.GetLatestBlockhashFunc != nil {
		return m.GetLatestBlockhashFunc(ctx)
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            solana.Hash{1},
			LastValidBlockHeight: 150,
		},
	}, nil
}

func (m *MockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	m.record("GetBalance")
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx, account)
	}
	return &rpc.GetBalanceResult{}, nil
}

func (m *MockRPCClient) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	m.record("GetAccountInfo")
	if m.GetAccountInfoFunc != nil {
		return m.GetAccountInfoFunc(ctx, account)
	}
	return nil, rpc.ErrNotFound
}

func (m *MockRPCClient) GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	m.record("GetProgramAccounts")
	if m.GetProgramAccountsFunc != nil {
		return m.GetProgramAccountsFunc(ctx, program, opts)
	}
	return nil, nil
}

func (m *MockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, _ rpc.CommitmentType) (uint64, error) {
	m.record("GetMinimumBalanceForRentExemption")
	if m.GetMinimumBalanceForRentExemptionFunc != nil {
		return m.GetMinimumBalanceForRentExemptionFunc(ctx, dataSize)
	}
	return 2_282_880, nil
}

func (m *MockRPCClient) GetSignatureStatuses(ctx context.Context, _ bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	m.record("GetSignatureStatuses")
	if m.GetSignatureStatusesFunc != nil {
		return m.GetSignatureStatusesFunc(ctx, signatures...)
	}
	return &rpc.GetSignatureStatusesResult{Value: make([]*rpc.SignatureStatusesResult, len(signatures))}, nil
}

func (m *MockRPCClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, _ rpc.CommitmentType) (solana.Signature, error) {
	m.record("RequestAirdrop")
	if m.RequestAirdropFunc != nil {
		return m.RequestAirdropFunc(ctx, account, lamports)
	}
	return solana.Signature{9}, nil
}

func (m *MockRPCClient) SendEncodedTransaction(ctx context.Context, encoded string, opts rpc.TransactionOpts) (solana.Signature, error) {
	m.record("SendTransaction")
	if m.SendEncodedTransactionFunc != nil {
		return m.SendEncodedTransactionFunc(ctx, encoded, opts)
	}
	return solana.Signature{7}, nil
}

// MockSubscriber is a Subscriber whose streams are fed by the test.
type MockSubscriber struct {
	mu         sync.Mutex
	accounts   map[solana.PublicKey]*MockAccountStream
	signatures map[solana.Signature]*MockSignatureStream
	Err        error
}

// NewMockSubscriber returns an empty MockSubscriber.
func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{
		accounts:   make(map[solana.PublicKey]*MockAccountStream),
		signatures: make(map[solana.Signature]*MockSignatureStream),
	}
}

func (m *MockSubscriber) SubscribeAccount(_ context.Context, account solana.PublicKey, _ rpc.CommitmentType) (AccountStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s := &MockAccountStream{ch: make(chan *AccountNotification, 16), done: make(chan struct{})}
	m.accounts[account] = s
	return s, nil
}

func (m *MockSubscriber) SubscribeSignature(_ context.Context, signature solana.Signature, _ rpc.CommitmentType) (SignatureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s := &MockSignatureStream{ch: make(chan *SignatureNotification, 16), done: make(chan struct{})}
	m.signatures[signature] = s
	return s, nil
}

func (m *MockSubscriber) Close() error { return nil }

// Account returns the stream opened for account, if any.
func (m *MockSubscriber) Account(account solana.PublicKey) (*MockAccountStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.accounts[account]
	return s, ok
}

// Signature returns the stream opened for signature, if any.
func (m *MockSubscriber) Signature(signature solana.Signature) (*MockSignatureStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signatures[signature]
	return s, ok
}

// MockAccountStream delivers notifications pushed with Push.
type MockAccountStream struct {
	ch       chan *AccountNotification
	done     chan struct{}
	closeOne sync.Once
}

func (s *MockAccountStream) Push(n *AccountNotification) { s.ch <- n }

func (s *MockAccountStream) Recv(ctx context.Context) (*AccountNotification, error) {
	select {
	case n := <-s.ch:
		return n, nil
	case <-s.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *MockAccountStream) Close() { s.closeOne.Do(func() { close(s.done) }) }

// Closed reports whether the consumer closed the stream.
func (s *MockAccountStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// MockSignatureStream delivers notifications pushed with Push.
type MockSignatureStream struct {
	ch       chan *SignatureNotification
	done     chan struct{}
	closeOne sync.Once
}

func (s *MockSignatureStream) Push(n *SignatureNotification) { s.ch <- n }

func (s *MockSignatureStream) Recv(ctx context.Context) (*SignatureNotification, error) {
	select {
	case n := <-s.ch:
		return n, nil
	case <-s.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *MockSignatureStream) Close() { s.closeOne.Do(func() { close(s.done) }) }

// Closed reports whether the consumer closed the stream.
func (s *MockSignatureStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
