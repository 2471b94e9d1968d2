package solana

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// AccountNotification is one account change pushed by the cluster. Account
// is nil once the account has been closed.
type AccountNotification struct {
	Slot    uint64
	Account *rpc.Account
}

// SignatureNotification reports that a signature reached the subscribed
// commitment. Err is nil when the transaction succeeded.
type SignatureNotification struct {
	Slot uint64
	Err  interface{}
}

// AccountStream delivers account notifications until closed.
type AccountStream interface {
	Recv(ctx context.Context) (*AccountNotification, error)
	Close()
}

// SignatureStream delivers signature notifications until closed.
type SignatureStream interface {
	Recv(ctx context.Context) (*SignatureNotification, error)
	Close()
}

// Subscriber opens push subscriptions against a cluster websocket.
type Subscriber interface {
	SubscribeAccount(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (AccountStream, error)
	SubscribeSignature(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) (SignatureStream, error)
	Close() error
}

// wsSubscriber dials the websocket lazily on first use and shares the
// connection between all subscriptions.
type wsSubscriber struct {
	url string

	mu     sync.Mutex
	client *ws.Client
}

// NewSubscriber returns a Subscriber for the websocket endpoint wsURL.
func NewSubscriber(wsURL string) Subscriber {
	return &wsSubscriber{url: wsURL}
}

func (s *wsSubscriber) conn(ctx context.Context) (*ws.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := ws.Connect(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.url, err)
	}
	s.client = client
	return client, nil
}

func (s *wsSubscriber) SubscribeAccount(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (AccountStream, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := client.AccountSubscribeWithOpts(account, commitment, solana.EncodingBase64)
	if err != nil {
		return nil, fmt.Errorf("account subscribe %s: %w", account, err)
	}
	return &accountStream{sub: sub}, nil
}

func (s *wsSubscriber) SubscribeSignature(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) (SignatureStream, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := client.SignatureSubscribe(signature, commitment)
	if err != nil {
		return nil, fmt.Errorf("signature subscribe %s: %w", signature, err)
	}
	return &signatureStream{sub: sub}, nil
}

func (s *wsSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}

type accountStream struct {
	sub *ws.AccountSubscription
}

func (a *accountStream) Recv(ctx context.Context) (*AccountNotification, error) {
	got, err := a.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	return accountNotification(got), nil
}

// accountNotification converts a ws result. A null value means the account
// was closed and is passed on as a nil Account.
func accountNotification(got *ws.AccountResult) *AccountNotification {
	return &AccountNotification{
		Slot:    got.Context.Slot,
		Account: got.Value,
	}
}

func (a *accountStream) Close() { a.sub.Unsubscribe() }

type signatureStream struct {
	sub *ws.SignatureSubscription
}

func (s *signatureStream) Recv(ctx context.Context) (*SignatureNotification, error) {
	got, err := s.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	return &SignatureNotification{
		Slot: got.Context.Slot,
		Err:  got.Value.Err,
	}, nil
}

func (s *signatureStream) Close() { s.sub.Unsubscribe() }
