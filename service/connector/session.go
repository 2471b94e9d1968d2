package connector

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
)

// Account identifies the wallet account exposed by a session.
type Account struct {
	Address   string
	PublicKey solana.PublicKey
	Label     string
}

// Metadata describes the connector that produced a session.
type Metadata struct {
	ID             string
	Name           string
	CanAutoConnect bool
}

// SendOptions are forwarded to wallets that submit transactions themselves.
type SendOptions struct {
	MaxRetries          *uint
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// Session is a connected wallet. It is created by Connector.Connect and owned
// by the client state until it is disconnected or replaced.
//
// The signing capabilities are optional. A nil func means the wallet does not
// offer that capability; use the Can* methods to query them.
type Session struct {
	Account   Account
	Connector Metadata

	DisconnectFunc      func(ctx context.Context) error
	SignMessageFunc     func(ctx context.Context, message []byte) (solana.Signature, error)
	SignTransactionFunc func(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
	// SendTransactionFunc signs and submits in one wallet-native call and
	// returns the raw signature, either 64 bytes or base58 text.
	SendTransactionFunc func(ctx context.Context, tx *solana.Transaction, opts SendOptions) ([]byte, error)
}

func (s *Session) CanSignMessage() bool     { return s != nil && s.SignMessageFunc != nil }
func (s *Session) CanSignTransaction() bool { return s != nil && s.SignTransactionFunc != nil }
func (s *Session) CanSendTransaction() bool { return s != nil && s.SendTransactionFunc != nil }

// Disconnect ends the session. Sessions without a disconnect hook are a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	if s == nil || s.DisconnectFunc == nil {
		return nil
	}
	return s.DisconnectFunc(ctx)
}

// SignMessage signs an arbitrary message with the session key.
func (s *Session) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	if !s.CanSignMessage() {
		return solana.Signature{}, fmt.Errorf("%w: sign message", ErrUnsupported)
	}
	return s.SignMessageFunc(ctx, message)
}

// SignTransaction returns tx with the session's signature applied.
func (s *Session) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if !s.CanSignTransaction() {
		return nil, fmt.Errorf("%w: sign transaction", ErrUnsupported)
	}
	return s.SignTransactionFunc(ctx, tx)
}

// SendTransaction signs and submits tx through the wallet and decodes the
// signature it reports.
func (s *Session) SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	if !s.CanSendTransaction() {
		return solana.Signature{}, fmt.Errorf("%w: send transaction", ErrUnsupported)
	}
	raw, err := s.SendTransactionFunc(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, err
	}
	return DecodeSignature(raw)
}

// DecodeSignature accepts a raw 64-byte signature or its base58 text form.
func DecodeSignature(raw []byte) (solana.Signature, error) {
	if len(raw) == solana.SignatureLength {
		return solana.SignatureFromBytes(raw), nil
	}
	decoded, err := base58.Decode(string(raw))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to decode wallet signature: %w", err)
	}
	if len(decoded) != solana.SignatureLength {
		return solana.Signature{}, fmt.Errorf("wallet signature has %d bytes, want %d", len(decoded), solana.SignatureLength)
	}
	return solana.SignatureFromBytes(decoded), nil
}
