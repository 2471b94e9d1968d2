package txn

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/solclient/service/connector"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go"
)

// ErrMissingAuthority is returned when a prepare call has no usable signer.
var ErrMissingAuthority = errors.New("missing transaction authority")

// Mode is how a prepared transaction reaches the cluster.
type Mode string

const (
	// ModePartial means the signer only signs; the pipeline submits.
	ModePartial Mode = "partial"
	// ModeSend means the signer signs and submits in one call.
	ModeSend Mode = "send"
)

// Signer produces signatures for the fee payer of a transaction.
type Signer interface {
	Address() solana.PublicKey
	// CanSignAndSend reports whether SignAndSendTransaction is available.
	CanSignAndSend() bool
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
	// SignAndSendTransaction returns the raw signature reported by the
	// signer, either 64 bytes or base58 text.
	SignAndSendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) ([]byte, error)
}

// Authority is who pays for and signs a transaction: a wallet session or a
// raw signer.
type Authority struct {
	session *connector.Session
	signer  Signer
}

// WalletAuthority authorizes with a connected wallet session.
func WalletAuthority(s *connector.Session) Authority { return Authority{session: s} }

// SignerAuthority authorizes with a raw signer.
func SignerAuthority(s Signer) Authority { return Authority{signer: s} }

// IsZero reports whether no authority was given.
func (a Authority) IsZero() bool { return a.session == nil && a.signer == nil }

// Address returns the fee payer address, or the zero key.
func (a Authority) Address() solana.PublicKey {
	switch {
	case a.session != nil:
		return a.session.Account.PublicKey
	case a.signer != nil:
		return a.signer.Address()
	default:
		return solana.PublicKey{}
	}
}

// resolve returns the signer and the submission mode. Capabilities are
// queried once here and not again at send time.
func (a Authority) resolve() (Signer, Mode, error) {
	var signer Signer
	switch {
	case a.session != nil:
		if !a.session.CanSignTransaction() && !a.session.CanSendTransaction() {
			return nil, "", fmt.Errorf("%w: wallet can neither sign nor send transactions", connector.ErrUnsupported)
		}
		signer = &sessionSigner{session: a.session}
	case a.signer != nil:
		signer = a.signer
	default:
		return nil, "", ErrMissingAuthority
	}

	if signer.CanSignAndSend() {
		return signer, ModeSend, nil
	}
	return signer, ModePartial, nil
}

// sessionSigner adapts a wallet session to Signer.
type sessionSigner struct {
	session *connector.Session
}

func (s *sessionSigner) Address() solana.PublicKey { return s.session.Account.PublicKey }

func (s *sessionSigner) CanSignAndSend() bool { return s.session.CanSendTransaction() }

func (s *sessionSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	return s.session.SignTransaction(ctx, tx)
}

func (s *sessionSigner) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) ([]byte, error) {
	if !s.session.CanSendTransaction() {
		return nil, fmt.Errorf("%w: send transaction", connector.ErrUnsupported)
	}
	return s.session.SendTransactionFunc(ctx, tx, connector.SendOptions{
		MaxRetries:          opts.MaxRetries,
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.PreflightCommitment,
	})
}

// KeypairSigner signs with a local private key and never submits.
type KeypairSigner struct {
	key solana.PrivateKey
}

// NewKeypairSigner returns a partial-mode signer for key.
func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

func (k *KeypairSigner) Address() solana.PublicKey { return k.key.PublicKey() }

func (k *KeypairSigner) CanSignAndSend() bool { return false }

func (k *KeypairSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := solclient.PartialSign(tx, k.key); err != nil {
		return nil, err
	}
	return tx, nil
}

func (k *KeypairSigner) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) ([]byte, error) {
	return nil, fmt.Errorf("%w: keypair signer cannot submit", connector.ErrUnsupported)
}
