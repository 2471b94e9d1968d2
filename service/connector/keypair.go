package connector

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/tyler-smith/go-bip39"
)

// KeySource loads a private key.
type KeySource func(ctx context.Context) (solana.PrivateKey, error)

// Submitter sends a fully signed transaction. Connectors that have one can
// offer sign-and-send sessions.
type Submitter interface {
	SendEncodedTransaction(ctx context.Context, encoded string, opts rpc.TransactionOpts) (solana.Signature, error)
}

// KeypairConnector is a connector backed by a local private key. Its silent
// source never prompts; its interactive source (if any) may.
type KeypairConnector struct {
	id          string
	name        string
	label       string
	silent      KeySource
	interactive KeySource
	submitter   Submitter
	autoConnect bool

	mu      sync.Mutex
	session *Session
}

// KeypairOption configures a KeypairConnector.
type KeypairOption func(*KeypairConnector)

// WithPrompt sets the source used for interactive attempts.
func WithPrompt(source KeySource) KeypairOption {
	return func(k *KeypairConnector) { k.interactive = source }
}

// WithSubmitter lets sessions sign and send in one call.
func WithSubmitter(s Submitter) KeypairOption {
	return func(k *KeypairConnector) { k.submitter = s }
}

// WithLabel sets the account label shown for sessions.
func WithLabel(label string) KeypairOption {
	return func(k *KeypairConnector) { k.label = label }
}

// WithAutoConnect overrides whether the connector offers silent connection.
// It defaults to true when a silent source is configured.
func WithAutoConnect(enabled bool) KeypairOption {
	return func(k *KeypairConnector) { k.autoConnect = enabled }
}

// NewKeypairConnector creates a keypair-backed connector.
func NewKeypairConnector(id, name string, silent KeySource, opts ...KeypairOption) *KeypairConnector {
	k := &KeypairConnector{
		id:          id,
		name:        name,
		silent:      silent,
		autoConnect: silent != nil,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *KeypairConnector) ID() string           { return k.id }
func (k *KeypairConnector) Name() string         { return k.name }
func (k *KeypairConnector) CanAutoConnect() bool { return k.autoConnect && k.silent != nil }
func (k *KeypairConnector) IsSupported() bool    { return k.silent != nil || k.interactive != nil }

// Connect loads the key and returns a session for it.
func (k *KeypairConnector) Connect(ctx context.Context, opts ConnectOptions) (*Session, error) {
	if opts.AutoConnect && !k.CanAutoConnect() {
		return nil, fmt.Errorf("%w: %s does not support auto-connect", ErrInteractionRequired, k.id)
	}

	session, err := ConnectSilentThenInteractive(ctx, opts, func(ctx context.Context, interactive bool) (*Session, error) {
		source := k.silent
		if interactive && k.interactive != nil {
			source = k.interactive
		}
		if source == nil {
			return nil, ErrInteractionRequired
		}
		key, err := source(ctx)
		if err != nil {
			return nil, err
		}
		return k.newSession(key), nil
	})
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.session = session
	k.mu.Unlock()
	return session, nil
}

// Disconnect forgets the current session.
func (k *KeypairConnector) Disconnect(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.session = nil
	return nil
}

func (k *KeypairConnector) newSession(key solana.PrivateKey) *Session {
	pub := key.PublicKey()
	s := &Session{
		Account: Account{
			Address:   pub.String(),
			PublicKey: pub,
			Label:     k.label,
		},
		Connector: MetadataOf(k),
		DisconnectFunc: func(ctx context.Context) error {
			return k.Disconnect(ctx)
		},
		SignMessageFunc: func(ctx context.Context, message []byte) (solana.Signature, error) {
			return key.Sign(message)
		},
		SignTransactionFunc: func(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
			if err := solclient.PartialSign(tx, key); err != nil {
				return nil, err
			}
			return tx, nil
		},
	}
	if k.submitter != nil {
		s.SendTransactionFunc = func(ctx context.Context, tx *solana.Transaction, opts SendOptions) ([]byte, error) {
			if err := solclient.PartialSign(tx, key); err != nil {
				return nil, err
			}
			encoded, err := solclient.EncodeTransaction(tx)
			if err != nil {
				return nil, err
			}
			sig, err := k.submitter.SendEncodedTransaction(ctx, encoded, rpc.TransactionOpts{
				SkipPreflight:       opts.SkipPreflight,
				PreflightCommitment: opts.PreflightCommitment,
				MaxRetries:          opts.MaxRetries,
			})
			if err != nil {
				return nil, err
			}
			return sig[:], nil
		}
	}
	return s
}

// KeygenFile reads a key in the solana-keygen JSON format.
func KeygenFile(path string) KeySource {
	return func(ctx context.Context) (solana.PrivateKey, error) {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(expandHome(path))
		if err != nil {
			return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
		}
		return key, nil
	}
}

// Base58Env reads a base58 encoded key from an environment variable.
func Base58Env(name string) KeySource {
	return func(ctx context.Context) (solana.PrivateKey, error) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return nil, fmt.Errorf("%w: %s is not set", ErrInteractionRequired, name)
		}
		key, err := solana.PrivateKeyFromBase58(v)
		if err != nil {
			return nil, fmt.Errorf("invalid key in %s: %w", name, err)
		}
		return key, nil
	}
}

// Mnemonic derives a key from a BIP-39 phrase using the first 32 bytes of
// the seed, as solana-keygen does without a derivation path.
func Mnemonic(phrase, passphrase string) KeySource {
	return func(ctx context.Context) (solana.PrivateKey, error) {
		return keyFromMnemonic(phrase, passphrase)
	}
}

func keyFromMnemonic(phrase, passphrase string) (solana.PrivateKey, error) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if !bip39.IsMnemonicValid(phrase) {
		return nil, errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(phrase, passphrase)
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])), nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
