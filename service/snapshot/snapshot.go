// Package snapshot derives the persistable projection of the client state
// and emits it only when it changes.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brojonat/solclient/service/state"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
)

// Version is the snapshot format written by this package.
const Version = 1

// ErrUnsupportedVersion is returned when decoding a snapshot written by a
// newer format.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// State is the persisted shape of a client: the cluster target and the last
// wallet it was connected to.
type State struct {
	Endpoint          string             `json:"endpoint"`
	Commitment        rpc.CommitmentType `json:"commitment,omitempty"`
	WebsocketEndpoint string             `json:"websocketEndpoint,omitempty"`
	LastConnectorID   *string            `json:"lastConnectorId"`
	LastPublicKey     *string            `json:"lastPublicKey"`
	Autoconnect       bool               `json:"autoconnect"`
	Version           int                `json:"version"`
}

// FromClientState projects s. Only connector, key and cluster target
// survive; caches, subscriptions and timestamps do not.
func FromClientState(s state.ClientState) State {
	out := State{
		Endpoint:          s.Cluster.Endpoint,
		Commitment:        s.Cluster.Commitment,
		WebsocketEndpoint: s.Cluster.WebsocketEndpoint,
		Version:           Version,
	}
	if id := state.ConnectorIDOf(s.Wallet); id != "" {
		out.LastConnectorID = &id
	}
	if connected, ok := s.Wallet.(state.WalletConnected); ok && connected.Session != nil {
		key := connected.Session.Account.PublicKey.String()
		out.LastPublicKey = &key
		out.Autoconnect = true
	}
	return out
}

// Marshal returns the canonical JSON form used for change detection and
// storage.
func (s State) Marshal() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return raw, nil
}

// Unmarshal decodes and validates a stored snapshot. A missing version is
// read as version 1.
func Unmarshal(raw []byte) (State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if s.Version == 0 {
		s.Version = Version
	}
	if s.Version > Version {
		return State{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	if s.LastPublicKey != nil {
		decoded, err := base58.Decode(*s.LastPublicKey)
		if err != nil || len(decoded) != solana.PublicKeyLength {
			return State{}, fmt.Errorf("snapshot has invalid public key %q", *s.LastPublicKey)
		}
	}
	return s, nil
}
