package client

import (
	"github.com/brojonat/solclient/service/snapshot"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
)

// InitialSerializableState is the snapshot a client built from cfg starts
// with, before any wallet connects.
func InitialSerializableState(cfg Config) snapshot.State {
	s := snapshot.State{
		Endpoint:          solclient.ResolveEndpoint(cfg.Endpoint),
		Commitment:        cfg.Commitment,
		WebsocketEndpoint: cfg.WebsocketEndpoint,
		Version:           snapshot.Version,
	}
	if s.Commitment == "" {
		s.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.AutoConnect != "" {
		id := cfg.AutoConnect
		s.LastConnectorID = &id
		s.Autoconnect = true
	}
	return s
}

// SubscribeSolanaState emits the client's snapshot now and again whenever
// its serialized form changes.
func SubscribeSolanaState(c *Client, listener snapshot.Listener) (unsubscribe func()) {
	return snapshot.Subscribe(c.store, listener, c.logger, c.metrics)
}

// ApplySerializableState merges a stored snapshot over cfg so a new client
// resumes the same cluster and, when the snapshot asks for it, silently
// reconnects the same wallet.
func ApplySerializableState(cfg Config, s snapshot.State) Config {
	if s.Endpoint != "" {
		cfg.Endpoint = s.Endpoint
		// A websocket endpoint belongs to its RPC endpoint.
		cfg.WebsocketEndpoint = s.WebsocketEndpoint
	}
	if s.Commitment != "" {
		cfg.Commitment = s.Commitment
	}
	if s.Autoconnect && s.LastConnectorID != nil {
		cfg.AutoConnect = *s.LastConnectorID
	}
	return cfg
}
