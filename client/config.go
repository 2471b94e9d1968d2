package client

import (
	"log/slog"
	"time"

	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/metrics"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultProbeTimeout bounds the cluster health probe.
const DefaultProbeTimeout = 10 * time.Second

// Dialer builds the raw collaborators for a cluster. The RPC client is
// wrapped with rate limiting and metrics by the caller.
type Dialer func(endpoint, websocketEndpoint string) (solclient.RPCClient, solclient.Subscriber)

// Config configures a Client.
type Config struct {
	// Endpoint is an RPC URL or a moniker such as "devnet".
	Endpoint string
	// WebsocketEndpoint is derived from Endpoint when empty.
	WebsocketEndpoint string
	Commitment        rpc.CommitmentType

	Connectors []connector.Connector
	// AutoConnect names a connector to connect silently at startup.
	AutoConnect string

	ProbeTimeout    time.Duration
	ConfirmInterval time.Duration

	// RateLimit is in requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int

	PriorityFee      uint64
	ComputeUnitLimit uint32

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Dial    Dialer
	Now     func() time.Time
}

func (cfg Config) withDefaults() Config {
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// ClusterConfig are the optional SetCluster parameters.
type ClusterConfig struct {
	Commitment        rpc.CommitmentType
	WebsocketEndpoint string
}
