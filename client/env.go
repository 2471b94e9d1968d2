package client

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/solclient/service/config"
	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/metrics"
)

// LocalConnectorID identifies the connector built from config.KeypairPath.
const LocalConnectorID = "wallet-standard:local"

// ConnectorsFor builds the connectors cfg describes: every wallet in the
// manifest, then a keypair connector for KeypairPath. prompt may be nil.
func ConnectorsFor(cfg *config.Config, prompt func(name string) connector.KeySource) ([]connector.Connector, error) {
	var out []connector.Connector
	if cfg.WalletManifest != "" {
		manifest, err := connector.LoadManifest(cfg.WalletManifest)
		if err != nil {
			return nil, err
		}
		out = append(out, manifest.Connectors(prompt)...)
	}
	if cfg.KeypairPath != "" {
		for _, c := range out {
			if c.ID() == LocalConnectorID {
				return nil, fmt.Errorf("wallet manifest already defines %q", LocalConnectorID)
			}
		}
		out = append(out, connector.NewKeypairConnector(LocalConnectorID, "Local keypair", connector.KeygenFile(cfg.KeypairPath),
			connector.WithLabel(cfg.KeypairPath),
		))
	}
	return out, nil
}

// ConfigFor maps service configuration onto a client Config.
func ConfigFor(cfg *config.Config, connectors []connector.Connector, logger *slog.Logger, m *metrics.Metrics) Config {
	return Config{
		Endpoint:          cfg.SolanaRPCURL,
		WebsocketEndpoint: cfg.SolanaWSURL,
		Commitment:        cfg.Commitment,
		Connectors:        connectors,
		AutoConnect:       cfg.AutoConnect,
		ProbeTimeout:      cfg.ProbeTimeout,
		ConfirmInterval:   cfg.ConfirmPollInterval,
		RateLimit:         cfg.RPCRateLimit,
		RateBurst:         cfg.RPCRateBurst,
		PriorityFee:       cfg.PriorityFeeMicroLamports,
		ComputeUnitLimit:  cfg.ComputeUnitLimit,
		Logger:            logger,
		Metrics:           m,
	}
}
