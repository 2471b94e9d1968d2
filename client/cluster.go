package client

import (
	"context"
	"fmt"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/state"
)

// SetCluster points the client at endpoint and probes its health.
//
// The status moves to connecting, then to ready or error once the probe
// finishes or times out. Probe failures are recorded in state, not
// returned. When SetCluster is called again before a probe finishes, the
// older probe's outcome is discarded. The returned error is only for
// invalid arguments.
func (c *Client) SetCluster(ctx context.Context, endpoint string, cfg ClusterConfig) error {
	if endpoint == "" {
		return &ConfigurationError{Op: "set cluster", Err: fmt.Errorf("endpoint is required")}
	}
	endpoint = solclient.ResolveEndpoint(endpoint)
	ws, err := websocketFor(endpoint, cfg.WebsocketEndpoint)
	if err != nil {
		return &ConfigurationError{Op: "set cluster", Err: err}
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = c.store.GetState().Cluster.Commitment
	}

	c.clusterMu.Lock()
	c.generation++
	gen := c.generation
	rpcClient, sub := c.dial(endpoint, ws)
	old := c.transport.swap(rpcClient, sub)
	c.store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithCluster(state.ClusterState{
			Endpoint:          endpoint,
			WebsocketEndpoint: ws,
			Commitment:        commitment,
			Status:            state.ClusterConnecting{},
		})
	})
	c.clusterMu.Unlock()

	if old != nil && old != sub {
		if err := old.Close(); err != nil {
			c.logger.WarnContext(ctx, "failed to close previous subscriber", "error", err)
		}
	}

	c.logger.InfoContext(ctx, "connecting to cluster",
		"endpoint", endpoint,
		"commitment", commitment,
	)
	c.probe(ctx, gen, endpoint, rpcClient)
	return nil
}

// probe runs one bounded health check and records the outcome unless a
// newer SetCluster has started since.
func (c *Client) probe(ctx context.Context, gen uint64, endpoint string, rpcClient solclient.RPCClient) {
	start := c.cfg.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	// The call runs on its own goroutine so the timeout holds even if the
	// client ignores ctx.
	result := make(chan error, 1)
	go func() {
		_, err := rpcClient.GetHealth(ctx)
		result <- err
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = fmt.Errorf("health probe timed out after %s: %w", c.cfg.ProbeTimeout, ctx.Err())
	}
	elapsed := c.cfg.Now().Sub(start)

	c.clusterMu.Lock()
	defer c.clusterMu.Unlock()
	if gen != c.generation {
		c.logger.Debug("discarding stale cluster probe", "endpoint", endpoint)
		return
	}

	if err != nil {
		c.metrics.RecordClusterProbe("error", elapsed.Seconds())
		c.logger.Warn("cluster health probe failed", "endpoint", endpoint, "error", err)
		c.store.SetState(func(s state.ClientState) state.ClientState {
			return s.WithClusterStatus(state.ClusterError{Err: err})
		})
		return
	}

	c.metrics.RecordClusterProbe("success", elapsed.Seconds())
	c.logger.Info("cluster ready", "endpoint", endpoint, "latency_ms", elapsed.Milliseconds())
	c.store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithClusterStatus(state.ClusterReady{LatencyMs: elapsed.Milliseconds()})
	})
}
