// Package client is the headless Solana client runtime: it owns the state
// container, the connector registry, the cluster and wallet state machines,
// the account cache and the transaction pipeline, and exposes them as
// actions, watchers and feature helpers.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brojonat/solclient/service/cache"
	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/features"
	"github.com/brojonat/solclient/service/metrics"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/state"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client is one independent runtime instance.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	store     *state.Store
	registry  *connector.Registry
	transport *switchTransport
	cache     *cache.Cache
	pipeline  *txn.Pipeline
	features  *features.Helpers

	// clusterMu orders SetCluster calls against probe completions.
	clusterMu  sync.Mutex
	generation uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ready   chan struct{}
	destroy sync.Once
}

// New creates a client and starts warming up the cluster connection in the
// background. Warmup and auto-connect failures are recorded in state and
// never returned; New fails only on invalid configuration.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Endpoint == "" {
		return nil, &ConfigurationError{Op: "new client", Err: fmt.Errorf("endpoint is required")}
	}
	endpoint := solclient.ResolveEndpoint(cfg.Endpoint)
	ws, err := websocketFor(endpoint, cfg.WebsocketEndpoint)
	if err != nil {
		return nil, &ConfigurationError{Op: "new client", Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:       cfg,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		registry:  connector.NewRegistry(cfg.Connectors...),
		transport: &switchTransport{},
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
	}
	c.store = state.NewStore(state.Initial(state.ClusterState{
		Endpoint:          endpoint,
		WebsocketEndpoint: ws,
		Commitment:        cfg.Commitment,
	}), state.WithClock(cfg.Now))

	rpcClient, sub := c.dial(endpoint, ws)
	c.transport.swap(rpcClient, sub)

	c.cache = cache.New(c.store, c.transport, c.logger, c.metrics)
	c.pipeline = txn.NewPipeline(c.transport, c.logger, c.metrics, txn.WithDefaultCommitment(func() rpc.CommitmentType {
		return c.store.GetState().Cluster.Commitment
	}))
	c.features = features.New(c.pipeline, c.logger,
		features.WithPriorityFee(cfg.PriorityFee),
		features.WithComputeUnitLimit(cfg.ComputeUnitLimit),
	)

	var warmup sync.WaitGroup
	warmup.Add(1)
	c.goroutine(func() {
		defer warmup.Done()
		if err := c.SetCluster(c.ctx, endpoint, ClusterConfig{Commitment: cfg.Commitment, WebsocketEndpoint: ws}); err != nil {
			c.logger.ErrorContext(c.ctx, "cluster warmup failed", "endpoint", endpoint, "error", err)
		}
	})
	if cfg.AutoConnect != "" {
		warmup.Add(1)
		c.goroutine(func() {
			defer warmup.Done()
			c.autoConnect(cfg.AutoConnect)
		})
	}
	c.goroutine(func() {
		warmup.Wait()
		close(c.ready)
	})

	return c, nil
}

func (c *Client) goroutine(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Ready is closed once the startup probe and auto-connect have finished,
// whatever their outcome.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Store returns the state container.
func (c *Client) Store() *state.Store { return c.store }

// Registry returns the connector registry.
func (c *Client) Registry() *connector.Registry { return c.registry }

// Pipeline returns the transaction pipeline.
func (c *Client) Pipeline() *txn.Pipeline { return c.pipeline }

// Features returns the transaction feature helpers.
func (c *Client) Features() *features.Helpers { return c.features }

// RPC returns the RPC client for the current cluster.
func (c *Client) RPC() solclient.RPCClient { return c.transport.RPC() }

// Destroy stops background work, resets the state container and calls the
// teardown hook of every connector that has one. Watchers should be aborted
// by their owners first; any left running are cancelled here.
func (c *Client) Destroy() {
	c.destroy.Do(func() {
		c.cancel()
		c.wg.Wait()
		if sub := c.transport.swap(c.transport.RPC(), nil); sub != nil {
			if err := sub.Close(); err != nil {
				c.logger.Warn("failed to close subscriber", "error", err)
			}
		}
		c.store.Reset()
		for _, conn := range c.registry.All() {
			if d, ok := conn.(connector.Destroyer); ok {
				d.Destroy()
			}
		}
		c.logger.Debug("client destroyed")
	})
}

// dial builds and instruments the collaborators for a cluster.
func (c *Client) dial(endpoint, ws string) (solclient.RPCClient, solclient.Subscriber) {
	var (
		raw solclient.RPCClient
		sub solclient.Subscriber
	)
	if c.cfg.Dial != nil {
		raw, sub = c.cfg.Dial(endpoint, ws)
	} else {
		raw = solclient.NewRPCClient(endpoint)
		if ws != "" {
			sub = solclient.NewSubscriber(ws)
		}
	}
	instrumented := solclient.NewClient(raw, endpoint, c.metrics, c.logger,
		solclient.WithRateLimit(c.cfg.RateLimit, c.cfg.RateBurst),
	)
	return instrumented, sub
}

func websocketFor(endpoint, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	ws, err := solclient.WebsocketURL(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to derive websocket endpoint: %w", err)
	}
	return ws, nil
}

// scope returns a context that also ends when the client is destroyed.
func (c *Client) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
