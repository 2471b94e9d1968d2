package solana

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brojonat/solclient/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetHealth(ctx context.Context) (string, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	SendEncodedTransaction(ctx context.Context, encoded string, opts rpc.TransactionOpts) (solana.Signature, error)
}

// Client decorates an RPCClient with rate limiting, metrics and debug logging.
// It implements RPCClient itself so callers never see the difference.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	endpoint string // RPC endpoint identifier for metrics (e.g., "devnet", rpc host)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit caps outbound calls at rps with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// instrument waits on the limiter, runs call and records its outcome.
func instrument[T any](ctx context.Context, c *Client, method string, call func() (T, error)) (T, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		c.metrics.RecordRateLimitWait(c.endpoint, time.Since(waitStart).Seconds())
	}

	start := time.Now()
	out, err := call()
	duration := time.Since(start).Seconds()

	status := "success"
	switch {
	case errors.Is(err, rpc.ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
		c.logger.DebugContext(ctx, "solana rpc call failed",
			"method", method,
			"endpoint", c.endpoint,
			"error", err,
		)
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	return out, err
}

func (c *Client) GetHealth(ctx context.Context) (string, error) {
	return instrument(ctx, c, "GetHealth", func() (string, error) {
		return c.rpc.GetHealth(ctx)
	})
}

func (c *Client) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	return instrument(ctx, c, "GetSlot", func() (uint64, error) {
		return c.rpc.GetSlot(ctx, commitment)
	})
}

func (c *Client) GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	return instrument(ctx, c, "GetBlockHeight", func() (uint64, error) {
		return c.rpc.GetBlockHeight(ctx, commitment)
	})
}

func (c *Client) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return instrument(ctx, c, "GetLatestBlockhash", func() (*rpc.GetLatestBlockhashResult, error) {
		return c.rpc.GetLatestBlockhash(ctx, commitment)
	})
}

func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return instrument(ctx, c, "GetBalance", func() (*rpc.GetBalanceResult, error) {
		return c.rpc.GetBalance(ctx, account, commitment)
	})
}

func (c *Client) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	return instrument(ctx, c, "GetAccountInfo", func() (*rpc.GetAccountInfoResult, error) {
		return c.rpc.GetAccountInfoWithOpts(ctx, account, opts)
	})
}

func (c *Client) GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	return instrument(ctx, c, "GetProgramAccounts", func() (rpc.GetProgramAccountsResult, error) {
		return c.rpc.GetProgramAccountsWithOpts(ctx, program, opts)
	})
}

func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	return instrument(ctx, c, "GetMinimumBalanceForRentExemption", func() (uint64, error) {
		return c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, commitment)
	})
}

func (c *Client) GetSignatureStatuses(ctx context.Context, searchHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return instrument(ctx, c, "GetSignatureStatuses", func() (*rpc.GetSignatureStatusesResult, error) {
		return c.rpc.GetSignatureStatuses(ctx, searchHistory, signatures...)
	})
}

func (c *Client) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	return instrument(ctx, c, "RequestAirdrop", func() (solana.Signature, error) {
		return c.rpc.RequestAirdrop(ctx, account, lamports, commitment)
	})
}

func (c *Client) SendEncodedTransaction(ctx context.Context, encoded string, opts rpc.TransactionOpts) (solana.Signature, error) {
	c.logger.DebugContext(ctx, "submitting transaction",
		"endpoint", c.endpoint,
		"skip_preflight", opts.SkipPreflight,
		"preflight_commitment", opts.PreflightCommitment,
	)
	return instrument(ctx, c, "SendTransaction", func() (solana.Signature, error) {
		return c.rpc.SendEncodedTransaction(ctx, encoded, opts)
	})
}
