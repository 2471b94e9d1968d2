package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/solclient/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(mock *MockRPCClient, opts ...ClientOption) (*Client, *prometheus.Registry) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	return NewClient(mock, "test", metrics.NewMetrics(reg), logger, opts...), reg
}

func TestClient_DelegatesAndRecords(t *testing.T) {
	ctx := context.Background()
	account := solana.NewWallet().PublicKey()

	mock := &MockRPCClient{
		GetBalanceFunc: func(ctx context.Context, got solana.PublicKey) (*rpc.GetBalanceResult, error) {
			assert.Equal(t, account, got)
			return &rpc.GetBalanceResult{RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: 12}}, Value: 500}, nil
		},
	}
	client, reg := newTestClient(mock)

	// Act
	res, err := client.GetBalance(ctx, account, rpc.CommitmentConfirmed)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint64(500), res.Value)
	assert.Equal(t, uint64(12), res.Context.Slot)
	assert.Equal(t, 1, mock.Calls("GetBalance"))

	count, err := testutil.GatherAndCount(reg, "solana_rpc_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClient_PropagatesErrors(t *testing.T) {
	mock := &MockRPCClient{
		GetHealthFunc: func(ctx context.Context) (string, error) {
			return "", errors.New("node is behind")
		},
	}
	client, _ := newTestClient(mock)

	_, err := client.GetHealth(context.Background())
	assert.ErrorContains(t, err, "node is behind")
}

func TestClient_RateLimit(t *testing.T) {
	mock := &MockRPCClient{}
	client, _ := newTestClient(mock, WithRateLimit(0.001, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The first call spends the only token.
	_, err := client.GetSlot(ctx, rpc.CommitmentConfirmed)
	require.NoError(t, err)

	// The second would wait far longer than the deadline.
	_, err = client.GetSlot(ctx, rpc.CommitmentConfirmed)
	assert.Error(t, err)
	assert.Equal(t, 1, mock.Calls("GetSlot"))
}

func TestWithRateLimit_Disabled(t *testing.T) {
	client, _ := newTestClient(&MockRPCClient{}, WithRateLimit(0, 0))
	assert.Nil(t, client.limiter)
}
