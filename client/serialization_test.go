package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/snapshot"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestInitialSerializableState(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want snapshot.State
	}{
		{
			name: "moniker and default commitment",
			cfg:  Config{Endpoint: "devnet"},
			want: snapshot.State{
				Endpoint:   "https://api.devnet.solana.com",
				Commitment: rpc.CommitmentConfirmed,
				Version:    snapshot.Version,
			},
		},
		{
			name: "auto-connect target",
			cfg:  Config{Endpoint: "https://rpc.test", Commitment: rpc.CommitmentFinalized, AutoConnect: "phantom"},
			want: snapshot.State{
				Endpoint:        "https://rpc.test",
				Commitment:      rpc.CommitmentFinalized,
				LastConnectorID: strPtr("phantom"),
				Autoconnect:     true,
				Version:         snapshot.Version,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InitialSerializableState(tt.cfg))
		})
	}
}

func TestApplySerializableState(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		snap snapshot.State
		want Config
	}{
		{
			name: "resumes cluster and wallet",
			cfg:  Config{Endpoint: "devnet", WebsocketEndpoint: "wss://old.test"},
			snap: snapshot.State{
				Endpoint:        "https://rpc.test",
				Commitment:      rpc.CommitmentProcessed,
				LastConnectorID: strPtr("wallet-standard:phantom"),
				Autoconnect:     true,
			},
			want: Config{
				Endpoint:    "https://rpc.test",
				Commitment:  rpc.CommitmentProcessed,
				AutoConnect: "wallet-standard:phantom",
			},
		},
		{
			name: "no autoconnect keeps wallet unset",
			cfg:  Config{Endpoint: "devnet"},
			snap: snapshot.State{
				Endpoint:          "https://rpc.test",
				WebsocketEndpoint: "wss://ws.test",
				LastConnectorID:   strPtr("wallet-standard:phantom"),
			},
			want: Config{Endpoint: "https://rpc.test", WebsocketEndpoint: "wss://ws.test"},
		},
		{
			name: "empty snapshot changes nothing",
			cfg:  Config{Endpoint: "devnet", Commitment: rpc.CommitmentFinalized},
			want: Config{Endpoint: "devnet", Commitment: rpc.CommitmentFinalized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplySerializableState(tt.cfg, tt.snap))
		})
	}
}

func TestSubscribeSolanaState_EmitsOnlyDistinctSnapshots(t *testing.T) {
	// Setup
	conn := newFakeConnector("wallet-standard:phantom")
	address := solana.NewWallet().PublicKey()
	c := newTestClient(t, &solclient.MockRPCClient{}, withConnectors(conn))

	var (
		mu      sync.Mutex
		emitted []snapshot.State
	)
	unsubscribe := SubscribeSolanaState(c, func(s snapshot.State) {
		mu.Lock()
		defer mu.Unlock()
		emitted = append(emitted, s)
	})
	defer unsubscribe()
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(emitted)
	}
	require.Equal(t, 1, count())

	// Act
	_, err := c.FetchBalance(context.Background(), address, "")
	require.NoError(t, err)
	afterFetch := count()
	_, err = c.ConnectWallet(context.Background(), "phantom", connector.ConnectOptions{})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, afterFetch, "cache updates are not part of the snapshot")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, emitted, 3)
	assert.Nil(t, emitted[0].LastConnectorID)
	assert.Equal(t, "wallet-standard:phantom", *emitted[1].LastConnectorID)
	assert.False(t, emitted[1].Autoconnect)
	assert.Equal(t, conn.key.PublicKey().String(), *emitted[2].LastPublicKey)
	assert.True(t, emitted[2].Autoconnect)
}

func TestSerializableState_RoundTripsIntoNewClient(t *testing.T) {
	conn := newFakeConnector("wallet-standard:phantom")
	first := newTestClient(t, &solclient.MockRPCClient{}, withConnectors(conn))
	_, err := first.ConnectWallet(context.Background(), "phantom", connector.ConnectOptions{})
	require.NoError(t, err)

	var saved snapshot.State
	unsubscribe := SubscribeSolanaState(first, func(s snapshot.State) { saved = s })
	unsubscribe()

	second := newTestClient(t, &solclient.MockRPCClient{}, withConnectors(conn), func(cfg *Config) {
		*cfg = ApplySerializableState(*cfg, saved)
	})

	assert.Equal(t, "connected", second.Store().GetState().Wallet.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.silent))
}
