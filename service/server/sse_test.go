package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/solclient/client"
	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/snapshot"
	"github.com/brojonat/solclient/service/state"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDone = errors.New("done")

func TestStateStream(t *testing.T) {
	// Setup
	store := newTestStateStore()
	srv := New(":0", store, nil, nil, nil, nil, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	remote := client.NewRemote(ts.URL, nil, testLogger())
	key := solana.NewWallet().PublicKey()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Act
	var got []snapshot.State
	err := remote.StreamSnapshots(ctx, func(s snapshot.State) error {
		got = append(got, s)
		switch len(got) {
		case 1:
			// A change outside the snapshot is not streamed.
			store.SetState(func(s state.ClientState) state.ClientState {
				return s.WithClusterStatus(state.ClusterReady{LatencyMs: 3})
			})
			store.SetState(func(s state.ClientState) state.ClientState {
				return s.WithWallet(state.WalletConnected{
					ConnectorID: "wallet-standard:local",
					Session:     &connector.Session{Account: connector.Account{PublicKey: key, Address: key.String()}},
				})
			})
			return nil
		default:
			return errDone
		}
	})

	// Assert
	require.ErrorIs(t, err, errDone)
	require.Len(t, got, 2)
	assert.Equal(t, "https://rpc.test", got[0].Endpoint)
	assert.Nil(t, got[0].LastConnectorID)
	require.NotNil(t, got[1].LastConnectorID)
	assert.Equal(t, "wallet-standard:local", *got[1].LastConnectorID)
	require.NotNil(t, got[1].LastPublicKey)
	assert.Equal(t, key.String(), *got[1].LastPublicKey)
	assert.True(t, got[1].Autoconnect)
}

func TestStateStream_ClientDisconnectUnsubscribes(t *testing.T) {
	store := newTestStateStore()
	srv := New(":0", store, nil, nil, nil, nil, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	remote := client.NewRemote(ts.URL, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- remote.StreamSnapshots(ctx, func(snapshot.State) error {
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after cancel")
	}

	// Updates after the client left must not block the store.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			store.SetState(func(s state.ClientState) state.ClientState {
				return s.WithCluster(state.ClusterState{Endpoint: "https://rpc" + string(rune('a'+i)) + ".test"})
			})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("state updates blocked on a closed stream")
	}
}
