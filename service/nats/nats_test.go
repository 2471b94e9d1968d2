package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/solclient/service/snapshot"
	"github.com/brojonat/solclient/service/state"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFromChange(t *testing.T) {
	sig := solana.Signature{1, 2, 3}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	change := state.TransactionChange{
		ID:       "txn-1",
		Endpoint: "https://rpc.test",
		Record: state.TransactionRecord{
			Address:       "payer",
			Status:        state.TransactionFailed,
			Signature:     &sig,
			Err:           errors.New("insufficient funds"),
			LastUpdatedAt: at,
		},
	}

	event := FromChange(change)

	assert.Equal(t, "txn-1", event.ID)
	assert.Equal(t, "payer", event.Address)
	assert.Equal(t, "https://rpc.test", event.Endpoint)
	assert.Equal(t, "failed", event.Status)
	assert.Equal(t, sig.String(), event.Signature)
	assert.Equal(t, "insufficient funds", event.Error)
	assert.Equal(t, at, event.UpdatedAt)
	assert.False(t, event.PublishedAt.IsZero())
}

func TestFromChange_OmitsEmptyFields(t *testing.T) {
	event := FromChange(state.TransactionChange{
		ID:     "txn-2",
		Record: state.TransactionRecord{Status: state.TransactionSending},
	})

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "signature")
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, "sending", decoded["status"])
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{name: "address", address: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", want: "txns.9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"},
		{name: "empty address", address: "", want: "txns.unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(tt.address))
		})
	}
}

func TestPublishTransactions(t *testing.T) {
	// Setup
	store := state.NewStore(state.Initial(state.ClusterState{Endpoint: "https://rpc.test"}))
	pub := NewRecordingPublisher()
	stop := PublishTransactions(context.Background(), store, pub, testLogger())
	defer stop()

	// Act
	store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithTransaction("txn-1", state.TransactionRecord{
			Address:       "payer",
			Status:        state.TransactionSending,
			LastUpdatedAt: time.Unix(1, 0),
		})
	})
	require.Eventually(t, func() bool { return pub.Count() == 1 }, time.Second, time.Millisecond)

	sig := solana.Signature{7}
	store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithTransaction("txn-1", state.TransactionRecord{
			Address:       "payer",
			Status:        state.TransactionConfirmed,
			Signature:     &sig,
			LastUpdatedAt: time.Unix(2, 0),
		})
	})

	// Assert
	require.Eventually(t, func() bool { return pub.Count() == 2 }, time.Second, time.Millisecond)
	events := pub.Subject(Subject("payer"))
	require.Len(t, events, 2)
	assert.Equal(t, "sending", events[0].Status)
	assert.Equal(t, "confirmed", events[1].Status)
	assert.Equal(t, sig.String(), events[1].Signature)
	assert.Equal(t, "https://rpc.test", events[1].Endpoint)
}

func TestPublishTransactions_IgnoresUnrelatedUpdates(t *testing.T) {
	store := state.NewStore(state.Initial(state.ClusterState{}))
	pub := NewRecordingPublisher()
	stop := PublishTransactions(context.Background(), store, pub, nil)
	defer stop()

	store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithClusterStatus(state.ClusterReady{LatencyMs: 12})
	})

	assert.Never(t, func() bool { return pub.Count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPublishTransactions_PublishErrorsAreLogged(t *testing.T) {
	store := state.NewStore(state.Initial(state.ClusterState{}))
	pub := NewRecordingPublisher()
	pub.FailWith(errors.New("nats: no responders"))
	stop := PublishTransactions(context.Background(), store, pub, testLogger())

	store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithTransaction("txn-1", state.TransactionRecord{Status: state.TransactionSending, LastUpdatedAt: time.Unix(1, 0)})
	})

	assert.Never(t, func() bool { return pub.Count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	stop()
}

// memoryKV is an in-memory KeyValue.
type memoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
	putErr error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string][]byte{}}
}

func (m *memoryKV) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return 0, m.putErr
	}
	m.values[key] = value
	return uint64(len(m.values)), nil
}

func (m *memoryKV) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return memoryEntry{value: v}, nil
}

type memoryEntry struct {
	jetstream.KeyValueEntry
	value []byte
}

func (e memoryEntry) Value() []byte { return e.value }

func TestSnapshotKV_RoundTrip(t *testing.T) {
	// Setup
	kv := NewSnapshotKV(newMemoryKV(), "default")
	id := "wallet-standard:local"
	key := solana.NewWallet().PublicKey().String()
	want := snapshot.State{
		Endpoint:        "https://rpc.test",
		Commitment:      rpc.CommitmentFinalized,
		LastConnectorID: &id,
		LastPublicKey:   &key,
		Autoconnect:     true,
		Version:         snapshot.Version,
	}

	// Act
	require.NoError(t, kv.Save(context.Background(), want))
	got, err := kv.Load(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "nats-kv", kv.Name())
}

func TestSnapshotKV_NotFound(t *testing.T) {
	kv := NewSnapshotKV(newMemoryKV(), "default")

	_, err := kv.Load(context.Background())

	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestSnapshotKV_PutError(t *testing.T) {
	mem := newMemoryKV()
	mem.putErr = errors.New("bucket not found")
	kv := NewSnapshotKV(mem, "default")

	err := kv.Save(context.Background(), snapshot.State{Endpoint: "https://rpc.test", Version: snapshot.Version})

	assert.ErrorContains(t, err, "bucket not found")
}
