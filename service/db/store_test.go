package db

import (
	"context"
	"testing"
	"time"

	"github.com/brojonat/solclient/service/snapshot"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshots(t *testing.T) {
	store := newTestStore(t)

	ctx := context.Background()
	sink := store.SnapshotSink("default")

	t.Run("missing snapshot", func(t *testing.T) {
		_, err := sink.Load(ctx)
		assert.ErrorIs(t, err, snapshot.ErrNotFound)
	})

	t.Run("save replaces previous snapshot", func(t *testing.T) {
		connector := "wallet-standard:phantom"
		require.NoError(t, sink.Save(ctx, snapshot.State{Endpoint: "https://a.test", Version: snapshot.Version}))
		require.NoError(t, sink.Save(ctx, snapshot.State{
			Endpoint:        "https://b.test",
			LastConnectorID: &connector,
			Version:         snapshot.Version,
		}))

		got, err := sink.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://b.test", got.Endpoint)
		require.NotNil(t, got.LastConnectorID)
		assert.Equal(t, connector, *got.LastConnectorID)
	})

	t.Run("names are independent", func(t *testing.T) {
		_, err := store.SnapshotSink("other").Load(ctx)
		assert.ErrorIs(t, err, snapshot.ErrNotFound)
	})
}

func TestUpsertTransaction(t *testing.T) {
	store := newTestStore(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond) // Truncate for comparison
	sig := "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

	t.Run("insert", func(t *testing.T) {
		txn, err := store.UpsertTransaction(ctx, UpsertTransactionParams{
			ID:        "txn-1",
			Endpoint:  "https://api.devnet.solana.com",
			Status:    "sending",
			UpdatedAt: now,
		})
		require.NoError(t, err)
		assert.Equal(t, "sending", txn.Status)
		assert.Nil(t, txn.Signature)
		assert.WithinDuration(t, now, txn.UpdatedAt, time.Microsecond)
		assert.WithinDuration(t, time.Now(), txn.CreatedAt, 5*time.Second)
	})

	t.Run("update keeps signature", func(t *testing.T) {
		_, err := store.UpsertTransaction(ctx, UpsertTransactionParams{
			ID: "txn-1", Endpoint: "https://api.devnet.solana.com", Status: "waiting", Signature: &sig, UpdatedAt: now.Add(time.Second),
		})
		require.NoError(t, err)

		txn, err := store.UpsertTransaction(ctx, UpsertTransactionParams{
			ID: "txn-1", Endpoint: "https://api.devnet.solana.com", Status: "confirmed", UpdatedAt: now.Add(2 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, "confirmed", txn.Status)
		require.NotNil(t, txn.Signature)
		assert.Equal(t, sig, *txn.Signature)
	})

	t.Run("older update is ignored", func(t *testing.T) {
		txn, err := store.UpsertTransaction(ctx, UpsertTransactionParams{
			ID: "txn-1", Endpoint: "https://api.devnet.solana.com", Status: "sending", UpdatedAt: now,
		})
		require.NoError(t, err)
		assert.Equal(t, "confirmed", txn.Status)
	})

	t.Run("lookup by signature", func(t *testing.T) {
		txn, err := store.GetTransactionBySignature(ctx, sig)
		require.NoError(t, err)
		assert.Equal(t, "txn-1", txn.ID)

		_, err = store.GetTransactionBySignature(ctx, "missing")
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})
}

func TestListTransactions(t *testing.T) {
	store := newTestStore(t)

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, id := range []string{"a", "b", "c"} {
		_, err := store.UpsertTransaction(ctx, UpsertTransactionParams{
			ID: id, Endpoint: "https://rpc.test", Status: "confirmed", UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	page, err := store.ListTransactions(ctx, ListTransactionsParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	page, err = store.ListTransactions(ctx, ListTransactionsParams{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{"postgresql://localhost/db", "pgx5://localhost/db"},
		{"pgx5://localhost/db", "pgx5://localhost/db"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}
