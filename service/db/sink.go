package db

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brojonat/solclient/service/snapshot"
	"github.com/brojonat/solclient/service/state"
)

// SnapshotSink stores snapshots in the snapshots table under one name.
type SnapshotSink struct {
	store *Store
	name  string
}

// SnapshotSink returns a snapshot.Sink and snapshot.Source for name.
func (s *Store) SnapshotSink(name string) *SnapshotSink {
	return &SnapshotSink{store: s, name: name}
}

func (k *SnapshotSink) Name() string { return "postgres" }

func (k *SnapshotSink) Save(ctx context.Context, s snapshot.State) error {
	return k.store.SaveSnapshot(ctx, k.name, s)
}

func (k *SnapshotSink) Load(ctx context.Context) (snapshot.State, error) {
	return k.store.LoadSnapshot(ctx, k.name)
}

// TransactionWriter is the write side of Store used by TrackTransactions.
type TransactionWriter interface {
	UpsertTransaction(ctx context.Context, params UpsertTransactionParams) (*Transaction, error)
}

// TrackTransactions mirrors the client's transaction records into w. Only
// records whose status or LastUpdatedAt changed are written, on a background
// goroutine; state updates never wait for the database. stop flushes nothing
// further and waits for the writer to exit.
func TrackTransactions(ctx context.Context, store *state.Store, w TransactionWriter, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)

	var (
		mu      sync.Mutex
		pending = map[string]UpsertTransactionParams{}
		wake    = make(chan struct{}, 1)
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
			mu.Lock()
			batch := pending
			pending = map[string]UpsertTransactionParams{}
			mu.Unlock()

			for _, params := range batch {
				if _, err := w.UpsertTransaction(ctx, params); err != nil {
					logger.WarnContext(ctx, "failed to persist transaction record",
						"transaction_id", params.ID,
						"status", params.Status,
						"error", err,
					)
				}
			}
		}
	}()

	unsubscribe := store.SubscribeTransactions(func(changes []state.TransactionChange) {
		mu.Lock()
		for _, c := range changes {
			pending[c.ID] = upsertParams(c)
		}
		mu.Unlock()
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	return func() {
		unsubscribe()
		cancel()
		wg.Wait()
	}
}

func upsertParams(c state.TransactionChange) UpsertTransactionParams {
	rec := c.Record
	params := UpsertTransactionParams{
		ID:        c.ID,
		Endpoint:  c.Endpoint,
		Address:   rec.Address,
		Status:    string(rec.Status),
		UpdatedAt: rec.LastUpdatedAt,
	}
	if rec.Signature != nil {
		sig := rec.Signature.String()
		params.Signature = &sig
	}
	if rec.Err != nil {
		msg := rec.Err.Error()
		params.Error = &msg
	}
	return params
}
