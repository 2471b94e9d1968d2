package nats

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brojonat/solclient/service/state"
)

// PublishTransactions publishes an event for every transaction record change
// in store. Publishing runs on a background goroutine and a record that
// changes again before it is published is sent once, in its newest form.
func PublishTransactions(ctx context.Context, store *state.Store, pub Publisher, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)

	var (
		mu      sync.Mutex
		pending = map[string]state.TransactionChange{}
		order   []string
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
			events := make([]*TransactionEvent, 0, len(order))
			for _, id := range order {
				events = append(events, FromChange(pending[id]))
			}
			pending = map[string]state.TransactionChange{}
			order = nil
			mu.Unlock()

			if err := pub.PublishTransactionBatch(ctx, events); err != nil {
				logger.WarnContext(ctx, "failed to publish transaction events",
					"count", len(events),
					"error", err,
				)
			}
		}
	}()

	unsubscribe := store.SubscribeTransactions(func(changes []state.TransactionChange) {
		mu.Lock()
		for _, c := range changes {
			if _, ok := pending[c.ID]; !ok {
				order = append(order, c.ID)
			}
			pending[c.ID] = c
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
