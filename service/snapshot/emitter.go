package snapshot

import (
	"log/slog"
	"sync"

	"github.com/brojonat/solclient/service/metrics"
	"github.com/brojonat/solclient/service/state"
)

// Listener receives snapshots.
type Listener func(State)

// Subscribe emits the current snapshot to listener, then emits again each
// time the store changes in a way that alters the snapshot's JSON form.
// The returned func stops emission.
func Subscribe(store *state.Store, listener Listener, logger *slog.Logger, m *metrics.Metrics) (unsubscribe func()) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		mu   sync.Mutex
		last string
		sent bool
	)
	emit := func(s state.ClientState) {
		snap := FromClientState(s)
		raw, err := snap.Marshal()
		if err != nil {
			logger.Error("failed to serialize snapshot", "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if sent && string(raw) == last {
			return
		}
		last, sent = string(raw), true
		m.RecordSnapshotEmitted()
		listener(snap)
	}

	return store.SubscribeCurrent(emit)
}
