package state

import (
	"sync"
	"time"
)

// TransactionChange is one transaction record that changed in an update.
type TransactionChange struct {
	ID       string
	Endpoint string
	Record   TransactionRecord
}

type recordVersion struct {
	status TransactionStatus
	at     time.Time
}

// SubscribeTransactions calls fn with the transaction records whose status or
// LastUpdatedAt changed in each update. Records present when it is called
// count as already seen. fn runs on the SetState goroutine and must not
// block.
func (s *Store) SubscribeTransactions(fn func([]TransactionChange)) (unsubscribe func()) {
	var (
		mu     sync.Mutex
		seen   = map[string]recordVersion{}
		primed bool
	)
	return s.SubscribeCurrent(func(next ClientState) {
		if !primed {
			primed = true
			for id, rec := range next.Transactions {
				seen[id] = recordVersion{status: rec.Status, at: rec.LastUpdatedAt}
			}
			return
		}
		mu.Lock()
		var changes []TransactionChange
		for id, rec := range next.Transactions {
			v := recordVersion{status: rec.Status, at: rec.LastUpdatedAt}
			if last, ok := seen[id]; ok && last == v {
				continue
			}
			seen[id] = v
			changes = append(changes, TransactionChange{ID: id, Endpoint: next.Cluster.Endpoint, Record: rec})
		}
		mu.Unlock()
		if len(changes) > 0 {
			fn(changes)
		}
	})
}
