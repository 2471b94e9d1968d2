// Package cache keeps the account cache in the client state fresh: one-shot
// fetches and long-lived watchers, both writing last-writer-by-slot.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/solclient/service/metrics"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/state"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/singleflight"
)

// Cache performs reads against the cluster and records them in the store.
type Cache struct {
	store     *state.Store
	transport solclient.Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]int
}

// New creates a Cache. If m is nil, no metrics are recorded.
func New(store *state.Store, transport solclient.Transport, logger *slog.Logger, m *metrics.Metrics) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:     store,
		transport: transport,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		inflight:  make(map[string]int),
	}
}

// commitmentOr returns c, or the cluster default when c is empty.
func (c *Cache) commitmentOr(commitment rpc.CommitmentType) rpc.CommitmentType {
	if commitment != "" {
		return commitment
	}
	if def := c.store.GetState().Cluster.Commitment; def != "" {
		return def
	}
	return rpc.CommitmentConfirmed
}

// begin marks address as fetching and returns the matching end func.
func (c *Cache) begin(address string) func() {
	c.mu.Lock()
	c.inflight[address]++
	c.mu.Unlock()

	c.store.SetState(func(s state.ClientState) state.ClientState {
		entry, ok := s.Account(address)
		if !ok {
			entry = state.AccountCacheEntry{Address: address}
		}
		entry.Fetching = true
		return s.WithAccount(entry)
	})

	return func() {
		c.mu.Lock()
		c.inflight[address]--
		if c.inflight[address] <= 0 {
			delete(c.inflight, address)
		}
		c.mu.Unlock()
	}
}

func (c *Cache) fetching(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[address] > 0
}

// merge folds an incoming observation into the cached entry.
type merge func(cur state.AccountCacheEntry) state.AccountCacheEntry

// write applies an observation taken at slot unless the cache already holds
// a newer one. It returns the resulting entry and whether it was applied.
func (c *Cache) write(source, address string, slot uint64, apply merge) (state.AccountCacheEntry, bool) {
	var (
		result  state.AccountCacheEntry
		applied bool
	)
	fetching := c.fetching(address)
	now := c.now()

	c.store.SetState(func(s state.ClientState) state.ClientState {
		cur, ok := s.Account(address)
		if !ok {
			cur = state.AccountCacheEntry{Address: address}
		}
		if ok && slot < cur.Slot {
			cur.Fetching = fetching
			result = cur
			return s.WithAccount(cur)
		}
		next := apply(cur)
		next.Address = address
		next.Slot = slot
		next.Fetching = fetching
		next.LastFetchedAt = now
		next.Err = nil
		result, applied = next, true
		return s.WithAccount(next)
	})

	if applied {
		c.metrics.RecordCacheWrite(source, "applied")
	} else {
		c.metrics.RecordCacheWrite(source, "stale")
		c.logger.Debug("dropped stale account observation",
			"address", address,
			"source", source,
			"slot", slot,
			"cached_slot", result.Slot,
		)
	}
	return result, applied
}

// fail records err on the entry without discarding cached data.
func (c *Cache) fail(source, address string, err error) state.AccountCacheEntry {
	var result state.AccountCacheEntry
	fetching := c.fetching(address)
	c.store.SetState(func(s state.ClientState) state.ClientState {
		cur, ok := s.Account(address)
		if !ok {
			cur = state.AccountCacheEntry{Address: address}
		}
		cur.Fetching = fetching
		cur.Err = err
		result = cur
		return s.WithAccount(cur)
	})
	c.metrics.RecordCacheWrite(source, "error")
	return result
}

func applyAccount(acct *rpc.Account) merge {
	return func(cur state.AccountCacheEntry) state.AccountCacheEntry {
		if acct == nil {
			cur.Lamports = 0
			cur.Data = nil
			cur.Owner = nil
			cur.Executable = false
			return cur
		}
		owner := acct.Owner
		cur.Lamports = acct.Lamports
		cur.Owner = &owner
		cur.Executable = acct.Executable
		cur.Data = nil
		if acct.Data != nil {
			cur.Data = acct.Data.GetBinary()
		}
		return cur
	}
}

func applyLamports(lamports uint64) merge {
	return func(cur state.AccountCacheEntry) state.AccountCacheEntry {
		cur.Lamports = lamports
		return cur
	}
}

// FetchAccount reads the full account and caches it. The returned error is
// also recorded in the entry.
func (c *Cache) FetchAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) (state.AccountCacheEntry, error) {
	key := address.String()
	commitment = c.commitmentOr(commitment)
	end := c.begin(key)

	type observed struct {
		slot uint64
		acct *rpc.Account
	}
	v, err, _ := c.group.Do("account:"+key+":"+string(commitment), func() (interface{}, error) {
		res, err := c.transport.RPC().GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: commitment,
		})
		var missing *solclient.AccountNotFoundError
		if errors.As(err, &missing) {
			return observed{slot: missing.Slot}, nil
		}
		if errors.Is(err, rpc.ErrNotFound) {
			// No context slot: slot 0 only lands on an entry that has
			// never been observed.
			return observed{}, nil
		}
		if err != nil {
			return nil, err
		}
		return observed{slot: res.Context.Slot, acct: res.Value}, nil
	})
	end()

	if err != nil {
		err = fmt.Errorf("failed to fetch account %s: %w", key, err)
		c.logger.WarnContext(ctx, "account fetch failed", "address", key, "error", err)
		return c.fail("fetch_account", key, err), err
	}
	o := v.(observed)
	entry, _ := c.write("fetch_account", key, o.slot, applyAccount(o.acct))
	return entry, nil
}

// FetchBalance reads only the lamport balance and caches it, keeping any
// previously fetched account data.
func (c *Cache) FetchBalance(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) (state.AccountCacheEntry, error) {
	key := address.String()
	commitment = c.commitmentOr(commitment)
	end := c.begin(key)

	v, err, _ := c.group.Do("balance:"+key+":"+string(commitment), func() (interface{}, error) {
		return c.transport.RPC().GetBalance(ctx, address, commitment)
	})
	end()

	if err != nil {
		err = fmt.Errorf("failed to fetch balance %s: %w", key, err)
		c.logger.WarnContext(ctx, "balance fetch failed", "address", key, "error", err)
		return c.fail("fetch_balance", key, err), err
	}
	res := v.(*rpc.GetBalanceResult)
	entry, _ := c.write("fetch_balance", key, res.Context.Slot, applyLamports(res.Value))
	return entry, nil
}

// FetchProgramAccounts reads every account owned by program that matches
// filters and caches each one.
//
// getProgramAccounts carries no context slot, so each write is stamped with
// the slot observed just before the request.
func (c *Cache) FetchProgramAccounts(ctx context.Context, program solana.PublicKey, commitment rpc.CommitmentType, filters ...rpc.RPCFilter) ([]state.AccountCacheEntry, error) {
	commitment = c.commitmentOr(commitment)
	client := c.transport.RPC()

	slot, err := client.GetSlot(ctx, commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	accounts, err := client.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: commitment,
		Encoding:   solana.EncodingBase64,
		Filters:    filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts of program %s: %w", program, err)
	}

	entries := make([]state.AccountCacheEntry, 0, len(accounts))
	for _, keyed := range accounts {
		if keyed == nil {
			continue
		}
		entry, _ := c.write("program_accounts", keyed.Pubkey.String(), slot, applyAccount(keyed.Account))
		entries = append(entries, entry)
	}
	c.logger.DebugContext(ctx, "fetched program accounts",
		"program", program.String(),
		"count", len(entries),
		"slot", slot,
	)
	return entries, nil
}
