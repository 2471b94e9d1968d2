package cache

import (
	"context"
	"errors"

	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/state"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrNoSubscriber is recorded when no websocket endpoint is configured.
var ErrNoSubscriber = errors.New("no subscription endpoint configured")

// Watch is a handle on a running watcher.
type Watch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Abort tears down the subscription and waits until its status is inactive.
func (w *Watch) Abort() {
	w.cancel()
	<-w.done
}

// Done is closed once the watcher has stopped for any reason.
func (w *Watch) Done() <-chan struct{} { return w.done }

type subscriptionKind struct {
	name string
	set  func(s state.ClientState, key string, status state.SubscriptionStatus) state.ClientState
}

var (
	accountSubscription = subscriptionKind{
		name: "account",
		set: func(s state.ClientState, key string, status state.SubscriptionStatus) state.ClientState {
			return s.WithAccountSubscription(key, status)
		},
	}
	signatureSubscription = subscriptionKind{
		name: "signature",
		set: func(s state.ClientState, key string, status state.SubscriptionStatus) state.ClientState {
			return s.WithSignatureSubscription(key, status)
		},
	}
)

func (c *Cache) setSubscription(kind subscriptionKind, key string, status state.SubscriptionStatus) {
	c.store.SetState(func(s state.ClientState) state.ClientState {
		return kind.set(s, key, status)
	})
}

// run drives one watcher. It marks the subscription activating, opens it,
// then calls recv until the context ends, recv fails, or recv reports that
// the subscription is finished.
func (c *Cache) run(
	ctx context.Context,
	kind subscriptionKind,
	key string,
	open func(ctx context.Context) (recv func(ctx context.Context) (bool, error), closeFn func(), err error),
) *Watch {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{cancel: cancel, done: make(chan struct{})}

	c.setSubscription(kind, key, state.SubscriptionActivating{})

	recv, closeFn, err := open(wctx)
	if err != nil {
		c.logger.WarnContext(ctx, "subscription failed",
			"kind", kind.name,
			"key", key,
			"error", err,
		)
		c.setSubscription(kind, key, state.SubscriptionError{Err: err})
		go func() {
			defer close(w.done)
			<-wctx.Done()
			c.setSubscription(kind, key, state.SubscriptionInactive{})
		}()
		return w
	}

	c.setSubscription(kind, key, state.SubscriptionActive{})
	c.metrics.RecordSubscriptionChange(kind.name, 1)

	go func() {
		defer close(w.done)
		defer c.metrics.RecordSubscriptionChange(kind.name, -1)
		defer closeFn()

		for {
			finished, err := recv(wctx)
			if wctx.Err() != nil {
				c.setSubscription(kind, key, state.SubscriptionInactive{})
				return
			}
			if err != nil {
				c.logger.WarnContext(ctx, "subscription ended with error",
					"kind", kind.name,
					"key", key,
					"error", err,
				)
				c.setSubscription(kind, key, state.SubscriptionError{Err: err})
				<-wctx.Done()
				c.setSubscription(kind, key, state.SubscriptionInactive{})
				return
			}
			c.metrics.RecordSubscriptionNotification(kind.name)
			if finished {
				c.setSubscription(kind, key, state.SubscriptionInactive{})
				return
			}
		}
	}()
	return w
}

// WatchAccount keeps the cache entry for address updated from account
// notifications.
func (c *Cache) WatchAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) *Watch {
	return c.watchAccount(ctx, address, commitment, "watch_account", applyAccount)
}

// WatchBalance is WatchAccount that only refreshes lamports.
func (c *Cache) WatchBalance(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) *Watch {
	return c.watchAccount(ctx, address, commitment, "watch_balance", func(acct *rpc.Account) merge {
		if acct == nil {
			return applyLamports(0)
		}
		return applyLamports(acct.Lamports)
	})
}

func (c *Cache) watchAccount(
	ctx context.Context,
	address solana.PublicKey,
	commitment rpc.CommitmentType,
	source string,
	toMerge func(*rpc.Account) merge,
) *Watch {
	key := address.String()
	commitment = c.commitmentOr(commitment)

	return c.run(ctx, accountSubscription, key, func(ctx context.Context) (func(context.Context) (bool, error), func(), error) {
		sub := c.transport.Subscriber()
		if sub == nil {
			return nil, nil, ErrNoSubscriber
		}
		stream, err := sub.SubscribeAccount(ctx, address, commitment)
		if err != nil {
			return nil, nil, err
		}
		recv := func(ctx context.Context) (bool, error) {
			n, err := stream.Recv(ctx)
			if err != nil {
				return false, err
			}
			c.write(source, key, n.Slot, toMerge(n.Account))
			return false, nil
		}
		return recv, stream.Close, nil
	})
}

// WatchSignature waits for signature to reach commitment and moves the
// tracked transaction record to confirmed or failed. The subscription ends
// after the first notification.
func (c *Cache) WatchSignature(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) *Watch {
	key := signature.String()
	commitment = c.commitmentOr(commitment)

	return c.run(ctx, signatureSubscription, key, func(ctx context.Context) (func(context.Context) (bool, error), func(), error) {
		sub := c.transport.Subscriber()
		if sub == nil {
			return nil, nil, ErrNoSubscriber
		}
		stream, err := sub.SubscribeSignature(ctx, signature, commitment)
		if err != nil {
			return nil, nil, err
		}
		recv := func(ctx context.Context) (bool, error) {
			n, err := stream.Recv(ctx)
			if err != nil {
				return false, err
			}
			c.settle(signature, n.Err)
			return true, nil
		}
		return recv, stream.Close, nil
	})
}

// settle records the outcome of signature on its transaction record.
func (c *Cache) settle(signature solana.Signature, txErr interface{}) {
	now := c.now()
	c.store.SetState(func(s state.ClientState) state.ClientState {
		id, rec, ok := s.TransactionBySignature(signature)
		if !ok || rec.Status.Terminal() {
			return s
		}
		rec.LastUpdatedAt = now
		if txErr != nil {
			rec.Status = state.TransactionFailed
			rec.Err = &solclient.TransactionError{Signature: signature, Err: txErr}
		} else {
			rec.Status = state.TransactionConfirmed
			rec.Err = nil
		}
		return s.WithTransaction(id, rec)
	})
}
