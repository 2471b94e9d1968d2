package client

import (
	"sync"

	solclient "github.com/brojonat/solclient/service/solana"
)

// switchTransport hands out the collaborators of the current cluster.
type switchTransport struct {
	mu  sync.RWMutex
	rpc solclient.RPCClient
	sub solclient.Subscriber
}

func (t *switchTransport) RPC() solclient.RPCClient {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rpc
}

func (t *switchTransport) Subscriber() solclient.Subscriber {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sub
}

// swap installs new collaborators and returns the previous subscriber for
// the caller to close.
func (t *switchTransport) swap(rpcClient solclient.RPCClient, sub solclient.Subscriber) solclient.Subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.sub
	t.rpc, t.sub = rpcClient, sub
	return old
}
