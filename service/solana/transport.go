package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Transport yields the collaborators for the currently configured cluster.
// The client swaps them when the cluster changes, so callers must not hold
// on to the returned values across operations.
type Transport interface {
	RPC() RPCClient
	Subscriber() Subscriber
}

type staticTransport struct {
	rpc RPCClient
	sub Subscriber
}

func (s staticTransport) RPC() RPCClient         { return s.rpc }
func (s staticTransport) Subscriber() Subscriber { return s.sub }

// StaticTransport returns a Transport that never changes.
func StaticTransport(rpcClient RPCClient, sub Subscriber) Transport {
	return staticTransport{rpc: rpcClient, sub: sub}
}

// TransactionError is the on-chain error reported for a failed transaction.
type TransactionError struct {
	Signature solana.Signature
	Err       interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}
