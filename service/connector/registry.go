package connector

import "strings"

const (
	// NamespaceSeparator splits a discovery namespace from a wallet name.
	NamespaceSeparator = ":"

	walletStandardPrefix = "wallet-standard:"
	mobileAdapterPrefix  = "mwa:"
	walletConnectID      = "walletconnect"
)

// Registry is the immutable set of connectors available to a client.
type Registry struct {
	connectors []Connector
	byID       map[string]Connector
}

// NewRegistry builds a registry. When two connectors share an id the first
// one wins.
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{
		connectors: make([]Connector, 0, len(connectors)),
		byID:       make(map[string]Connector, len(connectors)),
	}
	for _, c := range connectors {
		if c == nil {
			continue
		}
		if _, dup := r.byID[c.ID()]; dup {
			continue
		}
		r.byID[c.ID()] = c
		r.connectors = append(r.connectors, c)
	}
	return r
}

// All returns the deduplicated connectors in registration order.
func (r *Registry) All() []Connector {
	out := make([]Connector, len(r.connectors))
	copy(out, r.connectors)
	return out
}

// Get resolves id to a connector.
//
// An exact id always wins. A bare name such as "phantom" also matches
// "wallet-standard:phantom" and then "mwa:phantom", in that order. Namespaced
// ids and "walletconnect" only ever match exactly.
func (r *Registry) Get(id string) (Connector, bool) {
	if c, ok := r.byID[id]; ok {
		return c, true
	}
	if id == "" || id == walletConnectID || strings.Contains(id, NamespaceSeparator) {
		return nil, false
	}
	for _, prefix := range []string{walletStandardPrefix, mobileAdapterPrefix} {
		if c, ok := r.byID[prefix+id]; ok {
			return c, true
		}
	}
	return nil, false
}
