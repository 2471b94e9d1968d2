package solana

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Monikers for the public clusters.
var clusterURLs = map[string]string{
	"mainnet-beta": "https://api.mainnet-beta.solana.com",
	"mainnet":      "https://api.mainnet-beta.solana.com",
	"devnet":       "https://api.devnet.solana.com",
	"testnet":      "https://api.testnet.solana.com",
	"localnet":     "http://127.0.0.1:8899",
	"localhost":    "http://127.0.0.1:8899",
}

// ResolveEndpoint expands a cluster moniker such as "devnet" to its RPC
// URL. Anything else is returned unchanged.
func ResolveEndpoint(endpoint string) string {
	if u, ok := clusterURLs[endpoint]; ok {
		return u
	}
	return endpoint
}

// WebsocketURL derives the websocket endpoint for an RPC URL. The scheme is
// switched to ws or wss and an explicit port is incremented by one, matching
// the validator's default layout (8899 -> 8900).
func WebsocketURL(endpoint string) (string, error) {
	u, err := url.Parse(ResolveEndpoint(endpoint))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
		return u.String(), nil
	default:
		return "", fmt.Errorf("invalid endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("invalid endpoint %q: bad port: %w", endpoint, err)
		}
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(p+1))
	}
	return u.String(), nil
}

// EndpointLabel returns a low-cardinality label for metrics. API keys in
// paths and query strings are dropped.
func EndpointLabel(endpoint string) string {
	u, err := url.Parse(ResolveEndpoint(endpoint))
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
