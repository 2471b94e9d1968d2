package state

import "github.com/brojonat/solclient/service/connector"

// WalletStatus is the wallet session lifecycle. It is exactly one of
// WalletDisconnected, WalletConnecting, WalletConnected or WalletError.
// A session is only ever reachable through WalletConnected.
type WalletStatus interface {
	walletStatus()
	String() string
}

type WalletDisconnected struct{}

type WalletConnecting struct {
	ConnectorID string
	AutoConnect bool
}

type WalletConnected struct {
	ConnectorID string
	Session     *connector.Session
	AutoConnect bool
}

// WalletError keeps the connector id so a retry can target the same connector.
type WalletError struct {
	ConnectorID string
	Err         error
	AutoConnect bool
}

func (WalletDisconnected) walletStatus() {}
func (WalletConnecting) walletStatus()   {}
func (WalletConnected) walletStatus()    {}
func (WalletError) walletStatus()        {}

func (WalletDisconnected) String() string { return "disconnected" }
func (WalletConnecting) String() string   { return "connecting" }
func (WalletConnected) String() string    { return "connected" }
func (WalletError) String() string        { return "error" }

// ConnectorIDOf returns the connector id carried by the status, if any.
func ConnectorIDOf(s WalletStatus) string {
	switch v := s.(type) {
	case WalletConnecting:
		return v.ConnectorID
	case WalletConnected:
		return v.ConnectorID
	case WalletError:
		return v.ConnectorID
	case WalletDisconnected, nil:
		return ""
	default:
		return ""
	}
}

// SessionOf returns the active session, or nil unless the wallet is connected.
func SessionOf(s WalletStatus) *connector.Session {
	if v, ok := s.(WalletConnected); ok {
		return v.Session
	}
	return nil
}
