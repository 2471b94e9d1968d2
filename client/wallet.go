package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/state"
)

// ConnectWallet connects the connector registered under id, which may be a
// bare wallet name such as "phantom".
//
// An unknown or unsupported connector is a ConfigurationError and leaves
// state untouched. Otherwise the wallet moves to connecting and then to
// connected or error; the connection error is also returned, and a user
// rejection still matches connector.ErrUserRejected.
func (c *Client) ConnectWallet(ctx context.Context, id string, opts connector.ConnectOptions) (*connector.Session, error) {
	conn, ok := c.registry.Get(id)
	if !ok || !conn.IsSupported() {
		return nil, &ConfigurationError{Op: "connect wallet", Err: fmt.Errorf("%w: %q", connector.ErrUnknownConnector, id)}
	}
	resolved := conn.ID()

	// A new connection replaces any existing session.
	if prev := state.SessionOf(c.store.GetState().Wallet); prev != nil {
		if err := prev.Disconnect(ctx); err != nil {
			c.logger.WarnContext(ctx, "failed to disconnect previous wallet", "connector_id", prev.Connector.ID, "error", err)
		}
	}

	c.store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithWallet(state.WalletConnecting{ConnectorID: resolved, AutoConnect: opts.AutoConnect})
	})

	session, err := conn.Connect(ctx, opts)
	if err == nil && session == nil {
		err = errors.New("connector returned no session")
	}
	if err != nil {
		c.metrics.RecordWalletConnect(resolved, "error")
		c.logger.WarnContext(ctx, "wallet connect failed",
			"connector_id", resolved,
			"auto_connect", opts.AutoConnect,
			"user_rejected", errors.Is(err, connector.ErrUserRejected),
			"error", err,
		)
		c.store.SetState(func(s state.ClientState) state.ClientState {
			return s.WithWallet(state.WalletError{ConnectorID: resolved, Err: err, AutoConnect: opts.AutoConnect})
		})
		return nil, err
	}

	c.metrics.RecordWalletConnect(resolved, "success")
	c.logger.InfoContext(ctx, "wallet connected",
		"connector_id", resolved,
		"address", session.Account.Address,
		"auto_connect", opts.AutoConnect,
	)
	c.store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithWallet(state.WalletConnected{ConnectorID: resolved, Session: session, AutoConnect: opts.AutoConnect})
	})
	return session, nil
}

// DisconnectWallet ends the current session, if any. The wallet is reset to
// disconnected even when the session's disconnect hook fails; that error is
// returned.
func (c *Client) DisconnectWallet(ctx context.Context) error {
	var err error
	if session := state.SessionOf(c.store.GetState().Wallet); session != nil {
		err = session.Disconnect(ctx)
		if err != nil {
			err = fmt.Errorf("failed to disconnect wallet: %w", err)
		}
	}
	c.store.SetState(func(s state.ClientState) state.ClientState {
		return s.WithWallet(state.WalletDisconnected{})
	})
	c.logger.InfoContext(ctx, "wallet disconnected")
	return err
}

// autoConnect makes the startup connection attempt without prompting.
func (c *Client) autoConnect(id string) {
	_, err := c.ConnectWallet(c.ctx, id, connector.ConnectOptions{AutoConnect: true})
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		c.logger.Warn("skipping auto-connect", "connector_id", id, "error", err)
	}
}
