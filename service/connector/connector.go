// Package connector holds wallet connectors, the sessions they produce and
// the registry that resolves connector ids.
package connector

import (
	"context"
	"errors"
)

var (
	// ErrUnknownConnector is returned when no registered connector matches an id,
	// or the matching connector is not supported in this environment.
	ErrUnknownConnector = errors.New("unknown connector")

	// ErrUserRejected is returned when the user declines a connect or sign request.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrUnsupported is returned when a session lacks a requested capability.
	ErrUnsupported = errors.New("unsupported wallet capability")

	// ErrInteractionRequired is returned by a silent attempt that needs a prompt.
	ErrInteractionRequired = errors.New("user interaction required")
)

// ConnectOptions control a single Connect call.
type ConnectOptions struct {
	// AutoConnect marks an attempt made without an explicit user action.
	AutoConnect bool
	// AllowInteractiveFallback permits one prompted attempt after a failed
	// silent auto-connect.
	AllowInteractiveFallback bool
}

// Connector is a source of wallet sessions.
type Connector interface {
	ID() string
	Name() string
	// CanAutoConnect reports whether the connector supports silent connection.
	CanAutoConnect() bool
	IsSupported() bool
	Connect(ctx context.Context, opts ConnectOptions) (*Session, error)
	Disconnect(ctx context.Context) error
}

// Destroyer is implemented by connectors that hold resources beyond a session.
// The client calls Destroy when it is torn down.
type Destroyer interface {
	Destroy()
}

// MetadataOf snapshots the descriptive fields of c.
func MetadataOf(c Connector) Metadata {
	return Metadata{
		ID:             c.ID(),
		Name:           c.Name(),
		CanAutoConnect: c.CanAutoConnect(),
	}
}
