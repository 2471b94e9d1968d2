package connector

import (
	"context"
	"fmt"
)

// Attempt performs one connection attempt. interactive reports whether the
// attempt may prompt the user.
type Attempt func(ctx context.Context, interactive bool) (*Session, error)

// ConnectSilentThenInteractive runs the connection strategy shared by all
// connectors.
//
// Explicit connects make one interactive attempt. Auto-connects make one
// silent attempt and, only if that fails and opts allows it, one interactive
// attempt. No path makes more than two attempts.
func ConnectSilentThenInteractive(ctx context.Context, opts ConnectOptions, attempt Attempt) (*Session, error) {
	if !opts.AutoConnect {
		return attempt(ctx, true)
	}

	session, err := attempt(ctx, false)
	if err == nil {
		return session, nil
	}
	if !opts.AllowInteractiveFallback || ctx.Err() != nil {
		return nil, err
	}

	session, promptErr := attempt(ctx, true)
	if promptErr != nil {
		return nil, fmt.Errorf("interactive connect failed after silent attempt (%v): %w", err, promptErr)
	}
	return session, nil
}
