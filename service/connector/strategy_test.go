package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAttempt counts attempts and fails silent ones when failSilent is set.
type recordingAttempt struct {
	silent      int
	interactive int
	failSilent  bool
	failPrompt  bool
}

func (r *recordingAttempt) attempt(ctx context.Context, interactive bool) (*Session, error) {
	if interactive {
		r.interactive++
		if r.failPrompt {
			return nil, ErrUserRejected
		}
		return &Session{Account: Account{Label: "interactive"}}, nil
	}
	r.silent++
	if r.failSilent {
		return nil, ErrInteractionRequired
	}
	return &Session{Account: Account{Label: "silent"}}, nil
}

func TestConnectSilentThenInteractive(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit connect prompts once", func(t *testing.T) {
		rec := &recordingAttempt{}
		s, err := ConnectSilentThenInteractive(ctx, ConnectOptions{}, rec.attempt)
		require.NoError(t, err)
		assert.Equal(t, "interactive", s.Account.Label)
		assert.Equal(t, 0, rec.silent)
		assert.Equal(t, 1, rec.interactive)
	})

	t.Run("auto connect succeeds silently", func(t *testing.T) {
		rec := &recordingAttempt{}
		s, err := ConnectSilentThenInteractive(ctx, ConnectOptions{AutoConnect: true, AllowInteractiveFallback: true}, rec.attempt)
		require.NoError(t, err)
		assert.Equal(t, "silent", s.Account.Label)
		assert.Equal(t, 1, rec.silent)
		assert.Equal(t, 0, rec.interactive)
	})

	t.Run("auto connect without fallback never prompts", func(t *testing.T) {
		rec := &recordingAttempt{failSilent: true}
		_, err := ConnectSilentThenInteractive(ctx, ConnectOptions{AutoConnect: true}, rec.attempt)
		assert.ErrorIs(t, err, ErrInteractionRequired)
		assert.Equal(t, 1, rec.silent)
		assert.Equal(t, 0, rec.interactive)
	})

	t.Run("auto connect with fallback makes exactly two attempts", func(t *testing.T) {
		rec := &recordingAttempt{failSilent: true, failPrompt: true}
		_, err := ConnectSilentThenInteractive(ctx, ConnectOptions{AutoConnect: true, AllowInteractiveFallback: true}, rec.attempt)
		assert.ErrorIs(t, err, ErrUserRejected)
		assert.Equal(t, 1, rec.silent)
		assert.Equal(t, 1, rec.interactive)
	})

	t.Run("cancelled context skips the prompt", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		rec := &recordingAttempt{failSilent: true}
		_, err := ConnectSilentThenInteractive(cctx, ConnectOptions{AutoConnect: true, AllowInteractiveFallback: true}, rec.attempt)
		assert.True(t, errors.Is(err, ErrInteractionRequired))
		assert.Equal(t, 0, rec.interactive)
	})
}
