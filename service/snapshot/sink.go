package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/brojonat/solclient/service/metrics"
	"github.com/brojonat/solclient/service/state"
)

// ErrNotFound is returned by a Source with nothing stored.
var ErrNotFound = errors.New("no snapshot stored")

// Sink stores snapshots.
type Sink interface {
	Name() string
	Save(ctx context.Context, s State) error
}

// Source loads the most recent stored snapshot.
type Source interface {
	Load(ctx context.Context) (State, error)
}

// Persist writes every emitted snapshot to sink on a background goroutine.
// Writes never block state updates; when the sink falls behind only the
// newest pending snapshot is written. stop cancels pending work and waits
// for the writer to exit.
func Persist(ctx context.Context, store *state.Store, sink Sink, logger *slog.Logger, m *metrics.Metrics) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	pending := make(chan State, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-pending:
				err := sink.Save(ctx, s)
				m.RecordSnapshotWrite(sink.Name(), err)
				if err != nil {
					logger.WarnContext(ctx, "failed to persist snapshot",
						"sink", sink.Name(),
						"endpoint", s.Endpoint,
						"error", err,
					)
				}
			}
		}
	}()

	unsubscribe := Subscribe(store, func(s State) {
		for {
			select {
			case pending <- s:
				return
			default:
			}
			// Drop the stale pending snapshot and try again.
			select {
			case <-pending:
			default:
			}
		}
	}, logger, m)

	return func() {
		unsubscribe()
		cancel()
		wg.Wait()
	}
}

// FileStore keeps the snapshot in a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store at path. Parent directories are created on
// the first save.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) Save(ctx context.Context, s State) error {
	raw, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (f *FileStore) Load(ctx context.Context) (State, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Unmarshal(raw)
}
