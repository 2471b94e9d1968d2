package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/solclient/service/snapshot"
	"github.com/nats-io/nats.go/jetstream"
)

// KeyValue is the subset of jetstream.KeyValue used for snapshots.
type KeyValue interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
}

// SnapshotKV stores snapshots under one key of a JetStream key-value bucket.
// It is both a snapshot.Sink and a snapshot.Source.
type SnapshotKV struct {
	kv  KeyValue
	key string
}

// NewSnapshotKV returns a SnapshotKV writing to key in kv.
func NewSnapshotKV(kv KeyValue, key string) *SnapshotKV {
	return &SnapshotKV{kv: kv, key: key}
}

// OpenSnapshotKV creates bucket if needed and returns a SnapshotKV for key.
func OpenSnapshotKV(ctx context.Context, js jetstream.JetStream, bucket, key string) (*SnapshotKV, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Serialized solclient state",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value bucket %q: %w", bucket, err)
	}
	return NewSnapshotKV(kv, key), nil
}

func (s *SnapshotKV) Name() string { return "nats-kv" }

func (s *SnapshotKV) Save(ctx context.Context, state snapshot.State) error {
	raw, err := state.Marshal()
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.key, raw); err != nil {
		return fmt.Errorf("failed to put snapshot %q: %w", s.key, err)
	}
	return nil
}

func (s *SnapshotKV) Load(ctx context.Context) (snapshot.State, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return snapshot.State{}, snapshot.ErrNotFound
	}
	if err != nil {
		return snapshot.State{}, fmt.Errorf("failed to get snapshot %q: %w", s.key, err)
	}
	return snapshot.Unmarshal(entry.Value())
}
