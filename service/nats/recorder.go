package nats

import (
	"context"
	"sync"
)

// RecordingPublisher is an in-memory Publisher. Events are kept per subject
// in publish order so callers can assert what a JetStream consumer would
// have received.
type RecordingPublisher struct {
	mu        sync.Mutex
	bySubject map[string][]*TransactionEvent
	total     int
	err       error
	closed    bool
}

var _ Publisher = (*RecordingPublisher)(nil)

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{bySubject: map[string][]*TransactionEvent{}}
}

// FailWith makes every following publish return err. A batch that fails
// records none of its events.
func (r *RecordingPublisher) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *RecordingPublisher) PublishTransaction(ctx context.Context, event *TransactionEvent) error {
	return r.PublishTransactionBatch(ctx, []*TransactionEvent{event})
}

func (r *RecordingPublisher) PublishTransactionBatch(_ context.Context, events []*TransactionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, e := range events {
		subject := Subject(e.Address)
		r.bySubject[subject] = append(r.bySubject[subject], e)
	}
	r.total += len(events)
	return nil
}

func (r *RecordingPublisher) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Count is the number of events recorded across all subjects.
func (r *RecordingPublisher) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Subject returns a copy of the events recorded on subject.
func (r *RecordingPublisher) Subject(subject string) []*TransactionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*TransactionEvent(nil), r.bySubject[subject]...)
}

func (r *RecordingPublisher) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
