package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solclient/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName     = "SOLCLIENT_TRANSACTIONS"
	StreamSubjects = "txns.*"

	// StreamRetention bounds how far back a new consumer can replay.
	StreamRetention = 7 * 24 * time.Hour

	subjectPrefix  = "txns."
	unknownAddress = "unknown"
)

// Publisher sends transaction lifecycle events to JetStream.
type Publisher interface {
	PublishTransaction(ctx context.Context, event *TransactionEvent) error
	// PublishTransactionBatch publishes events in order. Every event is
	// attempted; the returned error joins the individual failures.
	PublishTransactionBatch(ctx context.Context, events []*TransactionEvent) error
	Close() error
}

// Subject is the subject events for address are published on. Events without
// an address go to txns.unknown.
func Subject(address string) string {
	if address == "" {
		return subjectPrefix + unknownAddress
	}
	return subjectPrefix + address
}

// JetStreamPublisher is the Publisher used by the server.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher connects to natsURL and creates or updates the transaction
// stream.
func NewPublisher(natsURL string, logger *slog.Logger, m *metrics.Metrics) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("solclient-server"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "solclient transaction lifecycle events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}

	attrs := []any{"url", natsURL, "stream", StreamName}
	if info, err := stream.Info(ctx); err == nil {
		attrs = append(attrs, "messages", info.State.Msgs)
	}
	logger.Info("NATS publisher ready", attrs...)

	return &JetStreamPublisher{nc: nc, js: js, logger: logger, metrics: m}, nil
}

// JetStream exposes the connection's JetStream context for the snapshot
// bucket and the event stream endpoint.
func (p *JetStreamPublisher) JetStream() jetstream.JetStream { return p.js }

// msgID identifies one status transition so a republished transition is
// dropped by the stream's duplicate window.
func msgID(event *TransactionEvent) string {
	return fmt.Sprintf("%s:%s:%d", event.ID, event.Status, event.UpdatedAt.UnixNano())
}

func (p *JetStreamPublisher) PublishTransaction(ctx context.Context, event *TransactionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	subject := Subject(event.Address)
	start := time.Now()
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID(event)))
	result := "success"
	if err != nil {
		result = "error"
	}
	p.metrics.RecordNATSPublish(StreamSubjects, result, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.ID, subject, err)
	}

	p.logger.DebugContext(ctx, "published transaction event",
		"subject", subject,
		"transaction_id", event.ID,
		"status", event.Status,
		"seq", ack.Sequence,
		"duplicate", ack.Duplicate,
	)
	return nil
}

func (p *JetStreamPublisher) PublishTransactionBatch(ctx context.Context, events []*TransactionEvent) error {
	var errs []error
	for _, event := range events {
		if err := p.PublishTransaction(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close drains pending publishes before closing the connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
