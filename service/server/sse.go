package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solclient/service/metrics"
	natspkg "github.com/brojonat/solclient/service/nats"
	"github.com/brojonat/solclient/service/snapshot"
	"github.com/brojonat/solclient/service/state"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// keepaliveInterval is how often idle streams get a comment line.
var keepaliveInterval = 10 * time.Second

// startStream writes the event stream headers and lifts the server write
// deadline for the long-lived response.
func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

// handleStateStream streams the serializable snapshot: the current one on
// connect, then each distinct change.
// GET /api/v1/state/stream
func handleStateStream(store *state.Store, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := startStream(w)
		if !ok {
			return
		}
		m.RecordSSEConnectionChange(1)
		defer m.RecordSSEConnectionChange(-1)

		logger.DebugContext(r.Context(), "state stream client connected", "remote_addr", r.RemoteAddr)

		// Only the newest undelivered snapshot is kept; the listener runs on
		// the state update path and must not block.
		updates := make(chan snapshot.State, 1)
		unsubscribe := snapshot.Subscribe(store, func(s snapshot.State) {
			for {
				select {
				case updates <- s:
					return
				default:
				}
				select {
				case <-updates:
				default:
				}
			}
		}, logger, nil)
		defer unsubscribe()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case s := <-updates:
				data, err := s.Marshal()
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal snapshot", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
				flusher.Flush()

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "state stream client disconnected", "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}

// EventStream relays transaction events from JetStream to stream clients.
type EventStream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewEventStream connects to NATS for relaying transaction events.
func NewEventStream(natsURL string, logger *slog.Logger) (*EventStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("solclient-event-stream"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("event stream initialized", "nats_url", natsURL)

	return &EventStream{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *EventStream) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("event stream closed")
	}
	return nil
}

// handleStreamTransactions streams transaction lifecycle events.
// If the address path parameter is empty, events for every address are sent.
func handleStreamTransactions(events *EventStream, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		subject := natspkg.StreamSubjects
		desc := "all addresses"
		if address != "" {
			if err := validateAddress(address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			subject = natspkg.Subject(address)
			desc = address
		}

		// Ephemeral consumer for this connection, new messages only
		cons, err := events.js.CreateOrUpdateConsumer(r.Context(), natspkg.StreamName, jetstream.ConsumerConfig{
			FilterSubject: subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			DeliverPolicy: jetstream.DeliverNewPolicy,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to create consumer",
				"address", desc,
				"error", err,
			)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		flusher, ok := startStream(w)
		if !ok {
			return
		}
		m.RecordSSEConnectionChange(1)
		defer m.RecordSSEConnectionChange(-1)

		logger.DebugContext(r.Context(), "event stream client connected",
			"address", desc,
			"remote_addr", r.RemoteAddr,
		)

		msgChan := make(chan jetstream.Msg, 10)
		cc, err := cons.Consume(func(msg jetstream.Msg) {
			select {
			case msgChan <- msg:
			case <-r.Context().Done():
			}
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to start consuming messages", "error", err)
			return
		}
		defer cc.Stop()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case msg := <-msgChan:
				var event natspkg.TransactionEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					logger.WarnContext(r.Context(), "failed to unmarshal event", "error", err)
					msg.Ack()
					continue
				}

				fmt.Fprintf(w, "event: transaction\ndata: %s\n\n", msg.Data())
				flusher.Flush()
				msg.Ack()

				logger.DebugContext(r.Context(), "sent transaction event",
					"address", event.Address,
					"transaction_id", event.ID,
					"status", event.Status,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "event stream client disconnected",
					"address", desc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
