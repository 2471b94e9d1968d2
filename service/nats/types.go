package nats

import (
	"time"

	"github.com/brojonat/solclient/service/state"
)

// TransactionEvent represents a transaction record change published to NATS.
// This is published to the subject "txns.{address}" in JetStream.
type TransactionEvent struct {
	// Transaction identifiers
	ID        string `json:"id"`
	Signature string `json:"signature,omitempty"`

	// Fee payer, or airdrop recipient
	Address  string `json:"address"`
	Endpoint string `json:"endpoint"`

	// Lifecycle
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Timing information
	UpdatedAt   time.Time `json:"updated_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromChange converts a transaction record change to a TransactionEvent for publishing.
func FromChange(c state.TransactionChange) *TransactionEvent {
	event := &TransactionEvent{
		ID:          c.ID,
		Address:     c.Record.Address,
		Endpoint:    c.Endpoint,
		Status:      string(c.Record.Status),
		UpdatedAt:   c.Record.LastUpdatedAt,
		PublishedAt: time.Now().UTC(),
	}

	if c.Record.Signature != nil {
		event.Signature = c.Record.Signature.String()
	}
	if c.Record.Err != nil {
		event.Error = c.Record.Err.Error()
	}

	return event
}
