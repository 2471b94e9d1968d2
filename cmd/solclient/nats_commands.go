package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	natspkg "github.com/brojonat/solclient/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams transaction record changes published by a server.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream transaction record changes published to NATS",
		ArgsUsage: "[address]",
		Description: `Streams the transaction events a solclient server publishes to NATS JetStream.

Events for a fee payer are published to the subject: txns.{address}
Without an address every event in the stream is shown.

Example:
  solclient --json nats subscribe DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "solclient-cli",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many events (0 streams until Ctrl-C)",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				address, err := parseAddress(c, 0, "address")
				if err != nil {
					return err
				}
				subject = natspkg.Subject(address.String())
			}
			return streamTransactions(c, subject)
		},
	}
}

// streamTransactions consumes the transaction stream filtered to subject.
func streamTransactions(c *cli.Context, subject string) error {
	natsURL := c.String("nats-url")
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if c.Bool("durable") {
		consumerConfig.Durable = c.String("consumer-name")
		consumerConfig.Name = c.String("consumer-name")
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput(c) {
		fmt.Fprintf(c.App.ErrWriter, "📡 Subscribing to: %s\n", subject)
		fmt.Fprintf(c.App.ErrWriter, "   NATS: %s\n", natsURL)
		if c.Bool("durable") {
			fmt.Fprintf(c.App.ErrWriter, "   Consumer: %s (durable)\n", c.String("consumer-name"))
		}
		fmt.Fprintf(c.App.ErrWriter, "\nWaiting for transactions... (Ctrl-C to exit)\n\n")
	}

	msgChan := make(chan jetstream.Msg, 10)
	consumer, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer consumer.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TransactionEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
				_ = msg.Ack()
				continue
			}
			count++

			if err := output(c, event, func(w io.Writer) {
				printTransactionEvent(w, count, &event)
			}); err != nil {
				return err
			}
			_ = msg.Ack()

			if limit := c.Int("count"); limit > 0 && count >= limit {
				return nil
			}

		case <-ctx.Done():
			if !jsonOutput(c) {
				fmt.Fprintf(c.App.ErrWriter, "\n✅ Received %d events\n", count)
			}
			return nil
		}
	}
}

func printTransactionEvent(w io.Writer, n int, event *natspkg.TransactionEvent) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Event #%d\n", n)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "ID:           %s\n", event.ID)
	if event.Signature != "" {
		fmt.Fprintf(w, "Signature:    %s\n", event.Signature)
	}
	fmt.Fprintf(w, "Address:      %s\n", event.Address)
	fmt.Fprintf(w, "Endpoint:     %s\n", event.Endpoint)
	fmt.Fprintf(w, "Status:       %s\n", event.Status)
	if event.Error != "" {
		fmt.Fprintf(w, "Error:        %s\n", event.Error)
	}
	fmt.Fprintf(w, "Updated:      %s\n", event.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Published:    %s\n\n", event.PublishedAt.Format(time.RFC3339))
}
