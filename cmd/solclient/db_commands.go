package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brojonat/solclient/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Action: func(c *cli.Context) error {
			dbURL := c.String("database-url")
			if dbURL == "" {
				return fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
			}
			version, err := db.Migrate(dbURL)
			if err != nil {
				return err
			}
			return output(c, map[string]uint{"version": version}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Schema at version %d\n", version)
			})
		},
	}
}

// transactionOutput is a stored transaction record.
type transactionOutput struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	Signature *string   `json:"signature,omitempty"`
	Error     *string   `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List stored transaction records, most recently updated first",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many transactions",
			},
			&cli.StringFlag{
				Name:  "signature",
				Usage: "Show only the record carrying this signature",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var transactions []*db.Transaction
			if sig := c.String("signature"); sig != "" {
				txn, err := store.GetTransactionBySignature(c.Context, sig)
				if err != nil {
					return fmt.Errorf("failed to get transaction: %w", err)
				}
				transactions = append(transactions, txn)
			} else {
				if c.Int("limit") < 1 || c.Int("offset") < 0 {
					return fmt.Errorf("limit must be positive and offset must not be negative")
				}
				transactions, err = store.ListTransactions(c.Context, db.ListTransactionsParams{
					Limit:  int32(c.Int("limit")),
					Offset: int32(c.Int("offset")),
				})
				if err != nil {
					return fmt.Errorf("failed to list transactions: %w", err)
				}
			}

			out := make([]transactionOutput, 0, len(transactions))
			for _, t := range transactions {
				out = append(out, transactionOutput{
					ID:        t.ID,
					Endpoint:  t.Endpoint,
					Address:   t.Address,
					Status:    t.Status,
					Signature: t.Signature,
					Error:     t.Error,
					UpdatedAt: t.UpdatedAt,
					CreatedAt: t.CreatedAt,
				})
			}

			return output(c, out, func(w io.Writer) {
				if len(out) == 0 {
					fmt.Fprintln(w, "No transactions found")
					return
				}
				for i, tx := range out {
					if i > 0 {
						fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
					}
					fmt.Fprintf(w, "ID:         %s\n", tx.ID)
					fmt.Fprintf(w, "Address:    %s\n", tx.Address)
					fmt.Fprintf(w, "Endpoint:   %s\n", tx.Endpoint)
					fmt.Fprintf(w, "Status:     %s\n", tx.Status)
					fmt.Fprintf(w, "Signature:  %s\n", formatOptional(tx.Signature))
					if tx.Error != nil {
						fmt.Fprintf(w, "Error:      %s\n", *tx.Error)
					}
					fmt.Fprintf(w, "Updated At: %s\n", tx.UpdatedAt.Format(time.RFC3339))
					fmt.Fprintf(w, "Created At: %s\n", tx.CreatedAt.Format(time.RFC3339))
				}
				fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d transactions\n", len(out))
			})
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to format optional values
func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "(none)"
}
