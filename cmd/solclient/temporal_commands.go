package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/brojonat/solclient/service/temporal"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

// transferStarter is the part of *temporal.Client the transfer commands use.
type transferStarter interface {
	StartTransfer(ctx context.Context, key string, input temporal.TransferInput) (string, error)
	AwaitTransfer(ctx context.Context, workflowID string) (*temporal.TransferResult, error)
	Close()
}

// newTransferStarter replaces the Temporal client in tests.
var newTransferStarter = func(c *cli.Context, logger *slog.Logger) (transferStarter, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		logger,
	)
}

func startTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Start a durable transfer run by the solclient worker",
		ArgsUsage: "<destination>",
		Description: `Starts a TransferWorkflow. The worker signs with its own keypair, submits
the transfer once and waits for confirmation. Reusing an idempotency key
for a transfer that already ran is rejected.

Example:
  solclient temporal transfer --sol 0.1 --key order-1234 --wait 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin`,
		Flags: append(amountFlags(),
			&cli.StringFlag{
				Name:  "mint",
				Usage: "SPL token mint; the amount is then in base units (--lamports)",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "Idempotency key (random when empty)",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for the workflow to finish",
			},
		),
		Action: func(c *cli.Context) error {
			destination, err := parseAddress(c, 0, "destination")
			if err != nil {
				return err
			}
			amt, err := amount(c)
			if err != nil {
				return err
			}
			input := temporal.TransferInput{
				Destination: destination.String(),
				Amount:      amt,
				Commitment:  c.String("commitment"),
			}
			if mint := c.String("mint"); mint != "" {
				if _, err := solana.PublicKeyFromBase58(mint); err != nil {
					return fmt.Errorf("invalid mint %q: %w", mint, err)
				}
				input.Mint = mint
			}

			starter, err := newTransferStarter(c, newLogger(c))
			if err != nil {
				return fmt.Errorf("failed to connect to temporal: %w", err)
			}
			defer starter.Close()

			workflowID, err := starter.StartTransfer(c.Context, c.String("key"), input)
			if err != nil {
				return err
			}
			if !c.Bool("wait") {
				return output(c, map[string]string{"workflow_id": workflowID}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Started transfer workflow %s\n", workflowID)
				})
			}
			return awaitTransfer(c, starter, workflowID)
		},
	}
}

func awaitTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Wait for a durable transfer to finish and print its result",
		ArgsUsage: "<workflow-id>",
		Action: func(c *cli.Context) error {
			workflowID := c.Args().First()
			if workflowID == "" {
				return fmt.Errorf("workflow id is required")
			}
			starter, err := newTransferStarter(c, newLogger(c))
			if err != nil {
				return fmt.Errorf("failed to connect to temporal: %w", err)
			}
			defer starter.Close()
			return awaitTransfer(c, starter, workflowID)
		},
	}
}

func awaitTransfer(c *cli.Context, starter transferStarter, workflowID string) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	result, err := starter.AwaitTransfer(ctx, workflowID)
	if err != nil {
		return err
	}
	if err := output(c, result, func(w io.Writer) {
		fmt.Fprintf(w, "Workflow:    %s\n", workflowID)
		fmt.Fprintf(w, "Status:      %s\n", result.Status)
		fmt.Fprintf(w, "Destination: %s\n", result.Destination)
		if result.Mint != "" {
			fmt.Fprintf(w, "Amount:      %d (mint %s)\n", result.Amount, result.Mint)
		} else {
			fmt.Fprintf(w, "Amount:      %s\n", formatSOL(result.Amount))
		}
		fmt.Fprintf(w, "Signature:   %s\n", formatOptional(result.Signature))
		if result.Error != nil {
			fmt.Fprintf(w, "Error:       %s\n", *result.Error)
		}
	}); err != nil {
		return err
	}
	if result.Status != temporal.TransferConfirmed {
		return fmt.Errorf("transfer %s ended with status %s", workflowID, result.Status)
	}
	return nil
}
