package main

import (
	"context"
	"fmt"
	"io"

	"github.com/brojonat/solclient/client"
	"github.com/brojonat/solclient/service/features"
	"github.com/brojonat/solclient/service/state"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

// sendFlags are shared by every command that submits a transaction.
func sendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "skip-preflight",
			Usage: "Skip the preflight simulation",
		},
		&cli.UintFlag{
			Name:  "max-retries",
			Usage: "RPC node resubmission attempts (node default when unset)",
		},
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "Return once the signature is known instead of waiting for confirmation",
		},
	}
}

func withSendFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, flags...), sendFlags()...)
}

func sendOptions(c *cli.Context) txn.SendOptions {
	opts := txn.SendOptions{SkipPreflight: c.Bool("skip-preflight")}
	if c.IsSet("max-retries") {
		n := c.Uint("max-retries")
		opts.MaxRetries = &n
	}
	return opts
}

// prepareFunc builds a transaction for the signing wallet.
type prepareFunc func(ctx context.Context, h *features.Helpers, common features.Common) (*txn.Prepared, error)

// submit connects the signing wallet, then sends and tracks the transaction
// prepare builds.
func submit(c *cli.Context, cl *client.Client, retryExpired bool, prepare prepareFunc) (sentResult, error) {
	ctx, cancel := signalContext(c)
	defer cancel()

	authority, err := signer(ctx, c, cl)
	if err != nil {
		return sentResult{}, err
	}

	sent, err := cl.Submit(ctx, client.Submission{
		Authority: authority,
		Prepare: func(ctx context.Context, authority txn.Authority, lifetime *txn.Lifetime) (*txn.Prepared, error) {
			return prepare(ctx, cl.Features(), features.Common{
				Authority:  authority,
				Lifetime:   lifetime,
				Commitment: commitment(c),
			})
		},
		Options:          sendOptions(c),
		RetryExpired:     retryExpired,
		SkipConfirmation: c.Bool("no-wait"),
	})
	if err != nil {
		return sentResult{ID: sent.ID}, err
	}

	result := newSentResult(sent.Signature)
	result.ID = sent.ID
	if c.Bool("no-wait") {
		result.Status = string(state.TransactionWaiting)
	}
	return result, nil
}

// runSend is the action body shared by the send commands.
func runSend(c *cli.Context, retryExpired bool, prepare prepareFunc, describe func(w io.Writer, r sentResult)) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	defer cl.Destroy()

	result, err := submit(c, cl, retryExpired, prepare)
	if err != nil {
		return err
	}
	return output(c, result, func(w io.Writer) {
		describe(w, result)
		fmt.Fprintf(w, "  Signature: %s\n", result.Signature)
		fmt.Fprintf(w, "  Status:    %s\n", result.Status)
	})
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Send SOL",
		ArgsUsage: "<destination>",
		Description: `Transfers SOL from the wallet selected by --wallet.

Example:
  solclient --keypair ~/.config/solana/id.json transfer --sol 0.25 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin`,
		Flags: withSendFlags(amountFlags()...),
		Action: func(c *cli.Context) error {
			destination, err := parseAddress(c, 0, "destination")
			if err != nil {
				return err
			}
			lamports, err := amount(c)
			if err != nil {
				return err
			}
			return runSend(c, false, func(ctx context.Context, h *features.Helpers, common features.Common) (*txn.Prepared, error) {
				return h.PrepareTransfer(ctx, features.TransferRequest{
					Common:      common,
					Destination: destination,
					Lamports:    lamports,
				})
			}, func(w io.Writer, r sentResult) {
				fmt.Fprintf(w, "✓ Sent %s to %s\n", formatSOL(lamports), destination)
			})
		},
	}
}

func tokenTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "token-transfer",
		Usage:     "Send SPL tokens between associated token accounts",
		ArgsUsage: "<mint> <destination-owner>",
		Flags: withSendFlags(
			&cli.Uint64Flag{
				Name:     "amount",
				Usage:    "Amount in the token's base units",
				Required: true,
			},
			&cli.UintFlag{
				Name:  "decimals",
				Usage: "Mint decimals (read from the mint when unset)",
			},
			&cli.BoolFlag{
				Name:  "create-destination",
				Usage: "Create the destination token account when it is missing",
				Value: true,
			},
		),
		Action: func(c *cli.Context) error {
			mint, err := parseAddress(c, 0, "mint")
			if err != nil {
				return err
			}
			destination, err := parseAddress(c, 1, "destination")
			if err != nil {
				return err
			}
			if c.Uint64("amount") == 0 {
				return fmt.Errorf("amount must be positive")
			}
			var decimals *uint8
			if c.IsSet("decimals") {
				if c.Uint("decimals") > 255 {
					return fmt.Errorf("invalid decimals %d", c.Uint("decimals"))
				}
				d := uint8(c.Uint("decimals"))
				decimals = &d
			}
			return runSend(c, false, func(ctx context.Context, h *features.Helpers, common features.Common) (*txn.Prepared, error) {
				return h.PrepareTokenTransfer(ctx, features.TokenTransferRequest{
					Common:            common,
					Mint:              mint,
					Destination:       destination,
					Amount:            c.Uint64("amount"),
					Decimals:          decimals,
					CreateDestination: c.Bool("create-destination"),
				})
			}, func(w io.Writer, r sentResult) {
				fmt.Fprintf(w, "✓ Sent %d units of %s to %s\n", c.Uint64("amount"), mint, destination)
			})
		},
	}
}

func stakeCommand() *cli.Command {
	return &cli.Command{
		Name:      "stake",
		Usage:     "Create a stake account and delegate it to a vote account",
		ArgsUsage: "<vote-account>",
		Flags: withSendFlags(append(amountFlags(),
			&cli.StringFlag{
				Name:  "seed",
				Usage: "Seed for the derived stake account (time based when empty)",
			},
		)...),
		Action: func(c *cli.Context) error {
			vote, err := parseAddress(c, 0, "vote account")
			if err != nil {
				return err
			}
			lamports, err := amount(c)
			if err != nil {
				return err
			}

			var stakeAccount solana.PublicKey
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			defer cl.Destroy()

			result, err := submit(c, cl, false, func(ctx context.Context, h *features.Helpers, common features.Common) (*txn.Prepared, error) {
				prepared, stake, err := h.PrepareStake(ctx, features.StakeRequest{
					Common:   common,
					Vote:     vote,
					Lamports: lamports,
					Seed:     c.String("seed"),
				})
				stakeAccount = stake
				return prepared, err
			})
			if err != nil {
				return err
			}
			result.Account = stakeAccount.String()
			return output(c, result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Delegated %s to %s\n", formatSOL(lamports), vote)
				fmt.Fprintf(w, "  Stake:     %s\n", stakeAccount)
				fmt.Fprintf(w, "  Signature: %s\n", result.Signature)
			})
		},
	}
}

func unstakeCommand() *cli.Command {
	return &cli.Command{
		Name:      "unstake",
		Usage:     "Deactivate a stake account",
		ArgsUsage: "<stake-account>",
		Flags:     sendFlags(),
		Action: func(c *cli.Context) error {
			stake, err := parseAddress(c, 0, "stake account")
			if err != nil {
				return err
			}
			return runSend(c, false, func(ctx context.Context, h *features.Helpers, common features.Common) (*txn.Prepared, error) {
				return h.PrepareUnstake(ctx, features.UnstakeRequest{
					Common:       common,
					StakeAccount: stake,
				})
			}, func(w io.Writer, r sentResult) {
				fmt.Fprintf(w, "✓ Deactivated %s\n", stake)
			})
		},
	}
}

func withdrawStakeCommand() *cli.Command {
	return &cli.Command{
		Name:      "withdraw-stake",
		Usage:     "Withdraw lamports from a deactivated stake account",
		ArgsUsage: "<stake-account> [destination]",
		Flags:     withSendFlags(amountFlags()...),
		Action: func(c *cli.Context) error {
			stake, err := parseAddress(c, 0, "stake account")
			if err != nil {
				return err
			}
			lamports, err := amount(c)
			if err != nil {
				return err
			}
			var destination solana.PublicKey
			if c.Args().Len() > 1 {
				if destination, err = parseAddress(c, 1, "destination"); err != nil {
					return err
				}
			}
			return runSend(c, false, func(ctx context.Context, h *features.Helpers, common features.Common) (*txn.Prepared, error) {
				return h.PrepareWithdraw(ctx, features.WithdrawRequest{
					Common:       common,
					StakeAccount: stake,
					Destination:  destination,
					Lamports:     lamports,
				})
			}, func(w io.Writer, r sentResult) {
				fmt.Fprintf(w, "✓ Withdrew %s from %s\n", formatSOL(lamports), stake)
			})
		},
	}
}

func wrapCommand() *cli.Command {
	return &cli.Command{
		Name:  "wrap",
		Usage: "Wrap SOL into the wallet's wrapped SOL token account",
		Flags: withSendFlags(amountFlags()...),
		Action: func(c *cli.Context) error {
			lamports, err := amount(c)
			if err != nil {
				return err
			}
			return runSend(c, true, func(ctx context.Context, h *features.Helpers, common features.Common) (*txn.Prepared, error) {
				return h.PrepareWrap(ctx, features.WrapRequest{
					Common:   common,
					Lamports: lamports,
				})
			}, func(w io.Writer, r sentResult) {
				fmt.Fprintf(w, "✓ Wrapped %s\n", formatSOL(lamports))
			})
		},
	}
}

func unwrapCommand() *cli.Command {
	return &cli.Command{
		Name:  "unwrap",
		Usage: "Close the wallet's wrapped SOL account and reclaim its lamports",
		Flags: sendFlags(),
		Action: func(c *cli.Context) error {
			return runSend(c, true, func(ctx context.Context, h *features.Helpers, common features.Common) (*txn.Prepared, error) {
				return h.PrepareUnwrap(ctx, features.UnwrapRequest{Common: common})
			}, func(w io.Writer, r sentResult) {
				fmt.Fprintln(w, "✓ Unwrapped SOL")
			})
		},
	}
}
