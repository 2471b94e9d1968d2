package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/brojonat/solclient/client"
	"github.com/brojonat/solclient/service/cache"
	"github.com/brojonat/solclient/service/state"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func watchAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "account",
		Usage:     "Print an account every time it changes (Ctrl-C to exit)",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			return watchAddress(c, func(ctx context.Context, cl *client.Client, address solana.PublicKey) *cache.Watch {
				return cl.WatchAccount(ctx, address, commitment(c))
			}, printAccount)
		},
	}
}

func watchBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Print a balance every time it changes (Ctrl-C to exit)",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			return watchAddress(c, func(ctx context.Context, cl *client.Client, address solana.PublicKey) *cache.Watch {
				return cl.WatchBalance(ctx, address, commitment(c))
			}, func(w io.Writer, view state.AccountView) {
				fmt.Fprintf(w, "%s  %s (slot %d)\n", view.Address, formatSOL(view.Lamports), view.Slot)
			})
		},
	}
}

type accountVersion struct {
	lamports  uint64
	slot      uint64
	fetchedAt time.Time
}

// watchAddress starts a watcher and prints the cache entry for address each
// time a notification lands in state.
func watchAddress(
	c *cli.Context,
	start func(ctx context.Context, cl *client.Client, address solana.PublicKey) *cache.Watch,
	show func(w io.Writer, view state.AccountView),
) error {
	address, err := parseAddress(c, 0, "address")
	if err != nil {
		return err
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	defer cl.Destroy()

	ctx, cancel := signalContext(c)
	defer cancel()

	// Listeners run on the SetState goroutine; only the newest entry is kept.
	updates := make(chan state.AccountCacheEntry, 1)
	key := address.String()
	var last accountVersion
	unsubscribe := cl.Store().Subscribe(func(s state.ClientState) {
		entry, ok := s.Accounts[key]
		if !ok || entry.LastFetchedAt.IsZero() {
			return
		}
		v := accountVersion{lamports: entry.Lamports, slot: entry.Slot, fetchedAt: entry.LastFetchedAt}
		if v == last {
			return
		}
		last = v
		for {
			select {
			case updates <- entry:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	watch := start(ctx, cl, address)
	defer watch.Abort()

	if !jsonOutput(c) {
		fmt.Fprintf(c.App.ErrWriter, "📡 Watching %s (Ctrl-C to exit)\n", address)
	}
	for {
		select {
		case entry := <-updates:
			view := state.NewAccountView(entry)
			if err := output(c, view, func(w io.Writer) { show(w, view) }); err != nil {
				return err
			}
		case <-watch.Done():
			if st, ok := cl.Store().GetState().Subscriptions.Accounts[key].(state.SubscriptionError); ok {
				return fmt.Errorf("subscription ended: %w", st.Err)
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// signatureOutput is the outcome of a watched signature.
type signatureOutput struct {
	Signature string `json:"signature"`
	Status    string `json:"status"`
	Slot      uint64 `json:"slot,omitempty"`
	Error     string `json:"error,omitempty"`
}

func watchSignatureCommand() *cli.Command {
	return &cli.Command{
		Name:      "signature",
		Usage:     "Wait until a signature reaches the commitment level",
		ArgsUsage: "<signature>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait (0 waits until Ctrl-C)",
			},
		},
		Action: func(c *cli.Context) error {
			arg := c.Args().First()
			if arg == "" {
				return fmt.Errorf("signature is required")
			}
			sig, err := solana.SignatureFromBase58(arg)
			if err != nil {
				return fmt.Errorf("invalid signature %q: %w", arg, err)
			}

			cl, err := newClient(c)
			if err != nil {
				return err
			}
			defer cl.Destroy()

			ctx, cancel := signalContext(c)
			defer cancel()
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancelTimeout context.CancelFunc
				ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
				defer cancelTimeout()
			}

			watch := cl.WatchSignature(ctx, sig, commitment(c))
			select {
			case <-watch.Done():
			case <-ctx.Done():
				watch.Abort()
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return fmt.Errorf("signature %s did not reach %s within %s", sig, commitment(c), c.Duration("timeout"))
				}
				return nil
			}

			if st, ok := cl.Store().GetState().Subscriptions.Signatures[sig.String()].(state.SubscriptionError); ok {
				return fmt.Errorf("subscription ended: %w", st.Err)
			}

			out := signatureOutput{Signature: sig.String(), Status: string(state.TransactionConfirmed)}
			res, err := cl.RPC().GetSignatureStatuses(c.Context, true, sig)
			if err == nil && len(res.Value) > 0 && res.Value[0] != nil {
				out.Slot = res.Value[0].Slot
				if res.Value[0].Err != nil {
					out.Status = string(state.TransactionFailed)
					out.Error = fmt.Sprintf("%v", res.Value[0].Err)
				}
			}
			if err := output(c, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s  %s", out.Signature, out.Status)
				if out.Slot > 0 {
					fmt.Fprintf(w, " (slot %d)", out.Slot)
				}
				fmt.Fprintln(w)
				if out.Error != "" {
					fmt.Fprintf(w, "  Error: %s\n", out.Error)
				}
			}); err != nil {
				return err
			}
			if out.Error != "" {
				return fmt.Errorf("transaction %s failed on chain", sig)
			}
			return nil
		},
	}
}
