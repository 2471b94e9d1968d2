package main

import (
	"fmt"
	"io"
	"time"

	"github.com/brojonat/solclient/client"
	"github.com/brojonat/solclient/service/features"
	"github.com/brojonat/solclient/service/snapshot"
	solclient "github.com/brojonat/solclient/service/solana"
	"github.com/brojonat/solclient/service/state"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Connect to the cluster and report its health and latency",
		Description: `Runs the same health probe the client runs when it switches clusters.

Example:
  solclient --rpc-url mainnet-beta --json cluster probe`,
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			defer cl.Destroy()

			view := state.NewView(cl.Store().GetState()).Cluster
			if err := output(c, view, func(w io.Writer) {
				fmt.Fprintf(w, "Endpoint:    %s\n", view.Endpoint)
				if view.WebsocketEndpoint != "" {
					fmt.Fprintf(w, "Websocket:   %s\n", view.WebsocketEndpoint)
				}
				fmt.Fprintf(w, "Commitment:  %s\n", view.Commitment)
				fmt.Fprintf(w, "Status:      %s\n", view.Status)
				if view.LatencyMs != nil {
					fmt.Fprintf(w, "Latency:     %d ms\n", *view.LatencyMs)
				}
				if view.Error != "" {
					fmt.Fprintf(w, "Error:       %s\n", view.Error)
				}
			}); err != nil {
				return err
			}
			if view.Error != "" {
				return fmt.Errorf("cluster unhealthy: %s", view.Error)
			}
			return nil
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show the lamport balance of an address",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			address, err := parseAddress(c, 0, "address")
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			defer cl.Destroy()

			entry, err := cl.FetchBalance(c.Context, address, commitment(c))
			if err != nil {
				return err
			}
			view := state.NewAccountView(entry)
			return output(c, view, func(w io.Writer) {
				fmt.Fprintf(w, "%s  %s (slot %d)\n", view.Address, formatSOL(view.Lamports), view.Slot)
			})
		},
	}
}

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:      "account",
		Usage:     "Fetch an account",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			address, err := parseAddress(c, 0, "address")
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			defer cl.Destroy()

			entry, err := cl.FetchAccount(c.Context, address, commitment(c))
			if err != nil {
				return err
			}
			return output(c, state.NewAccountView(entry), func(w io.Writer) {
				printAccount(w, state.NewAccountView(entry))
			})
		},
	}
}

func printAccount(w io.Writer, view state.AccountView) {
	fmt.Fprintf(w, "Address:     %s\n", view.Address)
	fmt.Fprintf(w, "Balance:     %s\n", formatSOL(view.Lamports))
	if view.Owner != "" {
		fmt.Fprintf(w, "Owner:       %s\n", view.Owner)
	}
	fmt.Fprintf(w, "Data:        %d bytes\n", view.DataLen)
	fmt.Fprintf(w, "Executable:  %t\n", view.Executable)
	fmt.Fprintf(w, "Slot:        %d\n", view.Slot)
	if view.LastFetchedAt != nil {
		fmt.Fprintf(w, "Fetched:     %s\n", view.LastFetchedAt.Format(time.RFC3339))
	}
	if view.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", view.Error)
	}
}

func airdropCommand() *cli.Command {
	return &cli.Command{
		Name:      "airdrop",
		Usage:     "Request lamports from the cluster faucet",
		ArgsUsage: "[address]",
		Description: `Airdrops to the given address, or to the connected wallet when none is given.
Only devnet, testnet and local validators run a faucet.

Example:
  solclient --rpc-url devnet airdrop --sol 1`,
		Flags: amountFlags(),
		Action: func(c *cli.Context) error {
			lamports, err := amount(c)
			if err != nil {
				return err
			}
			var address solana.PublicKey
			if c.Args().Len() > 0 {
				if address, err = parseAddress(c, 0, "address"); err != nil {
					return err
				}
			}

			cl, err := newClient(c)
			if err != nil {
				return err
			}
			defer cl.Destroy()

			ctx, cancel := signalContext(c)
			defer cancel()

			if address.IsZero() {
				authority, err := signer(ctx, c, cl)
				if err != nil {
					return err
				}
				address = authority.Address()
			}

			sent, err := cl.RequestAirdrop(ctx, address, lamports)
			if err != nil {
				return err
			}
			result := newSentResult(sent.Signature)
			result.ID = sent.ID
			result.Account = address.String()
			return output(c, result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Airdropped %s to %s\n", formatSOL(lamports), address)
				fmt.Fprintf(w, "  Signature: %s\n", sent.Signature)
			})
		},
	}
}

// stateOutput is the local client state after warmup.
type stateOutput struct {
	State    state.View     `json:"state"`
	Snapshot snapshot.State `json:"snapshot"`
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Show the client state and its serializable snapshot after warmup",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			defer cl.Destroy()

			ctx, cancel := signalContext(c)
			defer cancel()

			// The wallet named by --wallet is connected when it can connect silently.
			if conn, ok := cl.Registry().Get(c.String("wallet")); ok && conn.CanAutoConnect() {
				if _, err := cl.ConnectWallet(ctx, conn.ID(), connectOptionsSilent); err != nil {
					newLogger(c).Warn("wallet did not connect", "connector_id", conn.ID(), "error", err)
				}
			}

			var snap snapshot.State
			unsubscribe := client.SubscribeSolanaState(cl, func(s snapshot.State) { snap = s })
			unsubscribe()

			out := stateOutput{State: state.NewView(cl.Store().GetState()), Snapshot: snap}
			return output(c, out, func(w io.Writer) {
				printView(w, out.State)
			})
		},
	}
}

func printView(w io.Writer, v state.View) {
	fmt.Fprintf(w, "Cluster:  %s (%s, %s)\n", v.Cluster.Endpoint, v.Cluster.Commitment, v.Cluster.Status)
	if v.Cluster.Error != "" {
		fmt.Fprintf(w, "          %s\n", v.Cluster.Error)
	}
	fmt.Fprintf(w, "Wallet:   %s", v.Wallet.Status)
	if v.Wallet.ConnectorID != "" {
		fmt.Fprintf(w, " via %s", v.Wallet.ConnectorID)
	}
	if v.Wallet.Address != "" {
		fmt.Fprintf(w, " as %s", v.Wallet.Address)
	}
	fmt.Fprintln(w)
	for _, a := range v.Accounts {
		fmt.Fprintf(w, "Account:  %s  %s\n", a.Address, formatSOL(a.Lamports))
	}
	for _, t := range v.Transactions {
		fmt.Fprintf(w, "Txn:      %s  %s  %s\n", t.ID, t.Status, t.Signature)
	}
}

// stakeAccountView is the printable form of features.StakeAccount.
type stakeAccountView struct {
	Address           string `json:"address"`
	Lamports          uint64 `json:"lamports"`
	State             string `json:"state"`
	Staker            string `json:"staker,omitempty"`
	Voter             string `json:"voter,omitempty"`
	Delegated         uint64 `json:"delegated,omitempty"`
	ActivationEpoch   uint64 `json:"activation_epoch,omitempty"`
	DeactivationEpoch uint64 `json:"deactivation_epoch,omitempty"`
}

func newStakeAccountView(a features.StakeAccount) stakeAccountView {
	v := stakeAccountView{
		Address:  a.Address.String(),
		Lamports: a.Lamports,
		State:    "uninitialized",
	}
	switch a.State {
	case solclient.StakeStateInitialized:
		v.State = "initialized"
		v.Staker = a.Staker.String()
	case solclient.StakeStateDelegated:
		v.State = "delegated"
		v.Staker = a.Staker.String()
		v.Delegated = a.Delegated
		v.ActivationEpoch = a.ActivationEpoch
		v.DeactivationEpoch = a.DeactivationEpoch
		if a.Voter != nil {
			v.Voter = a.Voter.String()
		}
	}
	return v
}

func stakeAccountsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stake-accounts",
		Usage:     "List the stake accounts an address can withdraw from",
		ArgsUsage: "[owner]",
		Description: `Lists stake accounts whose withdraw authority is owner, or the wallet
selected by --wallet when no owner is given.

Example:
  solclient --rpc-url mainnet-beta --json stake-accounts 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin`,
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			defer cl.Destroy()

			var owner solana.PublicKey
			if c.NArg() > 0 {
				if owner, err = parseAddress(c, 0, "owner"); err != nil {
					return err
				}
			} else {
				authority, err := signer(c.Context, c, cl)
				if err != nil {
					return err
				}
				owner = authority.Address()
			}

			accounts, err := cl.Features().StakeAccounts(c.Context, owner, commitment(c))
			if err != nil {
				return err
			}
			views := make([]stakeAccountView, 0, len(accounts))
			for _, a := range accounts {
				views = append(views, newStakeAccountView(a))
			}
			return output(c, views, func(w io.Writer) {
				if len(views) == 0 {
					fmt.Fprintf(w, "No stake accounts withdrawable by %s\n", owner)
					return
				}
				for _, v := range views {
					fmt.Fprintf(w, "%s  %s  %s", v.Address, formatSOL(v.Lamports), v.State)
					if v.Voter != "" {
						fmt.Fprintf(w, "  -> %s", v.Voter)
					}
					fmt.Fprintln(w)
				}
			})
		},
	}
}
