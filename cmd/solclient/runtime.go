package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/brojonat/solclient/client"
	"github.com/brojonat/solclient/service/config"
	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/state"
	"github.com/brojonat/solclient/service/txn"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
)

// dial replaces the RPC and websocket transports in tests.
var dial client.Dialer

var connectOptionsSilent = connector.ConnectOptions{AutoConnect: true}

// serviceConfig maps the global flags onto the service configuration.
func serviceConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{
		LogLevel:                 c.String("log-level"),
		SolanaRPCURL:             c.String("rpc-url"),
		SolanaWSURL:              c.String("ws-url"),
		Commitment:               rpc.CommitmentType(c.String("commitment")),
		ProbeTimeout:             c.Duration("probe-timeout"),
		RPCRateLimit:             c.Float64("rpc-rate-limit"),
		RPCRateBurst:             c.Int("rpc-rate-burst"),
		PriorityFeeMicroLamports: c.Uint64("priority-fee"),
		ComputeUnitLimit:         uint32(c.Uint("compute-unit-limit")),
		WalletManifest:           c.String("wallet-manifest"),
		KeypairPath:              c.String("keypair"),
		DatabaseURL:              c.String("database-url"),
		NATSURL:                  c.String("nats-url"),
		TemporalHost:             c.String("temporal-host"),
		TemporalNamespace:        c.String("temporal-namespace"),
		TemporalTaskQueue:        c.String("temporal-task-queue"),
	}
	if cfg.SolanaRPCURL == "" {
		return nil, fmt.Errorf("rpc-url is required (set SOLANA_RPC_URL env var or use --rpc-url)")
	}
	switch cfg.Commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return nil, fmt.Errorf("invalid commitment %q", cfg.Commitment)
	}
	return cfg, nil
}

// newClient builds a client from the global flags and waits for the
// first cluster probe to finish.
func newClient(c *cli.Context) (*client.Client, error) {
	cfg, err := serviceConfig(c)
	if err != nil {
		return nil, err
	}
	connectors, err := client.ConnectorsFor(cfg, func(name string) connector.KeySource {
		return connector.PromptKey(os.Stdin, c.App.ErrWriter, name)
	})
	if err != nil {
		return nil, err
	}

	clientCfg := client.ConfigFor(cfg, connectors, newLogger(c), nil)
	clientCfg.Dial = dial

	cl, err := client.New(c.Context, clientCfg)
	if err != nil {
		return nil, err
	}
	select {
	case <-cl.Ready():
	case <-c.Context.Done():
		cl.Destroy()
		return nil, c.Context.Err()
	}
	return cl, nil
}

// signer connects the wallet named by --wallet and returns it as the
// transaction authority.
func signer(ctx context.Context, c *cli.Context, cl *client.Client) (txn.Authority, error) {
	session, err := cl.ConnectWallet(ctx, c.String("wallet"), connector.ConnectOptions{})
	if err != nil {
		return txn.Authority{}, fmt.Errorf("failed to connect wallet %q: %w", c.String("wallet"), err)
	}
	return txn.WalletAuthority(session), nil
}

// signalContext is cancelled on Ctrl-C.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func commitment(c *cli.Context) rpc.CommitmentType {
	return rpc.CommitmentType(c.String("commitment"))
}

// parseAddress reads a required base58 public key argument.
// requireFlagsFirst makes every command that takes arguments reject a flag
// placed after them. The flag parser stops at the first argument, so a
// trailing --sol would otherwise be read as another argument and ignored.
func requireFlagsFirst(cmds []*cli.Command) {
	for _, cmd := range cmds {
		requireFlagsFirst(cmd.Subcommands)
		if cmd.ArgsUsage == "" {
			continue
		}
		before := cmd.Before
		cmd.Before = func(c *cli.Context) error {
			for _, arg := range c.Args().Slice() {
				if len(arg) > 1 && strings.HasPrefix(arg, "-") {
					return fmt.Errorf("flag %s must come before the arguments: %s [flags] %s",
						arg, c.Command.HelpName, c.Command.ArgsUsage)
				}
			}
			if before != nil {
				return before(c)
			}
			return nil
		}
	}
}

func parseAddress(c *cli.Context, i int, what string) (solana.PublicKey, error) {
	arg := c.Args().Get(i)
	if arg == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", what)
	}
	key, err := solana.PublicKeyFromBase58(arg)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", what, arg, err)
	}
	return key, nil
}

// parseSOL converts a decimal SOL amount such as "1.5" to lamports without
// going through floating point.
func parseSOL(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid SOL amount %q", s)
	}
	if len(frac) > 9 {
		return 0, fmt.Errorf("invalid SOL amount %q: more than 9 decimal places", s)
	}
	frac += strings.Repeat("0", 9-len(frac))
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SOL amount %q: %w", s, err)
	}
	f, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SOL amount %q: %w", s, err)
	}
	if w > (^uint64(0)-f)/solana.LAMPORTS_PER_SOL {
		return 0, fmt.Errorf("invalid SOL amount %q: overflows lamports", s)
	}
	return w*solana.LAMPORTS_PER_SOL + f, nil
}

// amount reads --lamports, or --sol when set.
func amount(c *cli.Context) (uint64, error) {
	if s := c.String("sol"); s != "" {
		return parseSOL(s)
	}
	if n := c.Uint64("lamports"); n > 0 {
		return n, nil
	}
	return 0, fmt.Errorf("an amount is required (--lamports or --sol)")
}

func amountFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:  "lamports",
			Usage: "Amount in lamports",
		},
		&cli.StringFlag{
			Name:  "sol",
			Usage: "Amount in SOL, e.g. 1.5",
		},
	}
}

// formatSOL renders lamports as SOL.
func formatSOL(lamports uint64) string {
	return fmt.Sprintf("%d.%09d SOL", lamports/solana.LAMPORTS_PER_SOL, lamports%solana.LAMPORTS_PER_SOL)
}

// sentResult is the output of every command that submits a transaction.
type sentResult struct {
	ID        string `json:"id,omitempty"`
	Signature string `json:"signature"`
	Account   string `json:"account,omitempty"`
	Status    string `json:"status"`
}

func newSentResult(sig solana.Signature) sentResult {
	return sentResult{Signature: sig.String(), Status: string(state.TransactionConfirmed)}
}
