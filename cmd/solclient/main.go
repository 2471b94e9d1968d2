package main

import (
	"fmt"
	"log"
	"os"

	"github.com/brojonat/solclient/client"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "solclient",
		Usage: "Headless Solana client",
		Description: `A command-line front end for the solclient runtime.

Use this CLI to probe clusters, read and watch accounts, send transfers and
stake operations, and inspect a running solclient server.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			{
				Name:  "cluster",
				Usage: "Cluster connection commands",
				Subcommands: []*cli.Command{
					probeCommand(),
				},
			},
			balanceCommand(),
			accountCommand(),
			airdropCommand(),
			receiveCommand(),
			transferCommand(),
			tokenTransferCommand(),
			stakeCommand(),
			unstakeCommand(),
			withdrawStakeCommand(),
			stakeAccountsCommand(),
			wrapCommand(),
			unwrapCommand(),
			{
				Name:  "watch",
				Usage: "Stream account, balance and signature updates",
				Subcommands: []*cli.Command{
					watchAccountCommand(),
					watchBalanceCommand(),
					watchSignatureCommand(),
				},
			},
			stateCommand(),
			// Database commands
			{
				Name:  "db",
				Usage: "Database commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					listTransactionsCommand(),
				},
			},
			// Durable transfers through Temporal
			{
				Name:  "temporal",
				Usage: "Durable transfer commands",
				Subcommands: []*cli.Command{
					startTransferCommand(),
					awaitTransferCommand(),
				},
			},
			// NATS transaction streaming commands
			{
				Name:  "nats",
				Usage: "NATS transaction streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					remoteStateCommand(),
					streamCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC URL or cluster moniker (devnet, testnet, mainnet-beta, localnet)",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "devnet",
			},
			&cli.StringFlag{
				Name:    "ws-url",
				Usage:   "Solana websocket URL (derived from --rpc-url when empty)",
				EnvVars: []string{"SOLANA_WS_URL"},
			},
			&cli.StringFlag{
				Name:    "commitment",
				Usage:   "Commitment level (processed, confirmed, finalized)",
				EnvVars: []string{"SOLANA_COMMITMENT"},
				Value:   "confirmed",
			},
			&cli.DurationFlag{
				Name:    "probe-timeout",
				Usage:   "Cluster health probe timeout",
				EnvVars: []string{"PROBE_TIMEOUT"},
				Value:   client.DefaultProbeTimeout,
			},
			&cli.Float64Flag{
				Name:    "rpc-rate-limit",
				Usage:   "RPC requests per second (0 disables limiting)",
				EnvVars: []string{"RPC_RATE_LIMIT"},
			},
			&cli.IntFlag{
				Name:    "rpc-rate-burst",
				Usage:   "RPC rate limiter burst",
				EnvVars: []string{"RPC_RATE_BURST"},
				Value:   1,
			},
			&cli.Uint64Flag{
				Name:    "priority-fee",
				Usage:   "Compute unit price in micro-lamports",
				EnvVars: []string{"PRIORITY_FEE_MICROLAMPORTS"},
			},
			&cli.UintFlag{
				Name:    "compute-unit-limit",
				Usage:   "Compute unit limit (0 leaves the cluster default)",
				EnvVars: []string{"COMPUTE_UNIT_LIMIT"},
			},
			&cli.StringFlag{
				Name:    "keypair",
				Usage:   "solana-keygen keypair file exposed as the wallet-standard:local connector",
				EnvVars: []string{"KEYPAIR_PATH"},
			},
			&cli.StringFlag{
				Name:    "wallet-manifest",
				Usage:   "YAML manifest of wallet connectors",
				EnvVars: []string{"WALLET_MANIFEST"},
			},
			&cli.StringFlag{
				Name:    "wallet",
				Usage:   "Connector id or wallet name used to sign",
				EnvVars: []string{"SOLCLIENT_WALLET"},
				Value:   client.LocalConnectorID,
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "solclient-transfers",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "solclient server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level for diagnostics on stderr",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "error",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "Filter JSON output through a jq expression (implies --json)",
			},
		},
	}
	requireFlagsFirst(app.Commands)
	return app
}
