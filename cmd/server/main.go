package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solclient/client"
	"github.com/brojonat/solclient/service/config"
	"github.com/brojonat/solclient/service/db"
	"github.com/brojonat/solclient/service/metrics"
	natspkg "github.com/brojonat/solclient/service/nats"
	"github.com/brojonat/solclient/service/server"
	"github.com/brojonat/solclient/service/snapshot"
	"github.com/brojonat/solclient/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// snapshotName keys the server's snapshot in the database and KV bucket.
const snapshotName = "server"

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := cfg.NewLogger(os.Stderr)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	var (
		sources []snapshot.Source
		sinks   []snapshot.Sink
		txns    server.TransactionLister
		dbStore *db.Store
	)

	if cfg.SnapshotPath != "" {
		file := snapshot.NewFileStore(cfg.SnapshotPath)
		sources = append(sources, file)
		sinks = append(sinks, file)
	}

	// Initialize database connection pool
	if cfg.DatabaseURL != "" {
		version, err := db.Migrate(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("database schema up to date", "version", version)

		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		// Verify database connection
		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		dbStore = db.NewStore(dbPool)
		txns = dbStore
		sink := dbStore.SnapshotSink(snapshotName)
		sources = append(sources, sink)
		sinks = append(sinks, sink)
	}

	var (
		publisher *natspkg.JetStreamPublisher
		events    *server.EventStream
	)
	if cfg.NATSURL != "" {
		var err error
		publisher, err = natspkg.NewPublisher(cfg.NATSURL, logger, m)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		kv, err := natspkg.OpenSnapshotKV(ctx, publisher.JetStream(), cfg.NATSBucket, snapshotName)
		if err != nil {
			logger.Error("failed to open snapshot bucket", "bucket", cfg.NATSBucket, "error", err)
			os.Exit(1)
		}
		sources = append(sources, kv)
		sinks = append(sinks, kv)

		events, err = server.NewEventStream(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create event stream", "error", err)
			os.Exit(1)
		}
	}

	// Build the Solana client, resuming the last persisted cluster and wallet
	connectors, err := client.ConnectorsFor(cfg, nil)
	if err != nil {
		logger.Error("failed to load wallet connectors", "error", err)
		os.Exit(1)
	}
	clientCfg := client.ConfigFor(cfg, connectors, logger, m)
	if s, ok := loadSnapshot(ctx, sources, logger); ok {
		clientCfg = client.ApplySerializableState(clientCfg, s)
	}

	solClient, err := client.New(ctx, clientCfg)
	if err != nil {
		logger.Error("failed to create solana client", "error", err)
		os.Exit(1)
	}
	defer solClient.Destroy()

	for _, sink := range sinks {
		stop := snapshot.Persist(ctx, solClient.Store(), sink, logger, m)
		defer stop()
	}
	if dbStore != nil {
		stop := db.TrackTransactions(ctx, solClient.Store(), dbStore, logger)
		defer stop()
	}
	if publisher != nil {
		stop := natspkg.PublishTransactions(ctx, solClient.Store(), publisher, logger)
		defer stop()
	}

	// Initialize Temporal client
	var transfers server.TransferStarter
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Warn("temporal unavailable, transfers endpoint disabled", "host", cfg.TemporalHost, "error", err)
	} else {
		defer temporalClient.Close()
		transfers = temporalClient
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, solClient.Store(), txns, transfers, events, m, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"database", dbStore != nil,
		"nats_url", cfg.NATSURL,
		"temporal", transfers != nil,
		"snapshot_sinks", len(sinks),
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// loadSnapshot returns the first stored snapshot found in sources.
func loadSnapshot(ctx context.Context, sources []snapshot.Source, logger *slog.Logger) (snapshot.State, bool) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, src := range sources {
		s, err := src.Load(ctx)
		if errors.Is(err, snapshot.ErrNotFound) {
			continue
		}
		if err != nil {
			logger.Warn("failed to load snapshot", "error", err)
			continue
		}
		logger.Info("resuming from snapshot",
			"endpoint", s.Endpoint,
			"commitment", s.Commitment,
			"autoconnect", s.Autoconnect,
		)
		return s, true
	}
	return snapshot.State{}, false
}
