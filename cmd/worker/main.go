package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solclient/client"
	"github.com/brojonat/solclient/service/config"
	"github.com/brojonat/solclient/service/connector"
	"github.com/brojonat/solclient/service/metrics"
	"github.com/brojonat/solclient/service/temporal"
	"github.com/brojonat/solclient/service/txn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.MustLoad()
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.KeypairPath == "" {
		logger.Error("KEYPAIR_PATH is required to sign transfers")
		os.Exit(1)
	}
	key, err := connector.KeygenFile(cfg.KeypairPath)(ctx)
	if err != nil {
		logger.Error("failed to load signing keypair", "path", cfg.KeypairPath, "error", err)
		os.Exit(1)
	}
	authority := txn.SignerAuthority(txn.NewKeypairSigner(key))

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// Transfers are signed by the worker's keypair, so no wallet connectors.
	solClient, err := client.New(ctx, client.ConfigFor(cfg, nil, logger, m))
	if err != nil {
		logger.Error("failed to create solana client", "error", err)
		os.Exit(1)
	}
	defer solClient.Destroy()

	w, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Transfers:         solClient.Features(),
		Submitter:         solClient.Pipeline(),
		Authority:         authority,
		ConfirmInterval:   cfg.ConfirmPollInterval,
		Metrics:           m,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("solclient worker starting",
		"endpoint", solClient.Store().GetState().Cluster.Endpoint,
		"metrics_addr", cfg.MetricsAddr,
	)
	if err := w.Run(ctx); err != nil {
		logger.Error("temporal worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
