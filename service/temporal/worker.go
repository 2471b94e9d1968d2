package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solclient/service/metrics"
	"github.com/brojonat/solclient/service/txn"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig wires the transfer workflow to a Temporal task queue. The
// worker signs every transfer with Authority.
type WorkerConfig struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	Transfers       TransferPreparer
	Submitter       Submitter
	Authority       txn.Authority
	ConfirmInterval time.Duration
	Metrics         *metrics.Metrics // nil disables metrics
	Logger          *slog.Logger
}

// Worker executes TransferWorkflow and its activities.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker dials Temporal and registers the transfer workflow and
// activities. Nothing is polled until Run.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Authority.IsZero() {
		return nil, fmt.Errorf("worker requires a signing authority: %w", txn.ErrMissingAuthority)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "temporal_worker", "task_queue", cfg.TaskQueue)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", cfg.TemporalHost, err)
	}

	// One signer sends every transfer, so activity concurrency stays low to
	// keep blockhash and fee pressure on the cluster modest.
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     4,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
		WorkerStopTimeout:                      30 * time.Second,
	})

	acts := NewActivities(cfg.Transfers, cfg.Submitter, cfg.Authority, cfg.ConfirmInterval, cfg.Metrics, logger)
	w.RegisterWorkflow(TransferWorkflow)
	w.RegisterActivity(acts.SendTransfer)
	w.RegisterActivity(acts.ConfirmTransfer)

	logger.Info("temporal worker registered",
		"namespace", cfg.TemporalNamespace,
		"authority", cfg.Authority.Address().String(),
	)
	return &Worker{client: c, worker: w, logger: logger}, nil
}

// Run polls the task queue until ctx is cancelled, then stops the worker
// and closes its client. A failure to start is returned immediately.
func (w *Worker) Run(ctx context.Context) error {
	defer w.client.Close()

	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("failed to start temporal worker: %w", err)
	}
	w.logger.Info("temporal worker polling")

	<-ctx.Done()
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	return nil
}
