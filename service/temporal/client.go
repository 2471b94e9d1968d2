package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// Client starts and inspects transfer workflows.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return NewClientFromSDK(c, taskQueue, logger), nil
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(c client.Client, taskQueue string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{client: c, taskQueue: taskQueue, logger: logger}
}

// StartTransfer starts a TransferWorkflow and returns its workflow id. An
// empty key gets a random one; reusing a key for a running or completed
// transfer is rejected by Temporal, so a retried request cannot pay twice.
func (c *Client) StartTransfer(ctx context.Context, key string, input TransferInput) (string, error) {
	if key == "" {
		key = uuid.NewString()
	}
	id := transferWorkflowID(key)

	c.logger.Debug("starting transfer workflow",
		"workflow_id", id,
		"destination", input.Destination,
		"mint", input.Mint,
		"amount", input.Amount,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		Memo: map[string]interface{}{
			"destination": input.Destination,
			"mint":        input.Mint,
			"created_by":  "solclient",
		},
	}, TransferWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start transfer workflow",
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start transfer workflow %q: %w", id, err)
	}

	c.logger.Info("transfer workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"destination", input.Destination,
	)
	return run.GetID(), nil
}

// AwaitTransfer blocks until the workflow finishes and returns its result.
func (c *Client) AwaitTransfer(ctx context.Context, workflowID string) (*TransferResult, error) {
	var result TransferResult
	if err := c.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("transfer workflow %q failed: %w", workflowID, err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func transferWorkflowID(key string) string {
	return "transfer-" + key
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
