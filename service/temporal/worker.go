package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/solxfer/service/metrics"
	"github.com/brojonat/solxfer/service/transfer"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	Temporal Conn

	Conn    transfer.Connection
	Wallets transfer.WalletSource // the worker's signing wallet
	Metrics *metrics.Metrics      // Optional: if nil, no metrics will be recorded
	Logger  *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	c, err := config.Temporal.dial(logger)
	if err != nil {
		return nil, err
	}

	// A single wallet signs; one transfer at a time keeps approvals ordered.
	w := worker.New(c, config.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(TransferWorkflow)
	logger.Info("registered workflow", "name", "TransferWorkflow")

	activities := NewActivities(config.Conn, config.Wallets, config.Metrics, logger)
	w.RegisterActivity(activities.FetchBlockhash)
	w.RegisterActivity(activities.SignAndSend)
	w.RegisterActivity(activities.ConfirmTransfer)

	logger.Info("registered activities",
		"activities", []string{"FetchBlockhash", "SignAndSend", "ConfirmTransfer"},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Run processes workflows and activities until ctx is done or the worker
// fails, then closes the Temporal connection.
func (w *Worker) Run(ctx context.Context) error {
	defer w.client.Close()

	stop := make(chan interface{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			close(stop)
		case <-done:
		}
	}()

	w.logger.Info("starting temporal worker")
	if err := w.worker.Run(stop); err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}
