package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	"github.com/brojonat/solxfer/service/transfer"
	solanago "github.com/gagliardetto/solana-go"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

// WorkflowClient is the subset of the Temporal client the executor needs.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// Executor runs transfers as TransferWorkflow executions. It implements
// transfer.Executor.
type Executor struct {
	client       WorkflowClient
	taskQueue    string
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

var _ transfer.Executor = (*Executor)(nil)

// NewExecutor creates an executor starting workflows on taskQueue.
func NewExecutor(c WorkflowClient, taskQueue string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		client:       c,
		taskQueue:    taskQueue,
		pollInterval: 250 * time.Millisecond,
		logger:       logger,
	}
}

// WithMetrics records workflow durations to m.
func (e *Executor) WithMetrics(m *metrics.Metrics) *Executor {
	e.metrics = m
	return e
}

// Execute starts a workflow for p and waits for its result. progress is
// called with PhaseConfirming once the workflow reports the transaction as
// broadcast.
func (e *Executor) Execute(ctx context.Context, p transfer.Plan, progress func(transfer.Phase)) (solanago.Signature, error) {
	workflowID := fmt.Sprintf("transfer-%s-%d", p.From, time.Now().UnixNano())

	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: e.taskQueue,
	}, TransferWorkflow, inputFromPlan(p))
	if err != nil {
		return solanago.Signature{}, transfer.NewError(transfer.NetworkUnavailable,
			fmt.Errorf("failed to start transfer workflow: %w", err))
	}

	e.logger.InfoContext(ctx, "transfer workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	var once sync.Once
	report := func() {
		once.Do(func() {
			if progress != nil {
				progress(transfer.PhaseConfirming)
			}
		})
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.watchPhase(watchCtx, run.GetID(), run.GetRunID(), report)
	}()

	started := time.Now()
	var result TransferResult
	err = run.Get(ctx, &result)
	stopWatch()
	wg.Wait()
	e.recordDuration(started, result, err)

	if err != nil {
		return solanago.Signature{}, transfer.NewError(transfer.KindOf(err),
			fmt.Errorf("transfer workflow failed: %w", err))
	}

	var sig solanago.Signature
	if result.Signature != "" {
		sig, err = solanago.SignatureFromBase58(result.Signature)
		if err != nil {
			return solanago.Signature{}, transfer.NewError(transfer.NetworkUnavailable,
				fmt.Errorf("invalid signature in workflow result: %w", err))
		}
		// The poll may have missed a short confirming phase.
		report()
	}

	if result.Kind != "" {
		kind := transfer.Kind(result.Kind)
		if !kind.Known() {
			kind = transfer.NetworkUnavailable
		}
		var cause error
		if result.Error != "" && result.Error != kind.Message() {
			cause = errors.New(result.Error)
		}
		return sig, transfer.NewError(kind, cause)
	}
	return sig, nil
}

func (e *Executor) recordDuration(started time.Time, result TransferResult, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case result.Kind != "":
		status = "failed"
	}
	e.metrics.RecordWorkflowDuration(status, time.Since(started).Seconds())
}

// watchPhase polls the workflow's phase query until it reports confirming or
// ctx is done.
func (e *Executor) watchPhase(ctx context.Context, workflowID, runID string, report func()) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		val, err := e.client.QueryWorkflow(ctx, workflowID, runID, PhaseQuery)
		if err != nil {
			e.logger.DebugContext(ctx, "phase query failed", "workflow_id", workflowID, "error", err)
			continue
		}
		var phase string
		if err := val.Get(&phase); err != nil {
			continue
		}
		if phase == transfer.PhaseConfirming.String() {
			report()
			return
		}
	}
}
