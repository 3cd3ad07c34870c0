package temporal

import (
	"errors"
	"time"

	"github.com/brojonat/solxfer/service/transfer"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// PhaseQuery is the query type that reports the workflow's current phase.
const PhaseQuery = "phase"

// TransferWorkflow runs the network steps of one transfer: fetch a blockhash,
// sign and broadcast, then confirm. Every activity runs at most once; a
// failed transfer is retried only by a new submission.
func TransferWorkflow(ctx workflow.Context, input TransferInput) (*TransferResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("TransferWorkflow started", "to", input.ToAddress, "lamports", input.Lamports)

	phase := transfer.PhaseSubmitting
	if err := workflow.SetQueryHandler(ctx, PhaseQuery, func() (string, error) {
		return phase.String(), nil
	}); err != nil {
		return nil, err
	}

	result := &TransferResult{}
	fail := func(step string, confirming bool, err error) (*TransferResult, error) {
		kind, detail := classifyActivityError(err, confirming)
		logger.Warn("transfer step failed", "step", step, "kind", string(kind), "error", err)
		phase = transfer.PhaseFailed
		result.Kind = string(kind)
		result.Error = detail
		return result, nil
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var blockhash string
	if err := workflow.ExecuteActivity(ctx, a.FetchBlockhash).Get(ctx, &blockhash); err != nil {
		return fail("FetchBlockhash", false, err)
	}

	// Approval may wait on a human.
	signCtx := workflow.WithStartToCloseTimeout(ctx, 5*time.Minute)
	var signature string
	if err := workflow.ExecuteActivity(signCtx, a.SignAndSend, SignAndSendInput{
		Transfer:  input,
		Blockhash: blockhash,
	}).Get(ctx, &signature); err != nil {
		return fail("SignAndSend", false, err)
	}
	result.Signature = signature
	phase = transfer.PhaseConfirming
	logger.Info("transfer broadcast", "signature", signature)

	// The confirmation window is enforced by the connection; the activity
	// timeout only bounds a stuck worker.
	confirmCtx := workflow.WithStartToCloseTimeout(ctx, 10*time.Minute)
	if err := workflow.ExecuteActivity(confirmCtx, a.ConfirmTransfer, ConfirmTransferInput{
		Signature: signature,
	}).Get(ctx, nil); err != nil {
		return fail("ConfirmTransfer", true, err)
	}

	phase = transfer.PhaseSuccess
	logger.Info("TransferWorkflow completed successfully", "signature", signature)
	return result, nil
}

// classifyActivityError recovers the failure kind and its detail from an
// activity error.
func classifyActivityError(err error, confirming bool) (transfer.Kind, string) {
	var appErr *temporalsdk.ApplicationError
	if errors.As(err, &appErr) {
		if kind := transfer.Kind(appErr.Type()); kind.Known() {
			return kind, appErr.Message()
		}
	}
	var timeoutErr *temporalsdk.TimeoutError
	if confirming && errors.As(err, &timeoutErr) {
		return transfer.ConfirmationTimeout, err.Error()
	}
	return transfer.NetworkUnavailable, err.Error()
}
