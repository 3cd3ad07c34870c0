package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	"github.com/brojonat/solxfer/service/transfer"
	solanago "github.com/gagliardetto/solana-go"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// TransferInput contains the input parameters for a transfer workflow.
type TransferInput struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	Lamports    uint64 `json:"lamports"`
}

// TransferResult contains the outcome of a transfer workflow. Classified
// transfer failures complete the workflow with Kind and Error set so the
// signature of a broadcast transaction is never lost.
type TransferResult struct {
	Signature string `json:"signature,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SignAndSendInput contains parameters for the SignAndSend activity.
type SignAndSendInput struct {
	Transfer  TransferInput `json:"transfer"`
	Blockhash string        `json:"blockhash"`
}

// ConfirmTransferInput contains parameters for the ConfirmTransfer activity.
type ConfirmTransferInput struct {
	Signature string `json:"signature"`
}

func inputFromPlan(p transfer.Plan) TransferInput {
	return TransferInput{
		FromAddress: p.From.String(),
		ToAddress:   p.To.String(),
		Lamports:    p.Lamports,
	}
}

func (in TransferInput) plan() (transfer.Plan, error) {
	from, err := solanago.PublicKeyFromBase58(in.FromAddress)
	if err != nil {
		return transfer.Plan{}, transfer.NewError(transfer.WalletNotConnected, err)
	}
	to, err := solanago.PublicKeyFromBase58(in.ToAddress)
	if err != nil {
		return transfer.Plan{}, transfer.NewError(transfer.InvalidRecipient, err)
	}
	if in.Lamports == 0 {
		return transfer.Plan{}, transfer.NewError(transfer.InvalidAmount, nil)
	}
	return transfer.Plan{From: from, To: to, Lamports: in.Lamports}, nil
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	conn    transfer.Connection
	wallets transfer.WalletSource
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(conn transfer.Connection, wallets transfer.WalletSource, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		conn:    conn,
		wallets: wallets,
		metrics: m,
		logger:  logger,
	}
}

// FetchBlockhash returns a recent blockhash for binding the transaction.
func (a *Activities) FetchBlockhash(ctx context.Context) (hash string, err error) {
	defer a.record("FetchBlockhash", time.Now(), &err)

	blockhash, err := a.conn.LatestBlockhash(ctx)
	if err != nil {
		return "", applicationError(transfer.NetworkUnavailable, fmt.Errorf("failed to get latest blockhash: %w", err))
	}
	return blockhash.String(), nil
}

// SignAndSend builds the transfer, has the worker's wallet sign it and
// broadcasts it. The wallet must be connected as the transfer's sender.
func (a *Activities) SignAndSend(ctx context.Context, input SignAndSendInput) (sig string, err error) {
	defer a.record("SignAndSend", time.Now(), &err)

	p, err := input.Transfer.plan()
	if err != nil {
		return "", applicationError(transfer.KindOf(err), err)
	}

	w := a.wallets.Session()
	if w == nil || !w.Connected() || w.PublicKey() == nil {
		return "", applicationError(transfer.WalletNotConnected, nil)
	}
	if !w.PublicKey().Equals(p.From) {
		return "", applicationError(transfer.WalletNotConnected,
			fmt.Errorf("worker wallet %s cannot sign for %s", w.PublicKey(), p.From))
	}

	blockhash, err := solanago.HashFromBase58(input.Blockhash)
	if err != nil {
		return "", applicationError(transfer.NetworkUnavailable, fmt.Errorf("invalid blockhash: %w", err))
	}
	tx, err := p.Transaction(blockhash)
	if err != nil {
		return "", applicationError(transfer.NetworkUnavailable, err)
	}

	signature, err := w.SignAndSend(ctx, tx, a.conn)
	if err != nil {
		kind := transfer.NetworkUnavailable
		if errors.Is(err, transfer.ErrUserRejected) {
			kind = transfer.UserRejected
		}
		return "", applicationError(kind, err)
	}

	a.logger.InfoContext(ctx, "transfer broadcast",
		"signature", signature.String(),
		"to", p.To.String(),
		"lamports", p.Lamports,
	)
	return signature.String(), nil
}

// ConfirmTransfer waits until the signature reaches the configured commitment.
func (a *Activities) ConfirmTransfer(ctx context.Context, input ConfirmTransferInput) (err error) {
	defer a.record("ConfirmTransfer", time.Now(), &err)

	sig, err := solanago.SignatureFromBase58(input.Signature)
	if err != nil {
		return applicationError(transfer.NetworkUnavailable, fmt.Errorf("invalid signature: %w", err))
	}

	if err := a.conn.ConfirmTransaction(ctx, sig); err != nil {
		return applicationError(transfer.KindOf(err), err)
	}
	return nil
}

func (a *Activities) record(activity string, start time.Time, err *error) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, *err, time.Since(start).Seconds())
	}
}

// applicationError carries the failure kind as the application error type
// and the underlying cause as its message. Transfers are never retried, so
// every failure is non-retryable.
func applicationError(kind transfer.Kind, err error) error {
	msg := kind.Message()
	if err != nil {
		msg = err.Error()
	}
	return temporalsdk.NewNonRetryableApplicationError(msg, string(kind), nil)
}
