package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	"github.com/brojonat/solxfer/service/transfer"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// DevnetRPCURL is the public devnet endpoint used when nothing else is configured.
const DevnetRPCURL = "https://api.devnet.solana.com"

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransaction(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// Options controls how the client talks to the cluster.
type Options struct {
	// Endpoint labels metrics (e.g. "devnet" or the RPC host).
	Endpoint     string
	Commitment   rpc.CommitmentType
	ConfirmAfter time.Duration // confirmation timeout
	PollInterval time.Duration
}

// Client is the process-wide connection to the cluster. It implements
// transfer.Connection.
type Client struct {
	rpc     RPCClient
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ transfer.Connection = (*Client)(nil)

// NewClient creates a new Solana client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, opts Options, m *metrics.Metrics, logger *slog.Logger) *Client {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.ConfirmAfter <= 0 {
		opts.ConfirmAfter = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:     rpcClient,
		opts:    opts,
		metrics: m,
		logger:  logger,
	}
}

// Commitment returns the commitment level transfers are confirmed at.
func (c *Client) Commitment() rpc.CommitmentType {
	return c.opts.Commitment
}

// LatestBlockhash fetches the blockhash a new transaction is bound to.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, c.opts.Commitment)
	c.record("GetLatestBlockhash", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get latest blockhash", "error", err)
		return solana.Hash{}, err
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("empty getLatestBlockhash response")
	}

	c.logger.DebugContext(ctx, "fetched latest blockhash",
		"blockhash", out.Value.Blockhash.String(),
		"last_valid_block_height", out.Value.LastValidBlockHeight,
	)
	return out.Value.Blockhash, nil
}

// SendTransaction broadcasts a signed transaction with preflight checks at
// the client's commitment level.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransaction(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.opts.Commitment,
	})
	c.record("SendTransaction", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to send transaction", "error", err)
		return solana.Signature{}, err
	}

	c.logger.InfoContext(ctx, "transaction broadcast", "signature", sig.String())
	return sig, nil
}

// ConfirmTransaction polls the signature status until it reaches the
// client's commitment level. It returns transfer.ErrConfirmationTimeout when
// the confirmation window elapses and transfer.ErrTransactionFailed when the
// transaction executed with an error. RPC errors end the poll immediately.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConfirmAfter)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	defer func() {
		if c.metrics == nil {
			return
		}
		outcome := "confirmed"
		switch {
		case errors.Is(err, transfer.ErrConfirmationTimeout):
			outcome = "timeout"
		case err != nil:
			outcome = "error"
		}
		c.metrics.RecordConfirmationPolls(outcome, polls)
	}()

	timeout := func() error {
		return fmt.Errorf("%w after %v", transfer.ErrConfirmationTimeout, c.opts.ConfirmAfter)
	}

	for {
		polls++
		done, err := c.checkStatus(ctx, sig)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return timeout()
			}
			return err
		}
		if done {
			c.logger.InfoContext(ctx, "transaction confirmed",
				"signature", sig.String(),
				"commitment", c.opts.Commitment,
				"polls", polls,
			)
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return timeout()
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) checkStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, sig)
	c.record("GetSignatureStatuses", start, err)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to get signature status",
			"signature", sig.String(),
			"error", err,
		)
		return false, err
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		// Not seen by the node yet.
		return false, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", transfer.ErrTransactionFailed, status.Err)
	}

	c.logger.DebugContext(ctx, "signature status",
		"signature", sig.String(),
		"slot", status.Slot,
		"confirmation_status", status.ConfirmationStatus,
	)
	return reached(status.ConfirmationStatus, c.opts.Commitment), nil
}

// reached reports whether a confirmation status satisfies the commitment.
func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	rank := map[string]int{
		string(rpc.ConfirmationStatusProcessed): 1,
		string(rpc.ConfirmationStatusConfirmed): 2,
		string(rpc.ConfirmationStatusFinalized): 3,
	}
	want, ok := rank[string(commitment)]
	if !ok {
		want = rank[string(rpc.ConfirmationStatusConfirmed)]
	}
	return rank[string(status)] >= want
}

func (c *Client) record(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.opts.Endpoint, time.Since(start).Seconds())
}
