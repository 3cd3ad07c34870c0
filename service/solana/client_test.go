package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	"github.com/brojonat/solxfer/service/transfer"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	mu sync.Mutex

	blockhash    solana.Hash
	blockhashErr error
	sendSig      solana.Signature
	sendErr      error
	sendOpts     rpc.TransactionOpts

	// statuses is consumed one entry per GetSignatureStatuses call; the last
	// entry repeats.
	statuses  []*rpc.SignatureStatusesResult
	statusErr error
	polls     int
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash, LastValidBlockHeight: 100},
	}, nil
}

func (m *mockRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	m.sendOpts = opts
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	return m.sendSig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if len(m.statuses) == 0 {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	st := m.statuses[0]
	if len(m.statuses) > 1 {
		m.statuses = m.statuses[1:]
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{st}}, nil
}

func newTestClient(mock *mockRPCClient, opts Options) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	return NewClient(mock, opts, nil, logger)
}

func TestLatestBlockhash(t *testing.T) {
	mock := &mockRPCClient{blockhash: solana.Hash{1, 2, 3}}
	c := newTestClient(mock, Options{})

	hash, err := c.LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, solana.Hash{1, 2, 3}, hash)

	mock.blockhashErr = errors.New("connection refused")
	_, err = c.LatestBlockhash(context.Background())
	assert.Error(t, err)
}

func TestSendTransaction_UsesCommitment(t *testing.T) {
	mock := &mockRPCClient{sendSig: solana.Signature{9}}
	c := newTestClient(mock, Options{Commitment: rpc.CommitmentFinalized})

	sig, err := c.SendTransaction(context.Background(), &solana.Transaction{})
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{9}, sig)
	assert.Equal(t, rpc.CommitmentFinalized, mock.sendOpts.PreflightCommitment)
}

func TestConfirmTransaction_WaitsForCommitment(t *testing.T) {
	mock := &mockRPCClient{
		statuses: []*rpc.SignatureStatusesResult{
			nil,
			{Slot: 10, ConfirmationStatus: rpc.ConfirmationStatusProcessed},
			{Slot: 10, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		},
	}
	c := newTestClient(mock, Options{Commitment: rpc.CommitmentConfirmed, ConfirmAfter: 5 * time.Second})

	err := c.ConfirmTransaction(context.Background(), solana.Signature{1})
	require.NoError(t, err)
	assert.Equal(t, 3, mock.polls)
}

func TestConfirmTransaction_Finalized(t *testing.T) {
	mock := &mockRPCClient{
		statuses: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
			{ConfirmationStatus: rpc.ConfirmationStatusFinalized},
		},
	}
	c := newTestClient(mock, Options{Commitment: rpc.CommitmentFinalized, ConfirmAfter: 5 * time.Second})

	require.NoError(t, c.ConfirmTransaction(context.Background(), solana.Signature{1}))
	assert.Equal(t, 2, mock.polls)
}

func TestConfirmTransaction_Timeout(t *testing.T) {
	mock := &mockRPCClient{} // never seen
	c := newTestClient(mock, Options{ConfirmAfter: 20 * time.Millisecond})

	err := c.ConfirmTransaction(context.Background(), solana.Signature{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrConfirmationTimeout)
	assert.Equal(t, transfer.ConfirmationTimeout, transfer.KindOf(err))
}

func TestConfirmTransaction_OnChainError(t *testing.T) {
	mock := &mockRPCClient{
		statuses: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusConfirmed, Err: map[string]interface{}{"InstructionError": []interface{}{0, "InsufficientFunds"}}},
		},
	}
	c := newTestClient(mock, Options{ConfirmAfter: time.Second})

	err := c.ConfirmTransaction(context.Background(), solana.Signature{1})
	assert.ErrorIs(t, err, transfer.ErrTransactionFailed)
}

func TestConfirmTransaction_RPCErrorIsNotRetried(t *testing.T) {
	mock := &mockRPCClient{statusErr: errors.New("502 bad gateway")}
	c := newTestClient(mock, Options{ConfirmAfter: time.Second})

	err := c.ConfirmTransaction(context.Background(), solana.Signature{1})
	require.Error(t, err)
	assert.Equal(t, transfer.NetworkUnavailable, transfer.KindOf(err))
	assert.Equal(t, 1, mock.polls)
}

func TestClient_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	mock := &mockRPCClient{blockhash: solana.Hash{1}}
	c := NewClient(mock, Options{Endpoint: "devnet"}, m, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.LatestBlockhash(context.Background())
	require.NoError(t, err)

	mock.blockhashErr = errors.New("boom")
	_, _ = c.LatestBlockhash(context.Background())

	count, err := testutil.GatherAndCount(reg, "solana_rpc_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per status")
}

func TestReached(t *testing.T) {
	assert.True(t, reached(rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed))
	assert.True(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed))
	assert.False(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	assert.False(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized))
	assert.True(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed))
	assert.False(t, reached("", rpc.CommitmentProcessed))
}
