package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brojonat/solxfer/service/config"
	"github.com/brojonat/solxfer/service/transfer"
	"github.com/brojonat/solxfer/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRecipient = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// confirmingRPC accepts every transaction and reports it confirmed.
type confirmingRPC struct{}

func (confirmingRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{7}, LastValidBlockHeight: 10},
	}, nil
}

func (confirmingRPC) SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	return tx.Signatures[0], nil
}

func (confirmingRPC) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{
		{Slot: 1, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
	}}, nil
}

func writeKeypair(t *testing.T) string {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	data, err := json.Marshal(values)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testConfig(keypairPath string) *config.Config {
	return &config.Config{
		ServerAddr:          "127.0.0.1:0",
		SolanaNetwork:       "devnet",
		SolanaRPCURL:        rpc.DevNet_RPC,
		SolanaCommitment:    rpc.CommitmentConfirmed,
		ConfirmTimeout:      time.Second,
		ConfirmPollInterval: time.Millisecond,
		WalletKeypairPath:   keypairPath,
		WalletAutoConnect:   true,
		MetricsEnabled:      true,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_SubmitsThroughWiredStack(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), testConfig(writeKeypair(t)), Options{
		Registerer: reg,
		RPCClient:  confirmingRPC{},
	}, testLogger())
	require.NoError(t, err)
	defer a.Close()

	require.True(t, a.Form.Connected(), "the keypair wallet auto-connects")

	final, err := a.Form.Submit(context.Background(), testRecipient, "0.5")
	require.NoError(t, err)
	assert.Equal(t, transfer.PhaseSuccess, final.Phase)

	count, err := testutil.GatherAndCount(reg, "transfers_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "solana_rpc_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "blockhash, send and status calls are counted")
}

func TestNew_WithoutAutoConnect(t *testing.T) {
	cfg := testConfig(writeKeypair(t))
	cfg.WalletAutoConnect = false
	cfg.MetricsEnabled = false

	a, err := New(context.Background(), cfg, Options{RPCClient: confirmingRPC{}}, testLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Form.Connected())
	assert.Nil(t, a.Metrics)

	_, err = a.Form.Submit(context.Background(), testRecipient, "1")
	assert.Equal(t, transfer.WalletNotConnected, transfer.KindOf(err))
}

func TestNew_ApproverDecides(t *testing.T) {
	cfg := testConfig(writeKeypair(t))
	cfg.MetricsEnabled = false

	a, err := New(context.Background(), cfg, Options{
		RPCClient: confirmingRPC{},
		Approver: wallet.ApproverFunc(func(ctx context.Context, req wallet.Approval) (bool, error) {
			return false, nil
		}),
	}, testLogger())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Form.Submit(context.Background(), testRecipient, "1")
	assert.Equal(t, transfer.UserRejected, transfer.KindOf(err))
}

func TestServer(t *testing.T) {
	cfg := testConfig(writeKeypair(t))
	a, err := New(context.Background(), cfg, Options{
		Registerer: prometheus.NewRegistry(),
		RPCClient:  confirmingRPC{},
	}, testLogger())
	require.NoError(t, err)
	defer a.Close()

	srv, err := a.Server()
	require.NoError(t, err)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"keypair"`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream/transfers", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "streaming needs NATS")
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig(writeKeypair(t))
	cfg.MetricsEnabled = false
	a, err := New(context.Background(), cfg, Options{RPCClient: confirmingRPC{}}, testLogger())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestClose_DisconnectsWallet(t *testing.T) {
	cfg := testConfig(writeKeypair(t))
	cfg.MetricsEnabled = false
	a, err := New(context.Background(), cfg, Options{RPCClient: confirmingRPC{}}, testLogger())
	require.NoError(t, err)

	require.True(t, a.Form.Connected())
	a.Close()
	assert.False(t, a.Form.Connected())
}
