package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brojonat/solxfer/client"
	"github.com/brojonat/solxfer/service/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp runs the CLI with args and returns stdout. Exit errors are returned
// instead of terminating the test binary.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"solxfer"}, args...))
	return out.String(), err
}

func TestHealthCommand(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer healthy.Close()

	out, err := runApp(t, "--server-url", healthy.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
	assert.Contains(t, out, healthy.URL)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	_, err = runApp(t, "--server-url", broken.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "solxfer CLI")
	assert.Contains(t, out, "Version: dev")
}

func TestClientTransferCommand(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		wantOut string
	}{
		{
			name:    "success",
			status:  http.StatusOK,
			body:    `{"phase":"success","status":"Transfer successful!","signature":"sig123","connected":true}`,
			wantOut: "Signature:  sig123",
		},
		{
			name:    "failed",
			status:  http.StatusUnprocessableEntity,
			body:    `{"phase":"failed","kind":"user_rejected","error":"Transaction rejected by user","recipient":"abc","amount":"1"}`,
			wantErr: "transfer failed (user_rejected)",
			wantOut: "Error:      Transaction rejected by user",
		},
		{
			name:    "busy",
			status:  http.StatusConflict,
			body:    `{"phase":"confirming","status":"Confirming transaction...","kind":"busy"}`,
			wantErr: "already in flight",
			wantOut: "Phase:      confirming",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/transfers", r.URL.Path)
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "abc", body["recipient"])
				assert.Equal(t, "1", body["amount"])

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			out, err := runApp(t, "--server-url", server.URL, "client", "transfer", "abc", "1")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestClientTransferCommand_RequiresArgs(t *testing.T) {
	_, err := runApp(t, "client", "transfer", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient and amount are required")
}

func TestClientWatchCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/transfers", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		fmt.Fprint(w, "event: transfer\ndata: {\"phase\":\"success\",\"lamports\":100,\"signature\":\"small\"}\n\n")
		fmt.Fprint(w, "event: transfer\ndata: {\"phase\":\"success\",\"lamports\":5000000000,\"signature\":\"big1\"}\n\n")
		fmt.Fprint(w, "event: transfer\ndata: {\"phase\":\"success\",\"lamports\":7000000000,\"signature\":\"big2\"}\n\n")
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "watch",
		"--jq", ".lamports > 1000000000", "--count", "1", "--json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1, "--count stops after the first match")
	assert.Contains(t, lines[0], `"signature":"big1"`)
}

func TestClientWatchCommand_BadFilter(t *testing.T) {
	_, err := runApp(t, "client", "watch", "--jq", ".phase ==")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestMatches(t *testing.T) {
	event := &client.Event{Phase: "failed", Kind: "user_rejected", Lamports: 500_000_000, ToAddress: "abc"}

	tests := []struct {
		name    string
		filters []string
		want    bool
	}{
		{name: "no filters", want: true},
		{name: "phase match", filters: []string{`.phase == "failed"`}, want: true},
		{name: "phase mismatch", filters: []string{`.phase == "success"`}, want: false},
		{name: "all must match", filters: []string{`.phase == "failed"`, `.kind == "invalid_amount"`}, want: false},
		{name: "numeric comparison", filters: []string{`.lamports >= 500000000`}, want: true},
		{name: "missing field is null", filters: []string{`.signature`}, want: false},
		{name: "non-boolean value is truthy", filters: []string{`.to_address`}, want: true},
		{name: "runtime error does not match", filters: []string{`.phase | tonumber`}, want: false},
		{name: "empty result does not match", filters: []string{`empty`}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters, err := compileFilters(tt.filters)
			require.NoError(t, err)
			got, err := matches(filters, event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExplorerURL(t *testing.T) {
	assert.Equal(t, "https://explorer.solana.com/tx/sig?cluster=devnet", explorerURL("sig", "devnet"))
	assert.Equal(t, "https://explorer.solana.com/tx/sig", explorerURL("sig", "mainnet-beta"))
	assert.Equal(t, "https://explorer.solana.com/tx/sig?cluster=custom", explorerURL("sig", "localnet"))
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf)

	s := transfer.State{}.WithRecipient("abc").WithAmount("1").Begin()
	p.ObserveTransfer(context.Background(), transfer.Event{State: s})
	p.ObserveTransfer(context.Background(), transfer.Event{State: s.Advance(transfer.PhaseConfirming)})
	p.ObserveTransfer(context.Background(), transfer.Event{State: s.Succeed("sig")})

	assert.Equal(t, "… Processing...\n… Confirming transaction...\n", buf.String())
}
