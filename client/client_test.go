package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		response  map[string]interface{}
		wantErr   error
		wantKind  string
		wantPhase string
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			response:  map[string]interface{}{"phase": "success", "status": "Transfer successful!", "signature": "sig123"},
			wantPhase: "success",
		},
		{
			name:      "busy",
			status:    http.StatusConflict,
			response:  map[string]interface{}{"phase": "confirming", "kind": "busy"},
			wantErr:   ErrBusy,
			wantPhase: "confirming",
		},
		{
			name:      "failed",
			status:    http.StatusUnprocessableEntity,
			response:  map[string]interface{}{"phase": "failed", "kind": "invalid_amount", "error": "Invalid amount"},
			wantKind:  "invalid_amount",
			wantPhase: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "POST", r.Method)
				assert.Equal(t, "/api/v1/transfers", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "recipient123", body["recipient"])
				assert.Equal(t, "0.5", body["amount"])

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client := NewClient(server.URL, nil, nil)
			state, err := client.Transfer(context.Background(), "recipient123", "0.5")
			require.NotNil(t, state)
			assert.Equal(t, tt.wantPhase, state.Phase)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantKind != "":
				var transferErr *TransferError
				require.ErrorAs(t, err, &transferErr)
				assert.Equal(t, tt.wantKind, transferErr.Kind)
				assert.Equal(t, "Invalid amount", err.Error())
			default:
				require.NoError(t, err)
				assert.Equal(t, "sig123", state.Signature)
			}
		})
	}
}

func TestTransfer_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	state, err := client.Transfer(context.Background(), "x", "1")
	require.Error(t, err)
	assert.Nil(t, state)
	assert.Contains(t, err.Error(), "invalid request body")
}

func TestStateAndWallets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/form":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"recipient":  "abc",
				"amount":     "1",
				"phase":      "idle",
				"connected":  true,
				"can_submit": true,
				"public_key": "pk",
			})
		case "/api/v1/wallets":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"network": "devnet",
				"adapters": []map[string]interface{}{
					{"name": "keypair", "ready": true, "selected": true, "connected": true, "public_key": "pk"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", nil, nil)

	state, err := client.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", state.Recipient)
	assert.True(t, state.CanSubmit)
	assert.Equal(t, "pk", state.PublicKey)

	wallets, err := client.Wallets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "devnet", wallets.Network)
	require.Len(t, wallets.Adapters, 1)
	assert.Equal(t, "keypair", wallets.Adapters[0].Name)
	assert.True(t, wallets.Adapters[0].Connected)
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	assert.NoError(t, client.Health(context.Background()))

	healthy.Store(false)
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestWatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/transfers", r.URL.Path)
		assert.Equal(t, "failed", r.URL.Query().Get("phase"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {\"phase\":\"failed\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: transfer\ndata: {\"phase\":\"failed\",\"kind\":\"user_rejected\",\"error\":\"Transaction rejected by user\"}\n\n")
		fmt.Fprint(w, "event: transfer\ndata: not-json\n\n")
		fmt.Fprint(w, "event: transfer\ndata: {\"phase\":\"failed\",\"kind\":\"confirmation_timeout\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)

	var events []*Event
	err := client.Watch(context.Background(), "failed", func(e *Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 2, "connected frames, comments and malformed data are skipped")
	assert.Equal(t, "user_rejected", events[0].Kind)
	assert.Equal(t, "Transaction rejected by user", events[0].Error)
	assert.Equal(t, "confirmation_timeout", events[1].Kind)
}

func TestWatch_CallbackStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "event: transfer\ndata: {\"phase\":\"success\",\"signature\":\"sig%d\"}\n\n", i)
		}
	}))
	defer server.Close()

	stop := errors.New("stop")
	calls := 0
	err := NewClient(server.URL, nil, nil).Watch(context.Background(), "", func(e *Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWatch_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := NewClient(server.URL, nil, nil).Watch(context.Background(), "", func(*Event) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
