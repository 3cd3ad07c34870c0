package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/brojonat/solxfer/service/transfer"
	"github.com/brojonat/solxfer/service/wallet"
)

const maxRequestBodySize = 1 << 16 // 64KB - a transfer request is two short strings

// formResponse is the JSON view of the transfer form.
type formResponse struct {
	transfer.State
	Connected bool   `json:"connected"`
	CanSubmit bool   `json:"can_submit"`
	PublicKey string `json:"public_key,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

func newFormResponse(form *transfer.Form, wallets *wallet.Registry) formResponse {
	resp := formResponse{
		State:     form.State(),
		Connected: form.Connected(),
		CanSubmit: form.CanSubmit(),
	}
	if pk := wallets.Session().PublicKey(); pk != nil {
		resp.PublicKey = pk.String()
	}
	return resp
}

// handleGetForm returns the current form state.
// GET /api/v1/form
func handleGetForm(form *transfer.Form, wallets *wallet.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, newFormResponse(form, wallets), http.StatusOK)
	})
}

type submitTransferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// handleSubmitTransfer runs one submission and responds with the resulting
// state once it has settled.
// POST /api/v1/transfers
//
// 200 on success, 409 while another submission is in flight, 422 when the
// transfer failed. Failure responses carry the failure kind.
func handleSubmitTransfer(form *transfer.Form, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req submitTransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		state, err := submit(r.Context(), form, req.Recipient, req.Amount)
		resp := formResponse{State: state, Connected: form.Connected(), CanSubmit: state.CanSubmit(form.Connected())}

		switch {
		case errors.Is(err, transfer.ErrBusy):
			logger.DebugContext(r.Context(), "transfer refused, submission in flight")
			resp.Kind = "busy"
			writeJSON(w, resp, http.StatusConflict)
		case err != nil:
			resp.Kind = string(transfer.KindOf(err))
			writeJSON(w, resp, http.StatusUnprocessableEntity)
		default:
			writeJSON(w, resp, http.StatusOK)
		}
	})
}

// submit runs the submission detached from the request: a client that goes
// away must not abandon a transaction that may already be broadcast.
func submit(ctx context.Context, form *transfer.Form, recipient, amount string) (transfer.State, error) {
	return form.Submit(context.WithoutCancel(ctx), recipient, amount)
}

type walletsResponse struct {
	Network  string        `json:"network"`
	Adapters []wallet.Info `json:"adapters"`
}

// handleListWallets lists the configured wallet integrations.
// GET /api/v1/wallets
func handleListWallets(wallets *wallet.Registry, network string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, walletsResponse{Network: network, Adapters: wallets.Adapters()}, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
