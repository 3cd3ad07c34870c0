package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrBusy is returned by Transfer when the server is still processing a
// previous submission.
var ErrBusy = errors.New("a transfer is already in flight")

// FormState is the server's view of the transfer form.
type FormState struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Phase     string `json:"phase"`
	Signature string `json:"signature,omitempty"`
	Connected bool   `json:"connected"`
	CanSubmit bool   `json:"can_submit"`
	PublicKey string `json:"public_key,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// TransferError is returned by Transfer when the submission ran and failed.
type TransferError struct {
	Kind  string
	State *FormState
}

func (e *TransferError) Error() string {
	if e.State != nil && e.State.Error != "" {
		return e.State.Error
	}
	return fmt.Sprintf("transfer failed: %s", e.Kind)
}

// WalletInfo describes one wallet integration configured on the server.
type WalletInfo struct {
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	Selected  bool   `json:"selected"`
	Connected bool   `json:"connected"`
	PublicKey string `json:"public_key,omitempty"`
}

// WalletList is the response of the wallets endpoint.
type WalletList struct {
	Network  string       `json:"network"`
	Adapters []WalletInfo `json:"adapters"`
}

// Event is one transfer phase transition streamed by the server.
type Event struct {
	Phase       string    `json:"phase"`
	Status      string    `json:"status,omitempty"`
	Error       string    `json:"error,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Recipient   string    `json:"recipient,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	FromAddress string    `json:"from_address,omitempty"`
	ToAddress   string    `json:"to_address,omitempty"`
	Lamports    uint64    `json:"lamports,omitempty"`
	SOL         string    `json:"sol,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Client is the HTTP client for the transfer service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new transfer service client. Transfers block until
// the transaction settles, so the default HTTP client allows a generous
// timeout.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Transfer submits a transfer and waits for it to settle. A failed transfer
// returns the final state together with a *TransferError.
func (c *Client) Transfer(ctx context.Context, recipient, amount string) (*FormState, error) {
	body, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"amount":    amount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict, http.StatusUnprocessableEntity:
	default:
		return nil, c.parseErrorResponse(resp)
	}

	var state FormState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return &state, ErrBusy
	case http.StatusUnprocessableEntity:
		c.logger.DebugContext(ctx, "transfer failed", "kind", state.Kind, "error", state.Error)
		return &state, &TransferError{Kind: state.Kind, State: &state}
	}

	c.logger.DebugContext(ctx, "transfer succeeded", "signature", state.Signature)
	return &state, nil
}

// State retrieves the current form state.
func (c *Client) State(ctx context.Context) (*FormState, error) {
	var state FormState
	if err := c.getJSON(ctx, "/api/v1/form", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Wallets lists the wallet integrations configured on the server.
func (c *Client) Wallets(ctx context.Context) (*WalletList, error) {
	var list WalletList
	if err := c.getJSON(ctx, "/api/v1/wallets", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

// Watch streams transfer events until ctx is done, the server closes the
// stream, or fn returns an error. An empty phase streams every transition.
// The stream ignores the client's timeout.
func (c *Client) Watch(ctx context.Context, phase string, fn func(*Event) error) error {
	u := c.baseURL + "/api/v1/stream/transfers"
	if phase != "" {
		u += "?phase=" + url.QueryEscape(phase)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	streaming := *c.httpClient
	streaming.Timeout = 0
	resp, err := streaming.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var eventType, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventType == "transfer" && data != "" {
				var event Event
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					c.logger.WarnContext(ctx, "failed to decode transfer event", "error", err)
				} else if err := fn(&event); err != nil {
					return err
				}
			}
			eventType, data = "", ""
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
