package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/brojonat/solxfer/service/transfer"
	"github.com/gagliardetto/solana-go"
)

// ErrUnknownAdapter is returned when selecting an adapter that is not
// registered.
var ErrUnknownAdapter = errors.New("unknown wallet adapter")

// Adapter is a wallet integration that can be connected on demand.
type Adapter interface {
	transfer.Wallet
	Name() string
	// Ready reports whether the integration is available to connect.
	Ready() bool
	Connect(ctx context.Context) error
	Disconnect()
}

// Info describes an adapter for listings.
type Info struct {
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	Selected  bool   `json:"selected"`
	Connected bool   `json:"connected"`
	PublicKey string `json:"public_key,omitempty"`
}

// Registry holds the configured wallet integrations and the one selected
// for the session.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	selected string
	logger   *slog.Logger
}

var _ transfer.WalletSource = (*Registry)(nil)

// NewRegistry creates a registry. The first adapter is selected.
func NewRegistry(logger *slog.Logger, adapters ...Adapter) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		logger:   logger,
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
		if r.selected == "" {
			r.selected = a.Name()
		}
	}
	return r
}

// Select chooses the adapter used by the session. Switching adapters
// disconnects the previous one.
func (r *Registry) Select(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := r.adapters[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAdapter, name)
	}
	if prev, ok := r.adapters[r.selected]; ok && r.selected != name {
		prev.Disconnect()
	}
	r.selected = next.Name()
	return nil
}

// Connect connects the selected adapter.
func (r *Registry) Connect(ctx context.Context) error {
	r.mu.RLock()
	a, ok := r.adapters[r.selected]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: none selected", ErrUnknownAdapter)
	}
	return a.Connect(ctx)
}

// Disconnect disconnects the selected adapter.
func (r *Registry) Disconnect() {
	r.mu.RLock()
	a, ok := r.adapters[r.selected]
	r.mu.RUnlock()
	if ok {
		a.Disconnect()
		r.logger.Info("wallet disconnected", "adapter", a.Name())
	}
}

// AutoConnect connects the selected adapter when it is ready. It is not an
// error for the adapter to be unavailable.
func (r *Registry) AutoConnect(ctx context.Context) {
	r.mu.RLock()
	a, ok := r.adapters[r.selected]
	r.mu.RUnlock()
	if !ok || !a.Ready() || a.Connected() {
		return
	}
	if err := a.Connect(ctx); err != nil {
		r.logger.WarnContext(ctx, "wallet auto-connect failed", "adapter", a.Name(), "error", err)
	}
}

// Session returns the selected wallet. It never returns nil; without a
// selected adapter the session is permanently disconnected.
func (r *Registry) Session() transfer.Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[r.selected]; ok {
		return a
	}
	return disconnected{}
}

// Adapters lists the registered adapters sorted by name.
func (r *Registry) Adapters() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.adapters))
	for name, a := range r.adapters {
		info := Info{
			Name:      name,
			Ready:     a.Ready(),
			Selected:  name == r.selected,
			Connected: a.Connected(),
		}
		if pk := a.PublicKey(); pk != nil {
			info.PublicKey = pk.String()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type disconnected struct{}

func (disconnected) Connected() bool              { return false }
func (disconnected) PublicKey() *solana.PublicKey { return nil }

func (disconnected) SignAndSend(context.Context, *solana.Transaction, transfer.Connection) (solana.Signature, error) {
	return solana.Signature{}, transfer.NewError(transfer.WalletNotConnected, nil)
}
