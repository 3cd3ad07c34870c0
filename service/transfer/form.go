package transfer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Observer receives every transition of a submission run through a Form.
type Observer interface {
	ObserveTransfer(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) ObserveTransfer(ctx context.Context, e Event) {
	f(ctx, e)
}

// WalletSource resolves the wallet session at submit time, so connecting or
// disconnecting the wallet is picked up without rebuilding the form.
type WalletSource interface {
	Session() Wallet
}

// Form owns the transfer form state and allows at most one submission at a
// time.
type Form struct {
	mu        sync.Mutex
	state     State
	wallets   WalletSource
	executor  func(Wallet) Executor
	observers []Observer
	logger    *slog.Logger
}

// NewForm creates a form whose submissions run the network steps in-process
// against conn.
func NewForm(wallets WalletSource, conn Connection, logger *slog.Logger) *Form {
	if logger == nil {
		logger = slog.Default()
	}
	return &Form{
		wallets: wallets,
		executor: func(w Wallet) Executor {
			return DirectExecutor{Wallet: w, Conn: conn}
		},
		logger: logger,
	}
}

// WithExecutor makes the form run the network steps through e instead of
// in-process.
func (f *Form) WithExecutor(e Executor) *Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executor = func(Wallet) Executor { return e }
	return f
}

// Observe registers an observer for submission transitions.
func (f *Form) Observe(o Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, o)
}

// State returns a snapshot of the current state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Connected reports whether the current wallet session is usable.
func (f *Form) Connected() bool {
	w := f.wallets.Session()
	return w != nil && w.Connected() && w.PublicKey() != nil
}

// CanSubmit reports whether the submit control should be enabled.
func (f *Form) CanSubmit() bool {
	return f.State().CanSubmit(f.Connected())
}

// Edit records new field values. Edits are refused while a submission is in
// flight.
func (f *Form) Edit(recipient, amount string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Phase.InFlight() {
		return f.state, ErrBusy
	}
	f.state = f.state.WithRecipient(recipient).WithAmount(amount)
	return f.state, nil
}

// Submit records the field values and runs one submission. It returns
// ErrBusy without touching the state when another submission is in flight;
// otherwise the returned error is the classified failure, if any.
func (f *Form) Submit(ctx context.Context, recipient, amount string) (State, error) {
	f.mu.Lock()
	if f.state.Phase.InFlight() {
		s := f.state
		f.mu.Unlock()
		return s, ErrBusy
	}
	start := f.state.WithRecipient(recipient).WithAmount(amount)
	f.state = start.Begin()
	observers := append([]Observer(nil), f.observers...)
	newExecutor := f.executor
	f.mu.Unlock()

	w := f.wallets.Session()
	started := time.Now()

	final, err := run(ctx, start, w, newExecutor(w), func(e Event) {
		f.mu.Lock()
		f.state = e.State
		f.mu.Unlock()
		for _, o := range observers {
			o.ObserveTransfer(ctx, e)
		}
	})

	if err != nil {
		f.logger.WarnContext(ctx, "transfer failed",
			"kind", KindOf(err),
			"error", err,
			"signature", final.Signature,
			"duration", time.Since(started),
		)
	} else {
		f.logger.InfoContext(ctx, "transfer confirmed",
			"signature", final.Signature,
			"duration", time.Since(started),
		)
	}

	return final, err
}
