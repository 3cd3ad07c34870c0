package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/brojonat/solxfer/service/transfer"
	"github.com/gagliardetto/solana-go"
)

// Approver is asked before a transaction is signed. Returning false declines
// the request.
type Approver interface {
	Approve(ctx context.Context, req Approval) (bool, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req Approval) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req Approval) (bool, error) {
	return f(ctx, req)
}

// AutoApprove approves every request.
var AutoApprove = ApproverFunc(func(context.Context, Approval) (bool, error) { return true, nil })

// Approval describes the transaction a wallet is about to sign.
type Approval struct {
	Adapter     string
	Signer      solana.PublicKey
	Transaction *solana.Transaction
}

// KeypairAdapter is a wallet backed by a solana-keygen JSON keypair file.
// The key is only read on Connect and dropped on Disconnect.
type KeypairAdapter struct {
	name     string
	path     string
	approver Approver
	logger   *slog.Logger

	mu  sync.RWMutex
	key *solana.PrivateKey
}

var _ Adapter = (*KeypairAdapter)(nil)

// NewKeypairAdapter creates an adapter for the keypair file at path. A
// leading "~/" is expanded to the user's home directory. A nil approver
// approves everything.
func NewKeypairAdapter(name, path string, approver Approver, logger *slog.Logger) *KeypairAdapter {
	if approver == nil {
		approver = AutoApprove
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeypairAdapter{
		name:     name,
		path:     expandHome(path),
		approver: approver,
		logger:   logger,
	}
}

func (a *KeypairAdapter) Name() string { return a.name }

// Path returns the keypair file location.
func (a *KeypairAdapter) Path() string { return a.path }

// Ready reports whether the keypair file exists.
func (a *KeypairAdapter) Ready() bool {
	info, err := os.Stat(a.path)
	return err == nil && !info.IsDir()
}

// Connect loads the keypair.
func (a *KeypairAdapter) Connect(ctx context.Context) error {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(a.path)
	if err != nil {
		return fmt.Errorf("failed to load keypair %s: %w", a.path, err)
	}

	a.mu.Lock()
	a.key = &key
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "wallet connected",
		"adapter", a.name,
		"public_key", key.PublicKey().String(),
	)
	return nil
}

// Disconnect forgets the loaded key.
func (a *KeypairAdapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.key = nil
}

func (a *KeypairAdapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.key != nil
}

func (a *KeypairAdapter) PublicKey() *solana.PublicKey {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.key == nil {
		return nil
	}
	pk := a.key.PublicKey()
	return &pk
}

// SignAndSend asks the approver, signs tx with the loaded key and relays it
// through conn.
func (a *KeypairAdapter) SignAndSend(ctx context.Context, tx *solana.Transaction, conn transfer.Connection) (solana.Signature, error) {
	a.mu.RLock()
	key := a.key
	a.mu.RUnlock()
	if key == nil {
		return solana.Signature{}, transfer.NewError(transfer.WalletNotConnected, nil)
	}

	ok, err := a.approver.Approve(ctx, Approval{
		Adapter:     a.name,
		Signer:      key.PublicKey(),
		Transaction: tx,
	})
	if err != nil {
		if errors.Is(err, transfer.ErrUserRejected) {
			return solana.Signature{}, err
		}
		return solana.Signature{}, fmt.Errorf("%w: %v", transfer.ErrUserRejected, err)
	}
	if !ok {
		a.logger.InfoContext(ctx, "signature request declined", "adapter", a.name)
		return solana.Signature{}, transfer.ErrUserRejected
	}

	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(key.PublicKey()) {
			return key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return conn.SendTransaction(ctx, tx)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
