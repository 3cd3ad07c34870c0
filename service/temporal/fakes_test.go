package temporal

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/brojonat/solxfer/service/transfer"
	solanago "github.com/gagliardetto/solana-go"
)

const testRecipient = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	mu           sync.Mutex
	blockhash    solanago.Hash
	blockhashErr error
	sendErr      error
	confirmErr   error
	sent         int
	confirmed    []solanago.Signature
}

func (c *fakeConn) LatestBlockhash(ctx context.Context) (solanago.Hash, error) {
	return c.blockhash, c.blockhashErr
}

func (c *fakeConn) SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return solanago.Signature{}, c.sendErr
	}
	c.sent++
	return tx.Signatures[0], nil
}

func (c *fakeConn) ConfirmTransaction(ctx context.Context, sig solanago.Signature) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = append(c.confirmed, sig)
	return c.confirmErr
}

type fakeWallet struct {
	key       solanago.PrivateKey
	connected bool
	rejectErr error
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{key: solanago.NewWallet().PrivateKey, connected: true}
}

func (w *fakeWallet) Connected() bool { return w.connected }

func (w *fakeWallet) PublicKey() *solanago.PublicKey {
	if !w.connected {
		return nil
	}
	pk := w.key.PublicKey()
	return &pk
}

func (w *fakeWallet) SignAndSend(ctx context.Context, tx *solanago.Transaction, conn transfer.Connection) (solanago.Signature, error) {
	if w.rejectErr != nil {
		return solanago.Signature{}, w.rejectErr
	}
	if _, err := tx.Sign(func(pk solanago.PublicKey) *solanago.PrivateKey {
		if pk.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	}); err != nil {
		return solanago.Signature{}, err
	}
	return conn.SendTransaction(ctx, tx)
}

func (w *fakeWallet) Session() transfer.Wallet { return w }
