package transfer

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

const testRecipient = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// fakeConn is a deterministic Connection. Calls are counted so tests can
// assert which network steps ran.
type fakeConn struct {
	mu sync.Mutex

	blockhash    solana.Hash
	blockhashErr error
	sendErr      error
	confirmErr   error

	blockhashCalls int
	sendCalls      int
	confirmCalls   int
	sent           []*solana.Transaction
	confirmed      []solana.Signature

	// confirmHook runs inside ConfirmTransaction before it returns.
	confirmHook func()
}

func (c *fakeConn) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockhashCalls++
	if c.blockhashErr != nil {
		return solana.Hash{}, c.blockhashErr
	}
	return c.blockhash, nil
}

func (c *fakeConn) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCalls++
	if c.sendErr != nil {
		return solana.Signature{}, c.sendErr
	}
	c.sent = append(c.sent, tx)
	if len(tx.Signatures) == 0 {
		return solana.Signature{7}, nil
	}
	return tx.Signatures[0], nil
}

func (c *fakeConn) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	if c.confirmHook != nil {
		c.confirmHook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmCalls++
	c.confirmed = append(c.confirmed, sig)
	return c.confirmErr
}

// fakeWallet signs with a real key so the produced transactions are valid.
type fakeWallet struct {
	key       solana.PrivateKey
	connected bool
	rejectErr error

	signCalls int
}

func newFakeWallet(connected bool) *fakeWallet {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(err)
	}
	return &fakeWallet{key: key, connected: connected}
}

func (w *fakeWallet) Connected() bool { return w.connected }

func (w *fakeWallet) PublicKey() *solana.PublicKey {
	if !w.connected {
		return nil
	}
	pk := w.key.PublicKey()
	return &pk
}

func (w *fakeWallet) SignAndSend(ctx context.Context, tx *solana.Transaction, conn Connection) (solana.Signature, error) {
	w.signCalls++
	if w.rejectErr != nil {
		return solana.Signature{}, w.rejectErr
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, err
	}
	return conn.SendTransaction(ctx, tx)
}

// staticWallets is a WalletSource that always returns the same session.
type staticWallets struct {
	w Wallet
}

func (s staticWallets) Session() Wallet { return s.w }
