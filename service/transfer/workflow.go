package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Connection is the subset of the RPC connection the workflow needs.
type Connection interface {
	// LatestBlockhash returns a recent blockhash to bind the transaction to.
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	// SendTransaction relays a signed transaction to the network.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// ConfirmTransaction blocks until the signature reaches the connection's
	// commitment level.
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
}

// Wallet is the capability exposed by a connected wallet session. The
// workflow never holds signing material; it only calls SignAndSend.
type Wallet interface {
	Connected() bool
	// PublicKey returns nil when no identity is available.
	PublicKey() *solana.PublicKey
	SignAndSend(ctx context.Context, tx *solana.Transaction, conn Connection) (solana.Signature, error)
}

// Plan is a validated transfer request.
type Plan struct {
	From     solana.PublicKey `json:"from"`
	To       solana.PublicKey `json:"to"`
	Lamports uint64           `json:"lamports"`
}

// Validate checks the preconditions in order: wallet, recipient, amount.
// The first failure is returned and nothing else is evaluated.
func Validate(recipient, amount string, w Wallet) (Plan, error) {
	if w == nil || !w.Connected() || w.PublicKey() == nil {
		return Plan{}, NewError(WalletNotConnected, nil)
	}
	to, err := ParseRecipient(recipient)
	if err != nil {
		return Plan{}, err
	}
	lamports, err := ParseAmount(amount)
	if err != nil {
		return Plan{}, err
	}
	return Plan{From: *w.PublicKey(), To: to, Lamports: lamports}, nil
}

// Instruction returns the single system-program transfer instruction.
func (p Plan) Instruction() solana.Instruction {
	return system.NewTransferInstruction(p.Lamports, p.From, p.To).Build()
}

// Transaction binds the transfer to a recent blockhash with the sender as
// fee payer.
func (p Plan) Transaction(blockhash solana.Hash) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{p.Instruction()},
		blockhash,
		solana.TransactionPayer(p.From),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

// Executor runs the network steps of a transfer: freshness binding,
// sign-and-broadcast and confirmation. progress is called when the
// submission moves to PhaseConfirming; it may be called from another
// goroutine. A signature is returned whenever the transaction was
// broadcast, even if confirmation failed.
type Executor interface {
	Execute(ctx context.Context, p Plan, progress func(Phase)) (solana.Signature, error)
}

// DirectExecutor runs the network steps in the calling goroutine.
type DirectExecutor struct {
	Wallet Wallet
	Conn   Connection
}

func (e DirectExecutor) Execute(ctx context.Context, p Plan, progress func(Phase)) (solana.Signature, error) {
	blockhash, err := e.Conn.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, NewError(NetworkUnavailable, fmt.Errorf("failed to get latest blockhash: %w", err))
	}

	tx, err := p.Transaction(blockhash)
	if err != nil {
		return solana.Signature{}, NewError(NetworkUnavailable, err)
	}

	sig, err := e.Wallet.SignAndSend(ctx, tx, e.Conn)
	if err != nil {
		return solana.Signature{}, classifySend(err)
	}

	if progress != nil {
		progress(PhaseConfirming)
	}

	if err := e.Conn.ConfirmTransaction(ctx, sig); err != nil {
		return sig, classifyConfirm(err)
	}
	return sig, nil
}

func classifySend(err error) error {
	if errors.Is(err, ErrUserRejected) {
		return NewError(UserRejected, err)
	}
	return NewError(NetworkUnavailable, err)
}

func classifyConfirm(err error) error {
	switch {
	case errors.Is(err, ErrConfirmationTimeout), errors.Is(err, context.DeadlineExceeded):
		return NewError(ConfirmationTimeout, err)
	case errors.Is(err, ErrTransactionFailed):
		return NewError(TransactionFailed, err)
	}
	return NewError(NetworkUnavailable, err)
}

// Event describes one state transition of a submission.
type Event struct {
	State State
	// Plan is the zero value until validation has passed.
	Plan Plan
	Err  error
	// Elapsed is set on the terminal event only.
	Elapsed time.Duration
}

// Option configures Submit.
type Option func(*submitOptions)

type submitOptions struct {
	executor Executor
	emit     func(Event)
}

// WithExecutor replaces the in-process executor.
func WithExecutor(e Executor) Option {
	return func(o *submitOptions) { o.executor = e }
}

// WithEvents registers a callback for every transition of the submission.
func WithEvents(fn func(Event)) Option {
	return func(o *submitOptions) { o.emit = fn }
}

// Submit runs one complete submission starting from s and returns the
// resulting state. It never returns an in-flight state: the result is
// always PhaseSuccess or PhaseFailed.
func Submit(ctx context.Context, s State, w Wallet, conn Connection, opts ...Option) State {
	o := submitOptions{executor: DirectExecutor{Wallet: w, Conn: conn}}
	for _, opt := range opts {
		opt(&o)
	}
	final, _ := run(ctx, s, w, o.executor, o.emit)
	return final
}

func run(ctx context.Context, s State, w Wallet, exec Executor, emit func(Event)) (State, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	begun := time.Now()
	s = s.Begin()
	emit(Event{State: s})

	plan, err := Validate(s.Recipient, s.Amount, w)
	if err != nil {
		s = s.Fail(err)
		emit(Event{State: s, Err: err, Elapsed: time.Since(begun)})
		return s, err
	}

	s = s.Advance(PhaseSubmitting)
	emit(Event{State: s, Plan: plan})

	sig, err := exec.Execute(ctx, plan, func(p Phase) {
		emit(Event{State: s.Advance(p), Plan: plan})
	})
	if sig != (solana.Signature{}) {
		s.Signature = sig.String()
	}
	if err != nil {
		err = NewError(KindOf(err), err)
		s = s.Fail(err)
		emit(Event{State: s, Plan: plan, Err: err, Elapsed: time.Since(begun)})
		return s, err
	}

	s = s.Succeed(sig.String())
	emit(Event{State: s, Plan: plan, Elapsed: time.Since(begun)})
	return s, nil
}
