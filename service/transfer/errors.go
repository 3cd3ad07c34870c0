package transfer

import (
	"context"
	"errors"
)

// Kind classifies why a transfer attempt failed. Every kind is terminal for
// the attempt; nothing is retried automatically.
type Kind string

const (
	WalletNotConnected  Kind = "wallet_not_connected"
	InvalidRecipient    Kind = "invalid_recipient"
	InvalidAmount       Kind = "invalid_amount"
	NetworkUnavailable  Kind = "network_unavailable"
	UserRejected        Kind = "user_rejected"
	ConfirmationTimeout Kind = "confirmation_timeout"
	// TransactionFailed means the network confirmed the signature but the
	// transaction itself errored during execution.
	TransactionFailed Kind = "transaction_failed"
)

var kindMessages = map[Kind]string{
	WalletNotConnected:  "Wallet not connected",
	InvalidRecipient:    "Invalid recipient address",
	InvalidAmount:       "Invalid amount",
	NetworkUnavailable:  "Network unavailable",
	UserRejected:        "Transaction rejected by wallet",
	ConfirmationTimeout: "Transaction was not confirmed in time",
	TransactionFailed:   "Transaction failed",
}

// Message returns the human-readable message shown on the form's error line.
func (k Kind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return string(k)
}

// Known reports whether k is one of the defined kinds.
func (k Kind) Known() bool {
	_, ok := kindMessages[k]
	return ok
}

// Sentinel errors returned by wallet and connection implementations. The
// workflow maps them onto kinds.
var (
	ErrUserRejected        = errors.New("user rejected the request")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrTransactionFailed   = errors.New("transaction failed on chain")
	ErrBusy                = errors.New("a transfer is already in progress")
)

// Error is a classified transfer failure.
type Error struct {
	Kind Kind
	Err  error
}

// NewError returns err classified as kind. An err that is already classified
// keeps its original kind.
func NewError(kind Kind, err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Message()
	}
	return e.Kind.Message() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Unclassified errors are reported as
// NetworkUnavailable since every unclassified step failure is an RPC failure.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrUserRejected):
		return UserRejected
	case errors.Is(err, ErrConfirmationTimeout), errors.Is(err, context.DeadlineExceeded):
		return ConfirmationTimeout
	case errors.Is(err, ErrTransactionFailed):
		return TransactionFailed
	}
	return NetworkUnavailable
}
