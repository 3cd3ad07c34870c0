package transfer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// LamportDecimals is the number of decimal places between SOL and lamports.
const LamportDecimals = 9

var maxLamports = decimal.RequireFromString("18446744073709551615")

// maxIntegerDigits bounds the magnitude checked before any rescaling. Exponent
// notation ("1e2000000000") would otherwise make the comparison against
// maxLamports allocate a power of ten as large as the exponent.
const maxIntegerDigits = 20

// ParseRecipient parses a base58 encoded Solana public key.
func ParseRecipient(text string) (solana.PublicKey, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return solana.PublicKey{}, NewError(InvalidRecipient, fmt.Errorf("address is required"))
	}

	raw, err := base58.Decode(text)
	if err != nil {
		return solana.PublicKey{}, NewError(InvalidRecipient, fmt.Errorf("not base58: %w", err))
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, NewError(InvalidRecipient,
			fmt.Errorf("decodes to %d bytes, want %d", len(raw), solana.PublicKeyLength))
	}

	return solana.PublicKeyFromBytes(raw), nil
}

// ParseAmount converts a SOL amount such as "0.5" into lamports using
// fixed-point arithmetic. The amount must be strictly positive and must not
// be finer than one lamport.
func ParseAmount(text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, NewError(InvalidAmount, fmt.Errorf("amount is required"))
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return 0, NewError(InvalidAmount, fmt.Errorf("%q is not a number", text))
	}
	if !amount.IsPositive() {
		return 0, NewError(InvalidAmount, fmt.Errorf("amount must be greater than zero"))
	}

	if integerDigits(amount) > maxIntegerDigits {
		return 0, NewError(InvalidAmount, fmt.Errorf("amount is too large"))
	}

	lamports := amount.Shift(LamportDecimals)
	if !lamports.IsInteger() {
		return 0, NewError(InvalidAmount, fmt.Errorf("amount has more than %d decimal places", LamportDecimals))
	}
	if lamports.GreaterThan(maxLamports) {
		return 0, NewError(InvalidAmount, fmt.Errorf("amount is too large"))
	}

	return lamports.BigInt().Uint64(), nil
}

// integerDigits returns the number of digits left of the decimal point of a
// positive amount, or a negative count for amounts below one.
func integerDigits(amount decimal.Decimal) int64 {
	return int64(len(amount.Coefficient().String())) + int64(amount.Exponent())
}

// FormatLamports renders lamports as a SOL amount without trailing zeros.
func FormatLamports(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -LamportDecimals).String()
}
