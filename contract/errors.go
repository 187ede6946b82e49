package contract

import (
	"errors"

	"github.com/cloudx-io/creditauction/core"
)

// Errors returned by the auction handlers. Any of them aborts the transaction.
var (
	// ErrUntrustedToken is returned when the receive hook is invoked by a
	// contract that is not one of the auction's tokens.
	ErrUntrustedToken = errors.New("untrusted token")

	// ErrUnexpectedAsset is returned when a genuine token contract of an asset
	// that does not belong to this auction invokes the receive hook.
	ErrUnexpectedAsset = errors.New("unexpected asset")

	ErrNotOpen       = errors.New("auction is not open")
	ErrAlreadyClosed = errors.New("auction has already closed")
	ErrNotClosed     = errors.New("auction has not closed")
	ErrUnauthorized  = errors.New("unauthorized")

	ErrMalformedAmount    = core.ErrMalformedAmount
	ErrMalformedAddress   = core.ErrMalformedAddress
	ErrNoCreditHistory    = errors.New("no credit history to calculate score")
	ErrInsufficientCredit = errors.New("credit score too low")
	ErrInvalidConfig      = errors.New("invalid auction config")
)
