package ledger

import "errors"

var (
	// ErrUnknownContract indicates a message or query addressed to an address
	// with no contract.
	ErrUnknownContract = errors.New("unknown contract")

	// ErrUnknownCode indicates an instantiate for code that is not registered.
	ErrUnknownCode = errors.New("unknown code")

	// ErrCodeHashMismatch indicates a message whose target code hash does not
	// match the code deployed at the target address.
	ErrCodeHashMismatch = errors.New("code hash mismatch")

	// ErrInsufficientFunds indicates a token transfer larger than the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDepthExceeded indicates emitted messages nested deeper than maxDepth.
	ErrDepthExceeded = errors.New("message depth exceeded")

	// ErrTxNotFound indicates the requested transaction was not found.
	ErrTxNotFound = errors.New("tx not found")

	// ErrUnsupported indicates a message the target contract does not handle.
	ErrUnsupported = errors.New("unsupported message")
)
