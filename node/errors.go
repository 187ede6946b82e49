package node

import (
	"errors"

	"github.com/cloudx-io/creditauction/contract"
	"github.com/cloudx-io/creditauction/contractapi/parsing"
	"github.com/cloudx-io/creditauction/ledger"
)

var (
	// ErrBadRequest is returned for requests missing required fields.
	ErrBadRequest = errors.New("bad request")

	// ErrUnknownRequest is returned for unsupported request types.
	ErrUnknownRequest = errors.New("unknown request type")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{contract.ErrUntrustedToken, "untrusted_token"},
	{contract.ErrUnexpectedAsset, "unexpected_asset"},
	{contract.ErrNotOpen, "not_open"},
	{contract.ErrAlreadyClosed, "already_closed"},
	{contract.ErrNotClosed, "not_closed"},
	{contract.ErrUnauthorized, "unauthorized"},
	{contract.ErrMalformedAmount, "malformed_amount"},
	{contract.ErrNoCreditHistory, "no_credit_history"},
	{contract.ErrInsufficientCredit, "insufficient_credit"},
	{contract.ErrInvalidConfig, "invalid_config"},
	{contract.ErrMalformedAddress, "malformed_address"},
	{ledger.ErrInsufficientFunds, "insufficient_funds"},
	{ledger.ErrUnknownContract, "unknown_contract"},
	{ledger.ErrUnknownCode, "unknown_code"},
	{ledger.ErrCodeHashMismatch, "code_hash_mismatch"},
	{ledger.ErrDepthExceeded, "depth_exceeded"},
	{ledger.ErrTxNotFound, "tx_not_found"},
	{ledger.ErrNotOracleOwner, "unauthorized"},
	{parsing.ErrUnknownMessage, "unknown_message"},
	{ErrUnauthenticated, "unauthenticated"},
	{ErrBadRequest, "bad_request"},
	{ErrUnknownRequest, "unknown_request"},
}

// errorCode maps err to a stable code for clients.
func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
