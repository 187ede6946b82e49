package node

import (
	"encoding/json"

	"github.com/cloudx-io/creditauction/ledger"
)

// Request types.
const (
	RequestPing        = "ping"
	RequestKey         = "key"
	RequestInstantiate = "instantiate"
	RequestExecute     = "execute"
	RequestQuery       = "query"
	RequestTx          = "tx"
)

// Response types.
const (
	ResponsePong   = "pong"
	ResponseResult = "result"
	ResponseError  = "error"
)

// Request is a single daemon request. Instantiate and execute carry a base64
// COSE_Sign1 Call; queries carry Contract and the raw contract Msg.
type Request struct {
	Type     string          `json:"type"`
	Call     string          `json:"call,omitempty"`
	Contract string          `json:"contract,omitempty"`
	Msg      json.RawMessage `json:"msg,omitempty"`
	TxID     string          `json:"tx_id,omitempty"`
}

// Response answers a Request. Answer is the padded contract answer, Receipt a
// base64 COSE_Sign1 settlement receipt for executed transactions.
type Response struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`

	TxID     string `json:"tx_id,omitempty"`
	Height   uint64 `json:"height,omitempty"`
	Contract string `json:"contract,omitempty"`
	Answer   string `json:"answer,omitempty"`
	Receipt  string `json:"receipt,omitempty"`

	Tx *ledger.TxRecord `json:"tx,omitempty"`

	PublicKey   string `json:"public_key,omitempty"`
	KeyID       string `json:"key_id,omitempty"`
	Attestation string `json:"attestation,omitempty"`
}
