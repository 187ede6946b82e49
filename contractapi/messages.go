package contractapi

import "github.com/cloudx-io/creditauction/core"

// Message is an outbound call a contract emits for the host to dispatch after
// the handler returns. The set of implementations is closed.
type Message interface {
	// Target is the contract the message is addressed to.
	Target() ContractInfo
	message()
}

// TransferMsg moves tokens held by the emitting contract to Recipient.
// It does not invoke a receive hook.
type TransferMsg struct {
	Token     ContractInfo `json:"token"`
	Recipient string       `json:"recipient"`
	Amount    core.Amount  `json:"amount"`
}

// RegisterReceiveMsg registers the emitting contract's receive hook with a
// token contract.
type RegisterReceiveMsg struct {
	Token    ContractInfo `json:"token"`
	CodeHash string       `json:"code_hash"`
}

// ReceiveCallbackMsg invokes the receive hook on Contract. Only token
// contracts emit it, as part of a send.
type ReceiveCallbackMsg struct {
	Contract ContractInfo `json:"contract"`
	Receive  Receive      `json:"receive"`
}

func (m TransferMsg) Target() ContractInfo        { return m.Token }
func (m RegisterReceiveMsg) Target() ContractInfo { return m.Token }
func (m ReceiveCallbackMsg) Target() ContractInfo { return m.Contract }

func (TransferMsg) message()        {}
func (RegisterReceiveMsg) message() {}
func (ReceiveCallbackMsg) message() {}

// Response is what a contract handler returns to the host.
type Response struct {
	Messages []Message
	Data     []byte
}

// GetHistory is the oracle query for a user's credit history.
type GetHistory struct {
	User string `json:"user"`
}

// HistoryResponse is the oracle's answer to GetHistory.
type HistoryResponse struct {
	History *core.History `json:"history,omitempty"`
	Message string        `json:"message"`
}

// AddHistory appends or replaces a user's credit history on the oracle.
type AddHistory struct {
	User    string       `json:"user"`
	History core.History `json:"history"`
}
