package contract

import (
	"context"

	"github.com/cloudx-io/creditauction/contractapi"
)

// Env describes the transaction a handler runs in. Everything in it is
// supplied by the host, never by the message payload.
type Env struct {
	Block    BlockInfo
	Message  MessageInfo
	Contract contractapi.ContractInfo
}

// BlockInfo is the block the transaction is included in.
type BlockInfo struct {
	Height uint64
	Time   uint64 // unix seconds
}

// MessageInfo identifies the immediate caller. When the caller is a contract
// SenderCodeHash is the hash of its code, otherwise it is empty.
type MessageInfo struct {
	Sender         string
	SenderCodeHash string
}

// Querier answers read-only queries against other contracts.
type Querier interface {
	QueryTokenInfo(ctx context.Context, token contractapi.ContractInfo) (contractapi.TokenInfo, error)
	QueryHistory(ctx context.Context, oracle contractapi.ContractInfo, user string) (contractapi.HistoryResponse, error)
}

// Deps bundles the collaborators every handler needs.
type Deps struct {
	Storage Storage
	Querier Querier
}
