package ledger

import (
	"context"

	"github.com/cloudx-io/creditauction/contract"
	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/contractapi/parsing"
)

// AuctionCodeName is the code name of the credit auction.
const AuctionCodeName = "auction"

// AuctionCode runs the credit auction state machine.
type AuctionCode struct{}

func (AuctionCode) Name() string { return AuctionCodeName }

func (AuctionCode) Instantiate(ctx context.Context, call *Call, msg []byte) (*contractapi.Response, error) {
	init, err := parsing.ParseInstantiateMsg(msg)
	if err != nil {
		return nil, err
	}
	return contract.Instantiate(ctx, auctionDeps(call), call.Env, init)
}

func (AuctionCode) Execute(ctx context.Context, call *Call, msg []byte) (*contractapi.Response, error) {
	m, err := parsing.ParseExecuteMsg(msg)
	if err != nil {
		return nil, err
	}
	return contract.Execute(ctx, auctionDeps(call), call.Env, m)
}

func (AuctionCode) Query(ctx context.Context, call *Call, msg []byte) ([]byte, error) {
	m, err := parsing.ParseQueryMsg(msg)
	if err != nil {
		return nil, err
	}
	return contract.Query(ctx, auctionDeps(call), m)
}

func auctionDeps(call *Call) contract.Deps {
	return contract.Deps{Storage: call.Storage, Querier: call.Querier}
}
