package contract

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/contractapi/parsing"
	"github.com/cloudx-io/creditauction/core"
)

var log = logging.Logger("auction/contract")

// Instantiate creates the auction state for a single sale and registers the
// auction's receive hook with both tokens. The instantiating sender becomes the
// seller and must have a credit history on the oracle.
func Instantiate(ctx context.Context, deps Deps, env Env, msg contractapi.InstantiateMsg) (*contractapi.Response, error) {
	if err := validateInstantiate(msg); err != nil {
		return nil, err
	}

	seller := env.Message.Sender
	if err := core.ValidateAddress(seller); err != nil {
		return nil, fmt.Errorf("seller: %w", err)
	}
	perfect := core.PerfectProposal(msg.Payment)

	history, err := deps.Querier.QueryHistory(ctx, msg.OracleContract, seller)
	if err != nil {
		return nil, fmt.Errorf("query seller history: %w", err)
	}
	if history.History == nil {
		return nil, fmt.Errorf("seller %s: %w", seller, ErrNoCreditHistory)
	}
	creditScore := core.CreditScore(*history.History, perfect)
	if creditScore == 0 {
		return nil, fmt.Errorf("seller %s: %w", seller, ErrInsufficientCredit)
	}

	sellInfo, err := deps.Querier.QueryTokenInfo(ctx, msg.SellContract)
	if err != nil {
		return nil, fmt.Errorf("query sell token info: %w", err)
	}
	bidInfo, err := deps.Querier.QueryTokenInfo(ctx, msg.BidContract)
	if err != nil {
		return nil, fmt.Errorf("query bid token info: %w", err)
	}

	st := &State{
		Status:         Open,
		Seller:         seller,
		AuctionAddress: env.Contract.Address,
		SellToken:      TokenRecord{Contract: msg.SellContract, Info: sellInfo},
		BidToken:       TokenRecord{Contract: msg.BidContract, Info: bidInfo},
		Oracle:         msg.OracleContract,
		Expected:       msg.Expected,
		Payment:        msg.Payment,
		Description:    msg.Description,
		CreditScore:    creditScore,
		Score:          creditScore,
		Bidders:        []string{},
	}
	if err := saveState(ctx, deps.Storage, st); err != nil {
		return nil, err
	}

	log.Debugf("auction %s instantiated by %s: expected=%s payment=%s credit_score=%d",
		st.AuctionAddress, seller, st.Expected, st.Payment, creditScore)

	return &contractapi.Response{
		Messages: []contractapi.Message{
			contractapi.RegisterReceiveMsg{Token: msg.SellContract, CodeHash: env.Contract.CodeHash},
			contractapi.RegisterReceiveMsg{Token: msg.BidContract, CodeHash: env.Contract.CodeHash},
		},
	}, nil
}

func validateInstantiate(msg contractapi.InstantiateMsg) error {
	switch {
	case msg.SellContract.Address == "" || msg.BidContract.Address == "" || msg.OracleContract.Address == "":
		return fmt.Errorf("%w: token and oracle addresses are required", ErrInvalidConfig)
	case core.ValidateAddress(msg.SellContract.Address) != nil ||
		core.ValidateAddress(msg.BidContract.Address) != nil ||
		core.ValidateAddress(msg.OracleContract.Address) != nil:
		return fmt.Errorf("%w: token and oracle addresses must be well formed", ErrInvalidConfig)
	case msg.SellContract.Address == msg.BidContract.Address:
		return fmt.Errorf("%w: sell contract and bid contract must be different", ErrInvalidConfig)
	case msg.Expected == 0:
		return fmt.Errorf("%w: expected must be greater than 0", ErrInvalidConfig)
	case msg.Payment <= msg.Expected:
		return fmt.Errorf("%w: payment must be greater than expected", ErrInvalidConfig)
	}
	return nil
}

// Execute dispatches a state-changing message. The returned Data is the
// padded answer envelope.
func Execute(ctx context.Context, deps Deps, env Env, msg contractapi.ExecuteMsg) (*contractapi.Response, error) {
	st, err := LoadState(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}

	var (
		answer   contractapi.Answer
		messages []contractapi.Message
	)
	switch m := msg.(type) {
	case contractapi.Receive:
		answer, messages, err = receive(ctx, deps, env, st, m)
	case contractapi.ViewBid:
		if err = core.ValidateAddress(env.Message.Sender); err == nil {
			answer, err = viewBid(ctx, deps.Storage, env.Message.Sender)
		}
	case contractapi.Finalize:
		answer, messages, err = finalize(ctx, deps.Storage, env, st, m.OnlyIfBids)
	case contractapi.ReturnAll:
		answer, messages, err = returnAll(ctx, deps.Storage, st)
	default:
		return nil, fmt.Errorf("%w: %T", parsing.ErrUnknownMessage, msg)
	}
	if err != nil {
		return nil, err
	}

	data, err := parsing.EncodeAnswer(answer)
	if err != nil {
		return nil, err
	}
	return &contractapi.Response{Messages: messages, Data: data}, nil
}

// Query answers a read-only query with a padded result envelope.
func Query(ctx context.Context, deps Deps, msg contractapi.QueryMsg) ([]byte, error) {
	st, err := LoadState(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}

	var answer contractapi.Answer
	switch msg.(type) {
	case contractapi.AuctionInfo:
		answer = auctionInfo(st)
	default:
		return nil, fmt.Errorf("%w: %T", parsing.ErrUnknownMessage, msg)
	}
	return parsing.EncodeAnswer(answer)
}
