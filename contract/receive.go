package contract

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

type asset int

const (
	sellAsset asset = iota
	bidAsset
)

// verifyCaller decides which of the auction's assets a receive hook call
// carries. Only the host-supplied caller identity is trusted.
func verifyCaller(st *State, caller contractapi.ContractInfo) (asset, error) {
	sell, bid := st.SellToken.Contract, st.BidToken.Contract

	switch caller.Address {
	case sell.Address:
		if caller.CodeHash != sell.CodeHash {
			return 0, fmt.Errorf("%w: %s code hash mismatch", ErrUntrustedToken, caller.Address)
		}
		return sellAsset, nil
	case bid.Address:
		if caller.CodeHash != bid.CodeHash {
			return 0, fmt.Errorf("%w: %s code hash mismatch", ErrUntrustedToken, caller.Address)
		}
		return bidAsset, nil
	}

	if caller.CodeHash != "" && (caller.CodeHash == sell.CodeHash || caller.CodeHash == bid.CodeHash) {
		return 0, fmt.Errorf("%w: %s is not a token in this auction", ErrUnexpectedAsset, caller.Address)
	}
	return 0, fmt.Errorf("%w: address %s is not a token in this auction", ErrUntrustedToken, caller.Address)
}

func receive(ctx context.Context, deps Deps, env Env, st *State, msg contractapi.Receive) (contractapi.Answer, []contractapi.Message, error) {
	caller := contractapi.ContractInfo{Address: env.Message.Sender, CodeHash: env.Message.SenderCodeHash}
	kind, err := verifyCaller(st, caller)
	if err != nil {
		log.Warnf("rejected receive from %s: %v", caller.Address, err)
		return nil, nil, err
	}
	if st.Status != Open {
		return nil, nil, fmt.Errorf("%w: tokens have been returned", ErrNotOpen)
	}
	if err := core.ValidateAddress(msg.From); err != nil {
		log.Warnf("rejected receive via %s: %v", caller.Address, err)
		return nil, nil, err
	}

	if kind == sellAsset {
		return consign(ctx, deps.Storage, st, msg.From, msg.Amount)
	}
	return placeBid(ctx, deps, env, st, msg.From, msg.Amount)
}

func consign(ctx context.Context, store Storage, st *State, owner string, amount core.Amount) (contractapi.Answer, []contractapi.Message, error) {
	if owner != st.Seller {
		return nil, nil, fmt.Errorf("%w: only the auction creator can consign tokens for sale", ErrUnauthorized)
	}

	room := st.Expected - st.ConsignedAmount
	accepted, excess := amount, core.Amount(0)
	if amount > room {
		accepted, excess = room, amount-room
	}
	st.ConsignedAmount += accepted

	answer := contractapi.ConsignAnswer{
		AmountConsigned: contractapi.AmountPtr(st.ConsignedAmount),
	}
	var messages []contractapi.Message
	if st.FullyConsigned() {
		answer.Status = contractapi.Success
		answer.Message = "Tokens to be sold have been consigned to the auction"
		if excess > 0 {
			answer.AmountReturned = contractapi.AmountPtr(excess)
			answer.Message += ". Excess tokens have been returned"
			messages = append(messages, contractapi.TransferMsg{
				Token:     st.SellToken.Contract,
				Recipient: owner,
				Amount:    excess,
			})
		}
	} else {
		answer.Status = contractapi.Failure
		answer.Message = "You have not consigned the full amount to be sold. You need to consign additional tokens"
		answer.AmountNeeded = contractapi.AmountPtr(st.Expected - st.ConsignedAmount)
	}

	if err := saveState(ctx, store, st); err != nil {
		return nil, nil, err
	}
	log.Debugf("consigned %s to %s (total %s of %s)", accepted, st.AuctionAddress, st.ConsignedAmount, st.Expected)
	return answer, messages, nil
}

func placeBid(ctx context.Context, deps Deps, env Env, st *State, bidder string, amount core.Amount) (contractapi.Answer, []contractapi.Message, error) {
	if amount == 0 {
		return nil, nil, fmt.Errorf("%w: bid must be greater than 0", ErrMalformedAmount)
	}

	credit, err := bidderCredit(ctx, deps.Querier, st, bidder)
	if err != nil {
		return nil, nil, err
	}

	prior, err := LoadBid(ctx, deps.Storage, bidder)
	if err != nil {
		return nil, nil, err
	}

	answer := contractapi.BidAnswer{
		Status:    contractapi.Success,
		Message:   "Bid accepted",
		AmountBid: contractapi.AmountPtr(amount),
	}
	var messages []contractapi.Message
	if prior != nil {
		answer.PreviousBid = contractapi.AmountPtr(prior.Amount)
		answer.AmountReturned = contractapi.AmountPtr(prior.Amount)
		answer.Message += ". Previously bid tokens have been returned"
		messages = append(messages, contractapi.TransferMsg{
			Token:     st.BidToken.Contract,
			Recipient: bidder,
			Amount:    prior.Amount,
		})
	}

	rec := BidRecord{Amount: amount, Credit: credit, Timestamp: env.Block.Time}
	if err := saveBid(ctx, deps.Storage, bidder, rec); err != nil {
		return nil, nil, err
	}
	st.addBidder(bidder)

	bids, err := activeBids(ctx, deps.Storage, st)
	if err != nil {
		return nil, nil, err
	}
	refreshStats(st, bids)
	if err := saveState(ctx, deps.Storage, st); err != nil {
		return nil, nil, err
	}

	log.Debugf("bid from %s on %s: replaced=%t bids=%d score=%d", bidder, st.AuctionAddress, prior != nil, len(bids), st.Score)
	return answer, messages, nil
}

// bidderCredit scores the bidder's oracle history against the auction's
// payment target. Bidders without history score 0.
func bidderCredit(ctx context.Context, querier Querier, st *State, bidder string) (uint64, error) {
	resp, err := querier.QueryHistory(ctx, st.Oracle, bidder)
	if err != nil {
		return 0, fmt.Errorf("query bidder history: %w", err)
	}
	if resp.History == nil {
		return 0, nil
	}
	return core.CreditScore(*resp.History, core.PerfectProposal(st.Payment)), nil
}

func viewBid(ctx context.Context, store Storage, bidder string) (contractapi.Answer, error) {
	rec, err := LoadBid(ctx, store, bidder)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return contractapi.BidAnswer{
			Status:  contractapi.Failure,
			Message: fmt.Sprintf("No active bid for address: %s", bidder),
		}, nil
	}
	placed := time.Unix(int64(rec.Timestamp), 0).UTC().Format("2006-01-02 15:04:05")
	return contractapi.BidAnswer{
		Status:    contractapi.Success,
		Message:   fmt.Sprintf("Bid placed %s UTC", placed),
		AmountBid: contractapi.AmountPtr(rec.Amount),
	}, nil
}
