package contract

import (
	"context"
	"fmt"

	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

func finalize(ctx context.Context, store Storage, env Env, st *State, onlyIfBids bool) (contractapi.Answer, []contractapi.Message, error) {
	if env.Message.Sender != st.Seller {
		return nil, nil, fmt.Errorf("%w: only the auction creator can finalize the sale", ErrUnauthorized)
	}
	if st.Status == Closed {
		return nil, nil, ErrAlreadyClosed
	}

	bids, err := activeBids(ctx, store, st)
	if err != nil {
		return nil, nil, err
	}
	if onlyIfBids && len(bids) == 0 {
		return contractapi.CloseAuctionAnswer{
			Status:  contractapi.Failure,
			Message: "Did not close because there are no active bids",
		}, nil, nil
	}

	refreshStats(st, bids)

	var (
		messages []contractapi.Message
		refunds  = bids
		answer   = contractapi.CloseAuctionAnswer{Status: contractapi.Success}
	)

	if len(bids) > 0 && st.FullyConsigned() {
		result := core.RunAuction(bids, st.Payment)
		winner := result.Winner

		messages = append(messages,
			contractapi.TransferMsg{Token: st.BidToken.Contract, Recipient: st.Seller, Amount: winner.Amount},
			contractapi.TransferMsg{Token: st.SellToken.Contract, Recipient: winner.Bidder, Amount: st.Expected},
		)
		st.ConsignedAmount -= st.Expected
		st.WinningBid = contractapi.AmountPtr(winner.Amount)
		answer.WinningBid = contractapi.AmountPtr(winner.Amount)
		refunds = result.Losers

		if err := removeBid(ctx, store, st, winner.Bidder); err != nil {
			return nil, nil, err
		}
		log.Debugf("auction %s won by %s with %s (credit %d, distance %s)", st.AuctionAddress, winner.Bidder, winner.Amount, winner.Credit, core.AdjustedDistance(*winner, st.Payment))
		if ru := result.RunnerUp; ru != nil {
			log.Debugf("auction %s runner-up %s with %s (distance %s)", st.AuctionAddress, ru.Bidder, ru.Amount, core.AdjustedDistance(*ru, st.Payment))
		}
	}

	refundMsgs, err := refundBids(ctx, store, st, refunds)
	if err != nil {
		return nil, nil, err
	}
	messages = append(messages, refundMsgs...)

	if st.ConsignedAmount > 0 {
		answer.AmountReturned = contractapi.AmountPtr(st.ConsignedAmount)
		messages = append(messages, returnEscrow(st))
	}

	switch {
	case answer.WinningBid != nil:
		answer.Message = "Sale finalized. You have been sent the winning bid tokens"
	case answer.AmountReturned != nil:
		cause := ""
		if !st.FullyConsigned() {
			cause = " because you did not consign the full sale amount"
		} else if len(bids) == 0 {
			cause = " because there were no active bids"
		}
		answer.Message = "Auction closed. You have been returned the consigned tokens" + cause
	default:
		answer.Message = "Auction has been closed"
	}

	// Escrow is fully paid out by now
	st.ConsignedAmount = 0
	st.Status = Closed
	if err := saveState(ctx, store, st); err != nil {
		return nil, nil, err
	}

	log.Debugf("auction %s closed: %d messages emitted", st.AuctionAddress, len(messages))
	return answer, messages, nil
}

func returnAll(ctx context.Context, store Storage, st *State) (contractapi.Answer, []contractapi.Message, error) {
	if st.Status != Closed {
		return nil, nil, fmt.Errorf("%w: return_all can only be executed after the auction has ended", ErrNotClosed)
	}

	bids, err := activeBids(ctx, store, st)
	if err != nil {
		return nil, nil, err
	}
	messages, err := refundBids(ctx, store, st, bids)
	if err != nil {
		return nil, nil, err
	}
	if st.ConsignedAmount > 0 {
		messages = append(messages, returnEscrow(st))
		st.ConsignedAmount = 0
	}
	if len(messages) > 0 {
		if err := saveState(ctx, store, st); err != nil {
			return nil, nil, err
		}
		log.Warnf("auction %s returned %d outstanding balances after close", st.AuctionAddress, len(messages))
	}

	return contractapi.CloseAuctionAnswer{
		Status:  contractapi.Success,
		Message: "Outstanding funds have been returned",
	}, messages, nil
}

// refundBids removes the given bids and emits a transfer returning each to its
// bidder. Bids must be in bidder address order.
func refundBids(ctx context.Context, store Storage, st *State, bids []core.CoreBid) ([]contractapi.Message, error) {
	messages := make([]contractapi.Message, 0, len(bids))
	for _, bid := range bids {
		messages = append(messages, contractapi.TransferMsg{
			Token:     st.BidToken.Contract,
			Recipient: bid.Bidder,
			Amount:    bid.Amount,
		})
		if err := removeBid(ctx, store, st, bid.Bidder); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

func returnEscrow(st *State) contractapi.Message {
	return contractapi.TransferMsg{
		Token:     st.SellToken.Contract,
		Recipient: st.Seller,
		Amount:    st.ConsignedAmount,
	}
}
