package contract

import (
	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

func auctionInfo(st *State) contractapi.AuctionInfoAnswer {
	return contractapi.AuctionInfoAnswer{
		SellToken: contractapi.Token{
			ContractAddress: st.SellToken.Contract.Address,
			TokenInfo:       st.SellToken.Info,
		},
		BidToken: contractapi.Token{
			ContractAddress: st.BidToken.Contract.Address,
			TokenInfo:       st.BidToken.Info,
		},
		Score:           core.Amount(st.Score),
		AverageBid:      st.AverageBid,
		Description:     st.Description,
		AuctionAddress:  st.AuctionAddress,
		Status:          statusText(st),
		WinningBid:      st.WinningBid,
		ConsignedAmount: st.ConsignedAmount,
		Expected:        st.Expected,
		Payment:         st.Payment,
		BidCount:        len(st.Bidders),
	}
}

func statusText(st *State) string {
	if st.Status == Closed {
		if len(st.Bidders) > 0 || st.ConsignedAmount > 0 {
			return "Closed, but found outstanding balances. Please run return_all to return all outstanding bids/consignment."
		}
		return "Closed"
	}
	if !st.FullyConsigned() {
		return "Accepting bids: Token(s) to be sold have NOT been consigned to the auction"
	}
	return "Accepting bids: Token(s) to be sold have been consigned to the auction"
}
