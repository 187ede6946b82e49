package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RankCoreBids orders bids from best to worst against the payment target.
//
// Only the latest bid per bidder is ranked. Bids are ordered by credit-adjusted
// distance from payment, |amount-payment|*100/(100+credit), ascending; ties fall
// to higher credit, then the larger amount, then the lower bidder address. The
// result does not depend on the order bids are supplied in.
func RankCoreBids(bids []CoreBid, payment Amount) *CoreRankingResult {
	if len(bids) == 0 {
		return &CoreRankingResult{
			Bids:          make(map[string]*CoreBid),
			SortedBidders: make([]string, 0),
		}
	}

	// Keep the latest bid per bidder
	latest := make(map[string]*CoreBid, len(bids))
	for i := range bids {
		bid := &bids[i]
		existing, exists := latest[bid.Bidder]
		if !exists || bid.Timestamp >= existing.Timestamp {
			latest[bid.Bidder] = bid
		}
	}

	entries := make([]*CoreBid, 0, len(latest))
	for _, bid := range latest {
		entries = append(entries, bid)
	}

	sort.Slice(entries, func(i, j int) bool {
		return betterBid(entries[i], entries[j], payment)
	})

	result := &CoreRankingResult{
		Bids:          make(map[string]*CoreBid, len(entries)),
		SortedBidders: make([]string, len(entries)),
	}
	for rank, bid := range entries {
		result.Bids[bid.Bidder] = bid
		result.SortedBidders[rank] = bid.Bidder
	}
	return result
}

// betterBid reports whether a ranks strictly ahead of b.
func betterBid(a, b *CoreBid, payment Amount) bool {
	// Compare distA/(100+credA) against distB/(100+credB) without dividing.
	lhs := distance(a.Amount, payment).Mul(creditWeight(b.Credit))
	rhs := distance(b.Amount, payment).Mul(creditWeight(a.Credit))
	if c := lhs.Cmp(rhs); c != 0 {
		return c < 0
	}
	if a.Credit != b.Credit {
		return a.Credit > b.Credit
	}
	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}
	return a.Bidder < b.Bidder
}

func creditWeight(credit uint64) decimal.Decimal {
	return Amount(credit).Decimal().Add(decHundred)
}

// AdjustedDistance returns the credit-adjusted distance of a bid from the
// payment target, the primary ranking key.
func AdjustedDistance(bid CoreBid, payment Amount) decimal.Decimal {
	return distance(bid.Amount, payment).Mul(decHundred).Div(creditWeight(bid.Credit))
}
