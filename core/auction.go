package core

import "sort"

// RunAuction ranks the active bids against the payment target and splits them
// into the winner and the bids to refund.
//
// Processing flow:
//  1. Rank bids by credit-adjusted distance from payment
//  2. Extract winner and runner-up from ranking
//  3. Collect every other bid as a loser, ordered by bidder address
func RunAuction(bids []CoreBid, payment Amount) *AuctionResult {
	ranking := RankCoreBids(bids, payment)

	var winner, runnerUp *CoreBid
	if len(ranking.SortedBidders) > 0 {
		winner = ranking.Bids[ranking.SortedBidders[0]]
	}
	if len(ranking.SortedBidders) > 1 {
		runnerUp = ranking.Bids[ranking.SortedBidders[1]]
	}

	losers := make([]CoreBid, 0, len(ranking.SortedBidders))
	for _, bidder := range ranking.SortedBidders[min(1, len(ranking.SortedBidders)):] {
		losers = append(losers, *ranking.Bids[bidder])
	}
	sort.Slice(losers, func(i, j int) bool {
		return losers[i].Bidder < losers[j].Bidder
	})

	return &AuctionResult{
		Winner:   winner,
		RunnerUp: runnerUp,
		Losers:   losers,
	}
}
