package core

// CoreBid represents a single active bid in the auction.
type CoreBid struct {
	Bidder    string `json:"bidder"`
	Amount    Amount `json:"amount"`
	Credit    uint64 `json:"credit"`              // bidder credit score from the oracle at bid time
	Timestamp uint64 `json:"timestamp,omitempty"` // block time the bid was placed, unix seconds
}

// CoreRankingResult contains the ranked bidders and their bids.
type CoreRankingResult struct {
	Bids          map[string]*CoreBid `json:"bids"`
	SortedBidders []string            `json:"sorted_bidders"`
}

// AuctionResult contains the complete results of ranking the active bids.
type AuctionResult struct {
	// Winner is the highest-ranked bid (nil if no bids)
	Winner *CoreBid

	// RunnerUp is the second-highest-ranked bid (nil if less than 2 bids)
	RunnerUp *CoreBid

	// Losers holds every bid except the winner, ordered by bidder address
	Losers []CoreBid
}

// Credit is a single credit line in a user's history as kept by the oracle.
type Credit struct {
	Sum          Amount `json:"sum"`
	InterestRate Amount `json:"interest_rate"`
	Time         Amount `json:"time"` // months to close the credit
	IsClosed     bool   `json:"is_closed"`
}

// History is the credit history of a user as returned by the oracle.
type History struct {
	Debts   *Amount  `json:"debts,omitempty"`
	Credits []Credit `json:"credits"`
}
