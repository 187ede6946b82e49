package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestRunAuction_BasicFlow(t *testing.T) {
	bids := []CoreBid{
		{Bidder: "bidder_c", Amount: 1_000_000},
		{Bidder: "bidder_a", Amount: 2_100_000},
		{Bidder: "bidder_b", Amount: 1_700_000},
	}

	result := RunAuction(bids, 2_000_000)

	check.NotNil(t, result)
	check.NotNil(t, result.Winner)
	check.NotNil(t, result.RunnerUp)

	check.Equal(t, "bidder_a", result.Winner.Bidder)
	check.Equal(t, "bidder_b", result.RunnerUp.Bidder)

	// Losers come back in address order regardless of rank
	check.Equal(t, 2, len(result.Losers))
	check.Equal(t, "bidder_b", result.Losers[0].Bidder)
	check.Equal(t, "bidder_c", result.Losers[1].Bidder)
}

func TestRunAuction_NoBids(t *testing.T) {
	result := RunAuction([]CoreBid{}, 2_000_000)

	check.NotNil(t, result)
	check.Nil(t, result.Winner)
	check.Nil(t, result.RunnerUp)
	check.Equal(t, 0, len(result.Losers))
}

func TestRunAuction_SingleBid(t *testing.T) {
	bids := []CoreBid{
		{Bidder: "bidder_a", Amount: 5},
	}

	result := RunAuction(bids, 2_000_000)

	check.NotNil(t, result.Winner)
	check.Nil(t, result.RunnerUp)
	check.Equal(t, "bidder_a", result.Winner.Bidder)
	check.Equal(t, Amount(5), result.Winner.Amount)
	check.Equal(t, 0, len(result.Losers))
}

func TestRunAuction_EquidistantBids(t *testing.T) {
	// 1.8M and 2.2M are both 200k from payment with no credit edge
	bids := []CoreBid{
		{Bidder: "bidder_a", Amount: 1_800_000},
		{Bidder: "bidder_b", Amount: 2_200_000},
	}

	result := RunAuction(bids, 2_000_000)

	check.Equal(t, "bidder_b", result.Winner.Bidder)
	check.Equal(t, 1, len(result.Losers))
	check.Equal(t, Amount(1_800_000), result.Losers[0].Amount)
}
