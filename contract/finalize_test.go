package contract

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

func (a *testAuction) finalize(onlyIfBids bool) (*contractapi.Response, contractapi.CloseAuctionAnswer) {
	a.t.Helper()
	resp, err := a.execute(seller, contractapi.Finalize{OnlyIfBids: onlyIfBids})
	assert.NoError(a.t, err)
	return resp, decodeAnswer[contractapi.CloseAuctionAnswer](a.t, resp.Data)
}

func TestFinalize_EndToEnd(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()

	consigned := a.consign(1_000_000)
	check.Equal(t, contractapi.Success, consigned.Status)
	check.Equal(t, Open, a.state().Status)
	check.Equal(t, core.Amount(1_000_000), a.state().ConsignedAmount)

	a.bid(bidderA, 1_800_000)
	a.bid(bidderB, 2_200_000)

	resp, answer := a.finalize(false)
	check.Equal(t, contractapi.Success, answer.Status)
	check.Equal(t, "Sale finalized. You have been sent the winning bid tokens", answer.Message)
	check.Equal(t, core.Amount(2_200_000), *answer.WinningBid)
	check.Nil(t, answer.AmountReturned)

	// Equidistant bids with equal credit: the larger amount wins
	check.Equal(t, []contractapi.TransferMsg{
		{Token: bidToken, Recipient: seller, Amount: 2_200_000},
		{Token: sellToken, Recipient: bidderB, Amount: 1_000_000},
		{Token: bidToken, Recipient: bidderA, Amount: 1_800_000},
	}, transfers(resp.Messages))

	st := a.state()
	check.Equal(t, Closed, st.Status)
	check.Equal(t, core.Amount(0), st.ConsignedAmount)
	check.Equal(t, 0, len(st.Bidders))
	check.Equal(t, core.Amount(2_200_000), *st.WinningBid)
	check.Equal(t, uint64(2000), st.Score)

	rec, err := LoadBid(a.ctx, a.store, bidderA)
	assert.NoError(t, err)
	check.Nil(t, rec)

	info := a.info()
	check.Equal(t, "Closed", info.Status)
	check.Equal(t, core.Amount(2_200_000), *info.WinningBid)
}

func TestFinalize_CreditDecidesWinner(t *testing.T) {
	a := newTestAuction(t)
	a.querier.Histories[bidderA] = goodHistory()
	a.instantiate()
	a.consign(1_000_000)

	a.bid(bidderA, 1_800_000)
	a.bid(bidderB, 2_200_000)

	_, answer := a.finalize(false)
	check.Equal(t, core.Amount(1_800_000), *answer.WinningBid)
}

func TestFinalize_DeterministicAcrossSubmissionOrder(t *testing.T) {
	bids := []struct {
		bidder string
		amount core.Amount
	}{
		{"secret1bidderc", 2_400_000},
		{bidderA, 1_900_000},
		{bidderB, 2_050_000},
	}

	var want []contractapi.TransferMsg
	for shift := range bids {
		a := newTestAuction(t)
		a.instantiate()
		a.consign(1_000_000)
		for i := range bids {
			b := bids[(i+shift)%len(bids)]
			a.bid(b.bidder, b.amount)
		}
		resp, _ := a.finalize(false)
		got := transfers(resp.Messages)
		if want == nil {
			want = got
		}
		check.Equal(t, want, got)
	}
	check.Equal(t, bidderB, want[1].Recipient)
}

func TestFinalize_OnlyIfBidsWithoutBids(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()
	a.consign(1_000_000)
	before := a.snapshot()

	resp, answer := a.finalize(true)
	check.Equal(t, contractapi.Failure, answer.Status)
	check.Equal(t, "Did not close because there are no active bids", answer.Message)
	check.Equal(t, 0, len(resp.Messages))
	check.Equal(t, before, a.snapshot())
	check.Equal(t, Open, a.state().Status)
}

func TestFinalize_NoBidsReturnsEscrow(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()
	a.consign(1_000_000)

	resp, answer := a.finalize(false)
	check.Equal(t, contractapi.Success, answer.Status)
	check.Nil(t, answer.WinningBid)
	check.Equal(t, core.Amount(1_000_000), *answer.AmountReturned)
	check.Equal(t, "Auction closed. You have been returned the consigned tokens because there were no active bids", answer.Message)
	check.Equal(t, []contractapi.TransferMsg{{Token: sellToken, Recipient: seller, Amount: 1_000_000}}, transfers(resp.Messages))
	check.Equal(t, Closed, a.state().Status)
}

func TestFinalize_NothingHeld(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()

	resp, answer := a.finalize(false)
	check.Equal(t, "Auction has been closed", answer.Message)
	check.Equal(t, 0, len(resp.Messages))
	check.Equal(t, Closed, a.state().Status)
}

func TestFinalize_PartialConsignmentRefundsEveryone(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()
	a.consign(300_000)
	a.bid(bidderB, 2_000_000)
	a.bid(bidderA, 1_900_000)

	resp, answer := a.finalize(false)
	check.Nil(t, answer.WinningBid)
	check.Equal(t, core.Amount(300_000), *answer.AmountReturned)
	check.Equal(t, "Auction closed. You have been returned the consigned tokens because you did not consign the full sale amount", answer.Message)

	// Refunds in address order, then the escrow
	check.Equal(t, []contractapi.TransferMsg{
		{Token: bidToken, Recipient: bidderA, Amount: 1_900_000},
		{Token: bidToken, Recipient: bidderB, Amount: 2_000_000},
		{Token: sellToken, Recipient: seller, Amount: 300_000},
	}, transfers(resp.Messages))

	st := a.state()
	check.Nil(t, st.WinningBid)
	check.Equal(t, 0, len(st.Bidders))
}

func TestFinalize_RefundsMatchDeposits(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()
	a.consign(1_000_000)

	var deposited, refunded core.Amount
	for i, amount := range []core.Amount{1_500_000, 2_600_000, 1_999_999, 2_000_001} {
		bidder := []string{bidderA, bidderB, "secret1bidderc", "secret1bidderd"}[i]
		resp, _ := a.bid(bidder, amount)
		deposited += amount
		refunded += sumTransfers(resp.Messages, bidToken)
	}

	resp, answer := a.finalize(false)
	paid := sumTransfers(resp.Messages, bidToken)
	check.Equal(t, deposited-refunded, paid)

	var toSeller core.Amount
	for _, tm := range transfers(resp.Messages) {
		if tm.Token == bidToken && tm.Recipient == seller {
			toSeller += tm.Amount
		}
	}
	check.Equal(t, *answer.WinningBid, toSeller)
	check.Equal(t, core.Amount(1_000_000), sumTransfers(resp.Messages, sellToken))
}

func TestFinalize_DoubleFinalize(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()
	a.consign(1_000_000)
	a.bid(bidderA, 1_800_000)
	a.finalize(false)
	before := a.snapshot()

	resp, err := a.execute(seller, contractapi.Finalize{})
	check.Nil(t, resp)
	check.True(t, errors.Is(err, ErrAlreadyClosed))
	check.Equal(t, before, a.snapshot())

	// Closed is terminal for deposits too
	_, err = a.receive(bidToken, bidderB, 1_000_000, nil)
	check.True(t, errors.Is(err, ErrNotOpen))
	_, err = a.receive(sellToken, seller, 1, nil)
	check.True(t, errors.Is(err, ErrNotOpen))
}

func TestFinalize_OnlySeller(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()
	a.bid(bidderA, 1_800_000)

	_, err := a.execute(bidderA, contractapi.Finalize{})
	check.True(t, errors.Is(err, ErrUnauthorized))
	check.Equal(t, Open, a.state().Status)
}

func TestReturnAll(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()
	a.bid(bidderA, 1_800_000)

	_, err := a.execute(stranger, contractapi.ReturnAll{})
	check.True(t, errors.Is(err, ErrNotClosed))

	a.finalize(false)

	resp, err := a.execute(stranger, contractapi.ReturnAll{})
	assert.NoError(t, err)
	answer := decodeAnswer[contractapi.CloseAuctionAnswer](t, resp.Data)
	check.Equal(t, contractapi.Success, answer.Status)
	check.Equal(t, "Outstanding funds have been returned", answer.Message)
	check.Equal(t, 0, len(resp.Messages))
}

func TestReturnAll_OutstandingBalances(t *testing.T) {
	a := newTestAuction(t)
	a.instantiate()
	a.finalize(false)

	// Force a balance that should never exist after close
	st := a.state()
	st.ConsignedAmount = 5
	st.addBidder(bidderA)
	assert.NoError(t, saveState(a.ctx, a.store, st))
	assert.NoError(t, saveBid(a.ctx, a.store, bidderA, BidRecord{Amount: 7}))
	check.Equal(t, "Closed, but found outstanding balances. Please run return_all to return all outstanding bids/consignment.", a.info().Status)

	resp, err := a.execute(stranger, contractapi.ReturnAll{})
	assert.NoError(t, err)
	check.Equal(t, []contractapi.TransferMsg{
		{Token: bidToken, Recipient: bidderA, Amount: 7},
		{Token: sellToken, Recipient: seller, Amount: 5},
	}, transfers(resp.Messages))
	check.Equal(t, "Closed", a.info().Status)
}
