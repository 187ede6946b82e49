package core

import (
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	decTwo     = decimal.NewFromInt(2)
	decThree   = decimal.NewFromInt(3)
	decFive    = decimal.NewFromInt(5)
	decHundred = decimal.NewFromInt(100)
)

// PerfectProposal returns the order of magnitude of the payment target,
// 10^(digits(payment)-1). It is the unit credit histories are scored against.
func PerfectProposal(payment Amount) Amount {
	digits := len(strconv.FormatUint(uint64(payment), 10))
	p := Amount(1)
	for i := 1; i < digits; i++ {
		p *= 10
	}
	return p
}

// divCeilish returns n/d + n%d using integer division.
func divCeilish(n, d decimal.Decimal) decimal.Decimal {
	q, r := n.QuoRem(d, 0)
	return q.Add(r)
}

// CreditScore derives a credit score from an oracle history, measured against
// the perfect proposal unit.
//
// Closed credits add sum*rate*time to the balance and open ones subtract it.
// A positive balance contributes half of itself, debts subtract a third, and
// every credit line adds a fifth of the unit. Negative results clamp to zero.
func CreditScore(h History, perfect Amount) uint64 {
	if perfect == 0 {
		return 0
	}
	unit := perfect.Decimal()

	balance := decimal.Zero
	for _, c := range h.Credits {
		weight := c.Sum.Decimal().Mul(c.InterestRate.Decimal()).Mul(c.Time.Decimal())
		if c.IsClosed {
			balance = balance.Add(weight)
		} else {
			balance = balance.Sub(weight)
		}
	}

	score := decimal.Zero
	if balance.IsPositive() {
		score = score.Add(divCeilish(balance, decTwo))
	}
	if h.Debts != nil {
		score = score.Sub(divCeilish(h.Debts.Decimal(), decThree))
	}
	lines := decimal.NewFromInt(int64(len(h.Credits))).Mul(unit)
	score = score.Add(divCeilish(lines, decFive))

	if !score.IsPositive() {
		return 0
	}
	result, _ := divCeilish(score, unit).QuoRem(decHundred, 0)
	return uint64(fromDecimal(result))
}

// AverageBid returns the integer mean of the bid amounts, 0 with no bids.
func AverageBid(bids []CoreBid) Amount {
	if len(bids) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, b := range bids {
		sum = sum.Add(b.Amount.Decimal())
	}
	avg, _ := sum.QuoRem(decimal.NewFromInt(int64(len(bids))), 0)
	return fromDecimal(avg)
}

// AuctionScore scales the seller's credit score by how close the average bid
// lands to the payment target. With no bids the credit score stands alone.
//
// score = floor(creditScore * max(0, 1 - |averageBid - payment| / payment))
func AuctionScore(creditScore uint64, averageBid, payment Amount, bidCount int) uint64 {
	if bidCount == 0 || payment == 0 {
		return creditScore
	}
	dist := distance(averageBid, payment)
	if dist.GreaterThanOrEqual(payment.Decimal()) {
		return 0
	}
	fit := payment.Decimal().Sub(dist)
	scaled, _ := Amount(creditScore).Decimal().Mul(fit).QuoRem(payment.Decimal(), 0)
	return uint64(fromDecimal(scaled))
}

func distance(a, b Amount) decimal.Decimal {
	return a.Decimal().Sub(b.Decimal()).Abs()
}
