package contractapi

import (
	"github.com/cloudx-io/creditauction/core"
)

// BlockSize is the block every execute answer and query result is padded to,
// so the response length does not reveal bid magnitudes.
const BlockSize = 256

// ContractInfo identifies a contract by address and the hash of its code.
type ContractInfo struct {
	CodeHash string `json:"code_hash"`
	Address  string `json:"address"`
}

// TokenInfo is a token contract's answer to a token_info query.
type TokenInfo struct {
	Name        string       `json:"name"`
	Symbol      string       `json:"symbol"`
	Decimals    uint8        `json:"decimals"`
	TotalSupply *core.Amount `json:"total_supply,omitempty"`
}

// Token pairs a token's address with its cached TokenInfo.
type Token struct {
	ContractAddress string    `json:"contract_address"`
	TokenInfo       TokenInfo `json:"token_info"`
}

// InstantiateMsg creates an auction for a single sale.
type InstantiateMsg struct {
	SellContract   ContractInfo `json:"sell_contract"`   // token being sold
	BidContract    ContractInfo `json:"bid_contract"`    // token bids are paid in
	Expected       core.Amount  `json:"expected"`        // sell-asset amount owed to the winner
	Payment        core.Amount  `json:"payment"`         // bid-asset amount the seller targets
	OracleContract ContractInfo `json:"oracle_contract"` // credit history oracle
	Description    *string      `json:"description,omitempty"`
}

// ExecuteMsg is a state-changing message handled by the auction.
// The set of implementations is closed: Receive, ViewBid, Finalize, ReturnAll.
type ExecuteMsg interface {
	executeMsg()
}

// Receive is delivered by a token contract after tokens were sent to the
// auction. Sender is who triggered the send, From is the owner of the tokens.
type Receive struct {
	Sender  string      `json:"sender"`
	From    string      `json:"from"`
	Amount  core.Amount `json:"amount"`
	Padding *string     `json:"padding,omitempty"`
	Msg     []byte      `json:"msg,omitempty"`
}

// ViewBid returns the caller's active bid.
type ViewBid struct{}

// Finalize closes the auction. With OnlyIfBids the auction stays open when
// there are no active bids.
type Finalize struct {
	OnlyIfBids bool `json:"only_if_bids"`
}

// ReturnAll returns any funds still held after the auction closed.
type ReturnAll struct{}

func (Receive) executeMsg()   {}
func (ViewBid) executeMsg()   {}
func (Finalize) executeMsg()  {}
func (ReturnAll) executeMsg() {}

// QueryMsg is a read-only query handled by the auction.
type QueryMsg interface {
	queryMsg()
}

// AuctionInfo asks for the public auction details.
type AuctionInfo struct{}

func (AuctionInfo) queryMsg() {}

// ResponseStatus reports the business outcome of an execute message.
type ResponseStatus string

const (
	Success ResponseStatus = "Success"
	Failure ResponseStatus = "Failure"
)

// Answer is the data payload returned by an execute or query.
type Answer interface {
	answer()
}

// ConsignAnswer is returned after sell tokens were received.
type ConsignAnswer struct {
	Status          ResponseStatus `json:"status"`
	Message         string         `json:"message"`
	AmountConsigned *core.Amount   `json:"amount_consigned,omitempty"`
	AmountNeeded    *core.Amount   `json:"amount_needed,omitempty"`
	AmountReturned  *core.Amount   `json:"amount_returned,omitempty"`
}

// BidAnswer is returned after a bid and by ViewBid.
type BidAnswer struct {
	Status         ResponseStatus `json:"status"`
	Message        string         `json:"message"`
	PreviousBid    *core.Amount   `json:"previous_bid,omitempty"`
	AmountBid      *core.Amount   `json:"amount_bid,omitempty"`
	AmountReturned *core.Amount   `json:"amount_returned,omitempty"`
}

// CloseAuctionAnswer is returned by Finalize and ReturnAll.
type CloseAuctionAnswer struct {
	Status         ResponseStatus `json:"status"`
	Message        string         `json:"message"`
	WinningBid     *core.Amount   `json:"winning_bid,omitempty"`
	AmountReturned *core.Amount   `json:"amount_returned,omitempty"`
}

// AuctionInfoAnswer is the result of the AuctionInfo query.
type AuctionInfoAnswer struct {
	SellToken       Token        `json:"sell_token"`
	BidToken        Token        `json:"bid_token"`
	Score           core.Amount  `json:"score"`
	AverageBid      core.Amount  `json:"average_bid"`
	Description     *string      `json:"description,omitempty"`
	AuctionAddress  string       `json:"auction_address"`
	Status          string       `json:"status"`
	WinningBid      *core.Amount `json:"winning_bid,omitempty"`
	ConsignedAmount core.Amount  `json:"consigned_amount"`
	Expected        core.Amount  `json:"expected"`
	Payment         core.Amount  `json:"payment"`
	BidCount        int          `json:"bid_count"`
}

func (ConsignAnswer) answer()      {}
func (BidAnswer) answer()          {}
func (CloseAuctionAnswer) answer() {}
func (AuctionInfoAnswer) answer()  {}

// AmountPtr returns a pointer to a copy of a, for optional answer fields.
func AmountPtr(a core.Amount) *core.Amount {
	return &a
}
