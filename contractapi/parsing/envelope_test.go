package parsing

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

func TestParseExecuteMsg(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  contractapi.ExecuteMsg
	}{
		{
			name:  "receive",
			input: `{"receive":{"sender":"secret1a","from":"secret1a","amount":"1800000"}}`,
			want:  contractapi.Receive{Sender: "secret1a", From: "secret1a", Amount: 1_800_000},
		},
		{
			name:  "view bid",
			input: `{"view_bid":{}}`,
			want:  contractapi.ViewBid{},
		},
		{
			name:  "finalize",
			input: `{"finalize":{"only_if_bids":true}}`,
			want:  contractapi.Finalize{OnlyIfBids: true},
		},
		{
			name:  "return all",
			input: `{"return_all":{}}`,
			want:  contractapi.ReturnAll{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseExecuteMsg([]byte(tt.input))
			assert.NoError(t, err)
			check.Equal(t, tt.want, msg)
		})
	}
}

func TestParseExecuteMsg_ReceivePaddingIgnoredInAmount(t *testing.T) {
	msg, err := ParseExecuteMsg([]byte(`{"receive":{"sender":"s","from":"f","amount":"42","padding":"                                       "}}`))
	assert.NoError(t, err)

	recv, ok := msg.(contractapi.Receive)
	check.True(t, ok)
	check.Equal(t, core.Amount(42), recv.Amount)
	check.NotNil(t, recv.Padding)
	check.Equal(t, 39, len(*recv.Padding))
}

func TestParseExecuteMsg_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `receive`},
		{"empty envelope", `{}`},
		{"two variants", `{"view_bid":{},"return_all":{}}`},
		{"unknown field", `{"finalize":{"only_if_bids":true,"force":true}}`},
		{"negative amount", `{"receive":{"sender":"s","from":"f","amount":"-1"}}`},
		{"fractional amount", `{"receive":{"sender":"s","from":"f","amount":"1.5"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExecuteMsg([]byte(tt.input))
			check.Error(t, err)
		})
	}

	_, err := ParseExecuteMsg([]byte(`{"retract_bid":{}}`))
	check.True(t, errors.Is(err, ErrUnknownMessage))

	_, err = ParseExecuteMsg([]byte(`{"receive":{"sender":"s","from":"f","amount":"x"}}`))
	check.True(t, errors.Is(err, core.ErrMalformedAmount))
}

func TestParseQueryMsg(t *testing.T) {
	msg, err := ParseQueryMsg([]byte(`{"auction_info":{}}`))
	assert.NoError(t, err)
	check.Equal(t, contractapi.QueryMsg(contractapi.AuctionInfo{}), msg)

	_, err = ParseQueryMsg([]byte(`{"bid_list":{}}`))
	check.True(t, errors.Is(err, ErrUnknownMessage))
}

func TestParseInstantiateMsg(t *testing.T) {
	input := `{
		"sell_contract": {"code_hash": "aa", "address": "secret1sell"},
		"bid_contract": {"code_hash": "bb", "address": "secret1bid"},
		"expected": "1000000",
		"payment": "2000000",
		"oracle_contract": {"code_hash": "cc", "address": "secret1oracle"},
		"description": "invoice #12"
	}`

	msg, err := ParseInstantiateMsg([]byte(input))
	assert.NoError(t, err)
	check.Equal(t, "secret1sell", msg.SellContract.Address)
	check.Equal(t, core.Amount(1_000_000), msg.Expected)
	check.Equal(t, core.Amount(2_000_000), msg.Payment)
	check.NotNil(t, msg.Description)
	check.Equal(t, "invoice #12", *msg.Description)
}

func TestEncodeExecuteMsg(t *testing.T) {
	data, err := EncodeExecuteMsg(contractapi.Finalize{OnlyIfBids: true})
	assert.NoError(t, err)
	check.Equal(t, `{"finalize":{"only_if_bids":true}}`, string(data))

	data, err = EncodeQueryMsg(contractapi.AuctionInfo{})
	assert.NoError(t, err)
	check.Equal(t, `{"auction_info":{}}`, string(data))
}

func TestEncodeAnswer_Padded(t *testing.T) {
	answer := contractapi.BidAnswer{
		Status:    contractapi.Success,
		Message:   "Bid accepted",
		AmountBid: contractapi.AmountPtr(2_200_000),
	}

	data, err := EncodeAnswer(answer)
	assert.NoError(t, err)
	check.Equal(t, 0, len(data)%contractapi.BlockSize)

	decoded, err := DecodeAnswer(data)
	assert.NoError(t, err)
	bid, ok := decoded.(contractapi.BidAnswer)
	check.True(t, ok)
	check.Equal(t, contractapi.Success, bid.Status)
	check.Equal(t, core.Amount(2_200_000), *bid.AmountBid)
	check.Nil(t, bid.PreviousBid)
}

func TestDecodeAnswer_UnknownTag(t *testing.T) {
	_, err := DecodeAnswer([]byte(`{"swap":{}}`))
	check.True(t, errors.Is(err, ErrUnknownMessage))
}
