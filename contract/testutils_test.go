package contract

import (
	"context"
	"fmt"
	"testing"

	ds "github.com/ipfs/go-datastore"
	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/contractapi/parsing"
	"github.com/cloudx-io/creditauction/core"
)

const (
	seller   = "secret1seller"
	bidderA  = "secret1biddera"
	bidderB  = "secret1bidderb"
	stranger = "secret1stranger"
)

var (
	sellToken = contractapi.ContractInfo{Address: "secret1sell", CodeHash: "5e11"}
	bidToken  = contractapi.ContractInfo{Address: "secret1bid", CodeHash: "b1d0"}
	oracle    = contractapi.ContractInfo{Address: "secret1oracle", CodeHash: "0rac"}
	auction   = contractapi.ContractInfo{Address: "secret1auction", CodeHash: "a0c7"}
)

// mockQuerier answers queries with func fields, falling back to fixed data.
type mockQuerier struct {
	TokenInfoFunc func(token contractapi.ContractInfo) (contractapi.TokenInfo, error)
	Histories     map[string]core.History
}

func (m *mockQuerier) QueryTokenInfo(_ context.Context, token contractapi.ContractInfo) (contractapi.TokenInfo, error) {
	if m.TokenInfoFunc != nil {
		return m.TokenInfoFunc(token)
	}
	switch token.Address {
	case sellToken.Address:
		return contractapi.TokenInfo{Name: "Credit Note", Symbol: "CRN", Decimals: 6}, nil
	case bidToken.Address:
		return contractapi.TokenInfo{Name: "Secret Scrt", Symbol: "SSCRT", Decimals: 6}, nil
	}
	return contractapi.TokenInfo{}, fmt.Errorf("unknown token %s", token.Address)
}

func (m *mockQuerier) QueryHistory(_ context.Context, _ contractapi.ContractInfo, user string) (contractapi.HistoryResponse, error) {
	h, ok := m.Histories[user]
	if !ok {
		return contractapi.HistoryResponse{Message: "No history"}, nil
	}
	return contractapi.HistoryResponse{History: &h, Message: "History found"}, nil
}

func goodHistory() core.History {
	return core.History{
		Credits: []core.Credit{{Sum: 1_000_000, InterestRate: 6, Time: 12, IsClosed: true}},
	}
}

type testAuction struct {
	t       *testing.T
	ctx     context.Context
	store   ds.Datastore
	querier *mockQuerier
	time    uint64
}

func newTestAuction(t *testing.T) *testAuction {
	t.Helper()
	return &testAuction{
		t:     t,
		ctx:   context.Background(),
		store: ds.NewMapDatastore(),
		querier: &mockQuerier{
			Histories: map[string]core.History{seller: goodHistory()},
		},
		time: 1_700_000_000,
	}
}

func defaultInstantiateMsg() contractapi.InstantiateMsg {
	return contractapi.InstantiateMsg{
		SellContract:   sellToken,
		BidContract:    bidToken,
		Expected:       1_000_000,
		Payment:        2_000_000,
		OracleContract: oracle,
	}
}

func (a *testAuction) deps() Deps {
	return Deps{Storage: a.store, Querier: a.querier}
}

func (a *testAuction) env(sender, senderCodeHash string) Env {
	a.time++
	return Env{
		Block:    BlockInfo{Height: a.time - 1_700_000_000, Time: a.time},
		Message:  MessageInfo{Sender: sender, SenderCodeHash: senderCodeHash},
		Contract: auction,
	}
}

func (a *testAuction) instantiate() *contractapi.Response {
	a.t.Helper()
	resp, err := Instantiate(a.ctx, a.deps(), a.env(seller, ""), defaultInstantiateMsg())
	assert.NoError(a.t, err)
	return resp
}

func (a *testAuction) receive(token contractapi.ContractInfo, from string, amount core.Amount, padding *string) (*contractapi.Response, error) {
	msg := contractapi.Receive{Sender: from, From: from, Amount: amount, Padding: padding}
	return Execute(a.ctx, a.deps(), a.env(token.Address, token.CodeHash), msg)
}

func (a *testAuction) consign(amount core.Amount) contractapi.ConsignAnswer {
	a.t.Helper()
	resp, err := a.receive(sellToken, seller, amount, nil)
	assert.NoError(a.t, err)
	return decodeAnswer[contractapi.ConsignAnswer](a.t, resp.Data)
}

func (a *testAuction) bid(bidder string, amount core.Amount) (*contractapi.Response, contractapi.BidAnswer) {
	a.t.Helper()
	resp, err := a.receive(bidToken, bidder, amount, nil)
	assert.NoError(a.t, err)
	return resp, decodeAnswer[contractapi.BidAnswer](a.t, resp.Data)
}

func (a *testAuction) execute(sender string, msg contractapi.ExecuteMsg) (*contractapi.Response, error) {
	return Execute(a.ctx, a.deps(), a.env(sender, ""), msg)
}

func (a *testAuction) state() *State {
	a.t.Helper()
	st, err := LoadState(a.ctx, a.store)
	assert.NoError(a.t, err)
	return st
}

func (a *testAuction) info() contractapi.AuctionInfoAnswer {
	a.t.Helper()
	data, err := Query(a.ctx, a.deps(), contractapi.AuctionInfo{})
	assert.NoError(a.t, err)
	return decodeAnswer[contractapi.AuctionInfoAnswer](a.t, data)
}

// snapshot returns every key/value in the store.
func (a *testAuction) snapshot() map[string]string {
	a.t.Helper()
	out := make(map[string]string)
	for _, key := range []ds.Key{configKey} {
		v, err := a.store.Get(a.ctx, key)
		assert.NoError(a.t, err)
		out[key.String()] = string(v)
	}
	for _, bidder := range a.state().Bidders {
		v, err := a.store.Get(a.ctx, bidKey(bidder))
		assert.NoError(a.t, err)
		out[bidKey(bidder).String()] = string(v)
	}
	return out
}

func decodeAnswer[T contractapi.Answer](t *testing.T, data []byte) T {
	t.Helper()
	answer, err := parsing.DecodeAnswer(data)
	assert.NoError(t, err)
	typed, ok := answer.(T)
	if !ok {
		t.Fatalf("unexpected answer type %T", answer)
	}
	return typed
}

func transfers(msgs []contractapi.Message) []contractapi.TransferMsg {
	out := make([]contractapi.TransferMsg, 0, len(msgs))
	for _, m := range msgs {
		if tm, ok := m.(contractapi.TransferMsg); ok {
			out = append(out, tm)
		}
	}
	return out
}

func sumTransfers(msgs []contractapi.Message, token contractapi.ContractInfo) core.Amount {
	var total core.Amount
	for _, tm := range transfers(msgs) {
		if tm.Token == token {
			total += tm.Amount
		}
	}
	return total
}
