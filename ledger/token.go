package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/dustin/go-humanize"
	"github.com/fxamacker/cbor/v2"
	ds "github.com/ipfs/go-datastore"

	"github.com/cloudx-io/creditauction/contract"
	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

// TokenCodeName is the code name of the built-in fungible token.
const TokenCodeName = "token"

var (
	tokenInfoKey      = ds.NewKey("/info")
	tokenBalancesKey  = ds.NewKey("/balances")
	tokenReceiversKey = ds.NewKey("/receivers")
)

// TokenInstantiateMsg creates a token with initial balances.
type TokenInstantiateMsg struct {
	Name            string           `json:"name"`
	Symbol          string           `json:"symbol"`
	Decimals        uint8            `json:"decimals"`
	InitialBalances []InitialBalance `json:"initial_balances,omitempty"`
}

// InitialBalance credits Amount to Address at instantiate.
type InitialBalance struct {
	Address string      `json:"address"`
	Amount  core.Amount `json:"amount"`
}

type tokenTransfer struct {
	Recipient string      `json:"recipient"`
	Amount    core.Amount `json:"amount"`
	Padding   *string     `json:"padding,omitempty"`
}

type tokenSend struct {
	Recipient string      `json:"recipient"`
	Amount    core.Amount `json:"amount"`
	Msg       []byte      `json:"msg,omitempty"`
	Padding   *string     `json:"padding,omitempty"`
}

type registerReceive struct {
	CodeHash string  `json:"code_hash"`
	Padding  *string `json:"padding,omitempty"`
}

type balanceQuery struct {
	Address string `json:"address"`
}

type tokenExecuteMsg struct {
	Transfer        *tokenTransfer   `json:"transfer,omitempty"`
	Send            *tokenSend       `json:"send,omitempty"`
	RegisterReceive *registerReceive `json:"register_receive,omitempty"`
}

type tokenQueryMsg struct {
	TokenInfo *struct{}     `json:"token_info,omitempty"`
	Balance   *balanceQuery `json:"balance,omitempty"`
}

// TokenCode is a minimal fungible token. It supports transfer, send with a
// receive hook on registered recipients, register_receive, token_info and
// balance. It keeps no viewing keys or allowances.
type TokenCode struct{}

func (TokenCode) Name() string { return TokenCodeName }

func (TokenCode) Instantiate(ctx context.Context, call *Call, msg []byte) (*contractapi.Response, error) {
	var init TokenInstantiateMsg
	if err := json.Unmarshal(msg, &init); err != nil {
		return nil, fmt.Errorf("parse token instantiate: %w", err)
	}
	if init.Symbol == "" {
		return nil, fmt.Errorf("token symbol is required")
	}

	var supply core.Amount
	for _, b := range init.InitialBalances {
		if err := core.ValidateAddress(b.Address); err != nil {
			return nil, fmt.Errorf("initial balance: %w", err)
		}
		if supply+b.Amount < supply {
			return nil, fmt.Errorf("%w: total supply overflows", core.ErrMalformedAmount)
		}
		supply += b.Amount
		bal, err := readBalance(ctx, call.Storage, b.Address)
		if err != nil {
			return nil, err
		}
		if err := writeBalance(ctx, call.Storage, b.Address, bal+b.Amount); err != nil {
			return nil, err
		}
	}

	info := contractapi.TokenInfo{
		Name:        init.Name,
		Symbol:      init.Symbol,
		Decimals:    init.Decimals,
		TotalSupply: contractapi.AmountPtr(supply),
	}
	data, err := cbor.Marshal(info)
	if err != nil {
		return nil, err
	}
	if err := call.Storage.Put(ctx, tokenInfoKey, data); err != nil {
		return nil, err
	}
	log.Debugf("token %s (%s) created with supply %s", init.Symbol, call.Env.Contract.Address, humanAmount(supply))
	return &contractapi.Response{}, nil
}

func (TokenCode) Execute(ctx context.Context, call *Call, msg []byte) (*contractapi.Response, error) {
	var m tokenExecuteMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("parse token message: %w", err)
	}
	sender := call.Env.Message.Sender

	switch {
	case m.Transfer != nil:
		if err := moveTokens(ctx, call, sender, m.Transfer.Recipient, m.Transfer.Amount); err != nil {
			return nil, err
		}
		return tokenStatus("transfer")
	case m.Send != nil:
		if err := moveTokens(ctx, call, sender, m.Send.Recipient, m.Send.Amount); err != nil {
			return nil, err
		}
		resp, err := tokenStatus("send")
		if err != nil {
			return nil, err
		}
		hook, err := receiverHash(ctx, call.Storage, m.Send.Recipient)
		if err != nil {
			return nil, err
		}
		if hook != "" {
			resp.Messages = append(resp.Messages, contractapi.ReceiveCallbackMsg{
				Contract: contractapi.ContractInfo{Address: m.Send.Recipient, CodeHash: hook},
				Receive: contractapi.Receive{
					Sender:  sender,
					From:    sender,
					Amount:  m.Send.Amount,
					Padding: m.Send.Padding,
					Msg:     m.Send.Msg,
				},
			})
		}
		return resp, nil
	case m.RegisterReceive != nil:
		if err := call.Storage.Put(ctx, contract.AddressKey(tokenReceiversKey, sender), []byte(m.RegisterReceive.CodeHash)); err != nil {
			return nil, err
		}
		return tokenStatus("register_receive")
	default:
		return nil, fmt.Errorf("%w: token message", ErrUnsupported)
	}
}

func (TokenCode) Query(ctx context.Context, call *Call, msg []byte) ([]byte, error) {
	var q tokenQueryMsg
	if err := json.Unmarshal(msg, &q); err != nil {
		return nil, fmt.Errorf("parse token query: %w", err)
	}

	var out any
	switch {
	case q.TokenInfo != nil:
		data, err := call.Storage.Get(ctx, tokenInfoKey)
		if err != nil {
			return nil, fmt.Errorf("loading token info: %w", err)
		}
		var info contractapi.TokenInfo
		if err := cbor.Unmarshal(data, &info); err != nil {
			return nil, err
		}
		out = map[string]any{"token_info": info}
	case q.Balance != nil:
		if err := core.ValidateAddress(q.Balance.Address); err != nil {
			return nil, err
		}
		bal, err := readBalance(ctx, call.Storage, q.Balance.Address)
		if err != nil {
			return nil, err
		}
		out = map[string]any{"balance": map[string]core.Amount{"amount": bal}}
	default:
		return nil, fmt.Errorf("%w: token query", ErrUnsupported)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return contractapi.Pad(data, contractapi.BlockSize), nil
}

func tokenStatus(action string) (*contractapi.Response, error) {
	data, err := json.Marshal(map[string]any{action: map[string]string{"status": string(contractapi.Success)}})
	if err != nil {
		return nil, err
	}
	return &contractapi.Response{Data: contractapi.Pad(data, contractapi.BlockSize)}, nil
}

func moveTokens(ctx context.Context, call *Call, from, to string, amount core.Amount) error {
	if err := core.ValidateAddress(to); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	fromBal, err := readBalance(ctx, call.Storage, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, humanAmount(fromBal), humanAmount(amount))
	}
	if err := writeBalance(ctx, call.Storage, from, fromBal-amount); err != nil {
		return err
	}
	toBal, err := readBalance(ctx, call.Storage, to)
	if err != nil {
		return err
	}
	if err := writeBalance(ctx, call.Storage, to, toBal+amount); err != nil {
		return err
	}
	call.recordTransfer(Transfer{Token: call.Env.Contract.Address, From: from, To: to, Amount: amount})
	return nil
}

func readBalance(ctx context.Context, store reader, addr string) (core.Amount, error) {
	data, err := store.Get(ctx, contract.AddressKey(tokenBalancesKey, addr))
	if errors.Is(err, ds.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading balance of %s: %w", addr, err)
	}
	var bal core.Amount
	if err := cbor.Unmarshal(data, &bal); err != nil {
		return 0, fmt.Errorf("decoding balance of %s: %w", addr, err)
	}
	return bal, nil
}

func writeBalance(ctx context.Context, store writer, addr string, bal core.Amount) error {
	data, err := cbor.Marshal(bal)
	if err != nil {
		return err
	}
	return store.Put(ctx, contract.AddressKey(tokenBalancesKey, addr), data)
}

func receiverHash(ctx context.Context, store reader, addr string) (string, error) {
	data, err := store.Get(ctx, contract.AddressKey(tokenReceiversKey, addr))
	if errors.Is(err, ds.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func humanAmount(a core.Amount) string {
	return humanize.BigComma(new(big.Int).SetUint64(uint64(a)))
}
