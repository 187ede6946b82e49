package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	ds "github.com/ipfs/go-datastore"

	"github.com/cloudx-io/creditauction/contract"
	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

// OracleCodeName is the code name of the built-in credit history oracle.
const OracleCodeName = "oracle"

var (
	oracleOwnerKey     = ds.NewKey("/owner")
	oracleHistoriesKey = ds.NewKey("/histories")
)

// ErrNotOracleOwner is returned when anyone but the oracle's creator adds history.
var ErrNotOracleOwner = errors.New("only the oracle owner can add history")

type oracleExecuteMsg struct {
	AddHistory *contractapi.AddHistory `json:"add_history,omitempty"`
}

type oracleQueryMsg struct {
	GetHistory *contractapi.GetHistory `json:"get_history,omitempty"`
}

// OracleCode keeps one credit history per user. Only the creator may add
// histories; anyone may read them.
type OracleCode struct{}

func (OracleCode) Name() string { return OracleCodeName }

func (OracleCode) Instantiate(ctx context.Context, call *Call, _ []byte) (*contractapi.Response, error) {
	if err := call.Storage.Put(ctx, oracleOwnerKey, []byte(call.Env.Message.Sender)); err != nil {
		return nil, err
	}
	return &contractapi.Response{}, nil
}

func (OracleCode) Execute(ctx context.Context, call *Call, msg []byte) (*contractapi.Response, error) {
	var m oracleExecuteMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("parse oracle message: %w", err)
	}
	if m.AddHistory == nil {
		return nil, fmt.Errorf("%w: oracle message", ErrUnsupported)
	}

	owner, err := call.Storage.Get(ctx, oracleOwnerKey)
	if err != nil {
		return nil, fmt.Errorf("loading oracle owner: %w", err)
	}
	if string(owner) != call.Env.Message.Sender {
		return nil, ErrNotOracleOwner
	}

	if err := core.ValidateAddress(m.AddHistory.User); err != nil {
		return nil, err
	}
	data, err := cbor.Marshal(m.AddHistory.History)
	if err != nil {
		return nil, err
	}
	if err := call.Storage.Put(ctx, contract.AddressKey(oracleHistoriesKey, m.AddHistory.User), data); err != nil {
		return nil, err
	}
	log.Debugf("oracle %s: history for %s set (%d credits)", call.Env.Contract.Address, m.AddHistory.User, len(m.AddHistory.History.Credits))
	return tokenStatus("add_history")
}

func (OracleCode) Query(ctx context.Context, call *Call, msg []byte) ([]byte, error) {
	var q oracleQueryMsg
	if err := json.Unmarshal(msg, &q); err != nil {
		return nil, fmt.Errorf("parse oracle query: %w", err)
	}
	if q.GetHistory == nil {
		return nil, fmt.Errorf("%w: oracle query", ErrUnsupported)
	}

	if err := core.ValidateAddress(q.GetHistory.User); err != nil {
		return nil, err
	}
	resp := contractapi.HistoryResponse{Message: "History found"}
	data, err := call.Storage.Get(ctx, contract.AddressKey(oracleHistoriesKey, q.GetHistory.User))
	switch {
	case errors.Is(err, ds.ErrNotFound):
		resp.Message = fmt.Sprintf("No history for user: %s", q.GetHistory.User)
	case err != nil:
		return nil, err
	default:
		var h core.History
		if err := cbor.Unmarshal(data, &h); err != nil {
			return nil, fmt.Errorf("decoding history: %w", err)
		}
		resp.History = &h
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return contractapi.Pad(out, contractapi.BlockSize), nil
}
