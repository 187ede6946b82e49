package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	"github.com/oklog/ulid/v2"
)

// txsPrefix is the prefix for the transaction log.
// Structure: /txs/<ulid> -> TxRecord.
var txsPrefix = ds.NewKey("/txs")

// TxKind is the kind of a logged transaction.
type TxKind string

const (
	TxInstantiate TxKind = "instantiate"
	TxExecute     TxKind = "execute"
)

// TxRecord is an entry in the transaction log. Failed transactions are logged
// with Error set and no effects.
type TxRecord struct {
	ID        string     `cbor:"id" json:"id"`
	Kind      TxKind     `cbor:"kind" json:"kind"`
	Sender    string     `cbor:"sender" json:"sender"`
	Contract  string     `cbor:"contract" json:"contract"`
	Msg       []byte     `cbor:"msg" json:"msg"`
	Height    uint64     `cbor:"height" json:"height"`
	Time      int64      `cbor:"time" json:"time"`
	Data      []byte     `cbor:"data,omitempty" json:"data,omitempty"`
	Transfers []Transfer `cbor:"transfers,omitempty" json:"transfers,omitempty"`
	Error     string     `cbor:"error,omitempty" json:"error,omitempty"`
}

// Committed reports whether the transaction took effect.
func (r TxRecord) Committed() bool {
	return r.Error == ""
}

func (h *Host) appendTx(ctx context.Context, w writer, rec TxRecord) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding tx %s: %w", rec.ID, err)
	}
	if err := w.Put(ctx, txsPrefix.ChildString(rec.ID), data); err != nil {
		return fmt.Errorf("logging tx %s: %w", rec.ID, err)
	}
	return nil
}

// Tx returns the logged transaction with the given id. If none is found,
// ErrTxNotFound is returned.
func (h *Host) Tx(ctx context.Context, id string) (*TxRecord, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, fmt.Errorf("%w: %q is not a tx id", ErrTxNotFound, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := h.store.Get(ctx, txsPrefix.ChildString(strings.ToLower(id)))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting tx %s: %w", id, err)
	}
	var rec TxRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding tx %s: %w", id, err)
	}
	return &rec, nil
}

// Txs lists up to limit logged transactions, newest first.
func (h *Host) Txs(ctx context.Context, limit int) ([]*TxRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	results, err := h.store.Query(ctx, dsq.Query{
		Prefix: txsPrefix.String(),
		Orders: []dsq.Order{dsq.OrderByKeyDescending{}},
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying txs: %w", err)
	}
	defer func() {
		if err := results.Close(); err != nil {
			log.Errorf("closing results: %v", err)
		}
	}()

	var list []*TxRecord
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("getting next result: %w", res.Error)
		}
		var rec TxRecord
		if err := cbor.Unmarshal(res.Value, &rec); err != nil {
			return nil, fmt.Errorf("decoding tx: %w", err)
		}
		list = append(list, &rec)
	}
	return list, nil
}
