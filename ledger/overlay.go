package ledger

import (
	"context"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/keytransform"
)

type reader interface {
	Get(ctx context.Context, key ds.Key) ([]byte, error)
}

type writer interface {
	Put(ctx context.Context, key ds.Key, value []byte) error
}

// overlay buffers the writes of a single transaction over the committed
// store. Reads see the buffered writes. Nothing reaches the committed store
// until commit.
type overlay struct {
	base    reader
	writes  map[ds.Key][]byte
	deletes map[ds.Key]struct{}
}

func newOverlay(base reader) *overlay {
	return &overlay{
		base:    base,
		writes:  make(map[ds.Key][]byte),
		deletes: make(map[ds.Key]struct{}),
	}
}

func (o *overlay) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	if _, ok := o.deletes[key]; ok {
		return nil, ds.ErrNotFound
	}
	if v, ok := o.writes[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return o.base.Get(ctx, key)
}

func (o *overlay) Has(ctx context.Context, key ds.Key) (bool, error) {
	_, err := o.Get(ctx, key)
	if errors.Is(err, ds.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (o *overlay) Put(_ context.Context, key ds.Key, value []byte) error {
	o.writes[key] = append([]byte(nil), value...)
	delete(o.deletes, key)
	return nil
}

func (o *overlay) Delete(_ context.Context, key ds.Key) error {
	delete(o.writes, key)
	o.deletes[key] = struct{}{}
	return nil
}

// size is the number of buffered mutations.
func (o *overlay) size() int {
	return len(o.writes) + len(o.deletes)
}

// commit flushes every buffered mutation through one batch.
func (o *overlay) commit(ctx context.Context, store ds.Batching) error {
	batch, err := store.Batch(ctx)
	if err != nil {
		return fmt.Errorf("creating batch: %w", err)
	}
	for key, value := range o.writes {
		if err := batch.Put(ctx, key, value); err != nil {
			return fmt.Errorf("batch put %s: %w", key, err)
		}
	}
	for key := range o.deletes {
		if err := batch.Delete(ctx, key); err != nil {
			return fmt.Errorf("batch delete %s: %w", key, err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// prefixStore confines a contract to its own key space.
type prefixStore struct {
	inner *overlay
	xform keytransform.PrefixTransform
}

func newPrefixStore(inner *overlay, prefix ds.Key) *prefixStore {
	return &prefixStore{inner: inner, xform: keytransform.PrefixTransform{Prefix: prefix}}
}

func (p *prefixStore) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	return p.inner.Get(ctx, p.xform.ConvertKey(key))
}

func (p *prefixStore) Put(ctx context.Context, key ds.Key, value []byte) error {
	return p.inner.Put(ctx, p.xform.ConvertKey(key), value)
}

func (p *prefixStore) Delete(ctx context.Context, key ds.Key) error {
	return p.inner.Delete(ctx, p.xform.ConvertKey(key))
}
