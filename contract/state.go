package contract

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	ds "github.com/ipfs/go-datastore"

	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

var (
	configKey = ds.NewKey("/config")
	bidsKey   = ds.NewKey("/bids")

	encMode = mustEncMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Storage is the key/value store a single auction instance owns.
// Any go-datastore Datastore satisfies it.
type Storage interface {
	Get(ctx context.Context, key ds.Key) ([]byte, error)
	Put(ctx context.Context, key ds.Key, value []byte) error
	Delete(ctx context.Context, key ds.Key) error
}

// Status is the lifecycle stage of an auction.
type Status uint8

const (
	Open Status = iota
	Closed
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// TokenRecord is a token contract together with its cached token_info.
type TokenRecord struct {
	Contract contractapi.ContractInfo `cbor:"contract"`
	Info     contractapi.TokenInfo    `cbor:"info"`
}

// State is the singleton auction state.
type State struct {
	Status          Status                   `cbor:"status"`
	Seller          string                   `cbor:"seller"`
	AuctionAddress  string                   `cbor:"auction_address"`
	SellToken       TokenRecord              `cbor:"sell_token"`
	BidToken        TokenRecord              `cbor:"bid_token"`
	Oracle          contractapi.ContractInfo `cbor:"oracle"`
	Expected        core.Amount              `cbor:"expected"`
	Payment         core.Amount              `cbor:"payment"`
	Description     *string                  `cbor:"description,omitempty"`
	ConsignedAmount core.Amount              `cbor:"consigned_amount"`
	CreditScore     uint64                   `cbor:"credit_score"`
	Score           uint64                   `cbor:"score"`
	AverageBid      core.Amount              `cbor:"average_bid"`
	WinningBid      *core.Amount             `cbor:"winning_bid,omitempty"`
	Bidders         []string                 `cbor:"bidders"` // sorted
}

// BidRecord is a bidder's active bid.
type BidRecord struct {
	Amount    core.Amount `cbor:"amount"`
	Credit    uint64      `cbor:"credit"`
	Timestamp uint64      `cbor:"timestamp"`
}

// FullyConsigned reports whether the escrow holds everything owed to a winner.
func (s *State) FullyConsigned() bool {
	return s.ConsignedAmount == s.Expected
}

func (s *State) hasBidder(addr string) bool {
	i := sort.SearchStrings(s.Bidders, addr)
	return i < len(s.Bidders) && s.Bidders[i] == addr
}

func (s *State) addBidder(addr string) {
	i := sort.SearchStrings(s.Bidders, addr)
	if i < len(s.Bidders) && s.Bidders[i] == addr {
		return
	}
	s.Bidders = append(s.Bidders, "")
	copy(s.Bidders[i+1:], s.Bidders[i:])
	s.Bidders[i] = addr
}

func (s *State) removeBidder(addr string) {
	i := sort.SearchStrings(s.Bidders, addr)
	if i < len(s.Bidders) && s.Bidders[i] == addr {
		s.Bidders = append(s.Bidders[:i], s.Bidders[i+1:]...)
	}
}

func bidKey(bidder string) ds.Key {
	return AddressKey(bidsKey, bidder)
}

// AddressKey returns the child of prefix that holds data for addr. The address
// is hex encoded so it is stored byte for byte as a single key segment.
func AddressKey(prefix ds.Key, addr string) ds.Key {
	return prefix.Child(ds.NewKey(hex.EncodeToString([]byte(addr))))
}

// LoadState reads the auction state from store.
func LoadState(ctx context.Context, store Storage) (*State, error) {
	data, err := store.Get(ctx, configKey)
	if err != nil {
		return nil, fmt.Errorf("load auction state: %w", err)
	}
	var st State
	if err := cbor.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode auction state: %w", err)
	}
	return &st, nil
}

func saveState(ctx context.Context, store Storage, st *State) error {
	data, err := encMode.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode auction state: %w", err)
	}
	if err := store.Put(ctx, configKey, data); err != nil {
		return fmt.Errorf("save auction state: %w", err)
	}
	return nil
}

// LoadBid reads a bidder's active bid. It returns nil, nil when there is none.
func LoadBid(ctx context.Context, store Storage, bidder string) (*BidRecord, error) {
	data, err := store.Get(ctx, bidKey(bidder))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load bid for %s: %w", bidder, err)
	}
	var bid BidRecord
	if err := cbor.Unmarshal(data, &bid); err != nil {
		return nil, fmt.Errorf("decode bid for %s: %w", bidder, err)
	}
	return &bid, nil
}

func saveBid(ctx context.Context, store Storage, bidder string, bid BidRecord) error {
	data, err := encMode.Marshal(bid)
	if err != nil {
		return fmt.Errorf("encode bid for %s: %w", bidder, err)
	}
	if err := store.Put(ctx, bidKey(bidder), data); err != nil {
		return fmt.Errorf("save bid for %s: %w", bidder, err)
	}
	return nil
}

func removeBid(ctx context.Context, store Storage, st *State, bidder string) error {
	if err := store.Delete(ctx, bidKey(bidder)); err != nil {
		return fmt.Errorf("remove bid for %s: %w", bidder, err)
	}
	st.removeBidder(bidder)
	return nil
}

// activeBids loads every active bid in bidder address order.
func activeBids(ctx context.Context, store Storage, st *State) ([]core.CoreBid, error) {
	bids := make([]core.CoreBid, 0, len(st.Bidders))
	for _, bidder := range st.Bidders {
		rec, err := LoadBid(ctx, store, bidder)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		bids = append(bids, core.CoreBid{
			Bidder:    bidder,
			Amount:    rec.Amount,
			Credit:    rec.Credit,
			Timestamp: rec.Timestamp,
		})
	}
	return bids, nil
}

// refreshStats recomputes average_bid and score from the given bids.
func refreshStats(st *State, bids []core.CoreBid) {
	st.AverageBid = core.AverageBid(bids)
	st.Score = core.AuctionScore(st.CreditScore, st.AverageBid, st.Payment, len(bids))
}
