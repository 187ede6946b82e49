package ledger

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	ds "github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/oklog/ulid/v2"

	"github.com/cloudx-io/creditauction/contract"
	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/contractapi/parsing"
	"github.com/cloudx-io/creditauction/core"
)

// maxDepth bounds how deeply emitted messages may trigger further messages.
const maxDepth = 16

var (
	log = logging.Logger("auction/ledger")

	// registryPrefix is the prefix for deployed contracts.
	// Structure: /registry/<hex address> -> ContractRecord.
	registryPrefix = ds.NewKey("/registry")

	// contractsPrefix is the prefix for contract storage.
	// Structure: /contracts/<hex address>/<key> -> contract defined.
	contractsPrefix = ds.NewKey("/contracts")

	// heightKey holds the height of the last committed transaction.
	heightKey = ds.NewKey("/meta/height")

	// seqKey holds the number of contracts instantiated so far.
	seqKey = ds.NewKey("/meta/seq")
)

// Transfer is a token movement performed by a committed transaction.
type Transfer struct {
	Token  string      `cbor:"token" json:"token"`
	From   string      `cbor:"from" json:"from"`
	To     string      `cbor:"to" json:"to"`
	Amount core.Amount `cbor:"amount" json:"amount"`
}

// TxResult is the outcome of a committed transaction.
type TxResult struct {
	ID        string
	Height    uint64
	Time      time.Time
	Contract  string // target, or the new address for an instantiate
	Data      []byte
	Transfers []Transfer
}

type txState struct {
	overlay   *overlay
	height    uint64
	time      time.Time
	transfers []Transfer
	depth     int
}

// Host executes contract transactions one at a time. Every transaction runs
// against a write overlay; messages a contract emits are dispatched depth-first
// in emission order inside the same overlay. Any error discards the overlay,
// success commits it in a single batch.
type Host struct {
	mu      sync.Mutex
	store   ds.Batching
	codes   map[string]Code // by code hash
	clock   func() time.Time
	entropy io.Reader
}

// Option configures a Host.
type Option func(*Host)

// WithClock sets the source of block times.
func WithClock(clock func() time.Time) Option {
	return func(h *Host) {
		h.clock = clock
	}
}

// WithCodes registers additional contract code.
func WithCodes(codes ...Code) Option {
	return func(h *Host) {
		for _, c := range codes {
			h.codes[CodeHash(c.Name())] = c
		}
	}
}

// NewHost returns a host over store with the token, oracle and auction code
// registered.
func NewHost(store ds.Batching, opts ...Option) *Host {
	h := &Host{
		store:   store,
		codes:   make(map[string]Code),
		clock:   time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	WithCodes(TokenCode{}, OracleCode{}, AuctionCode{})(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Instantiate deploys a new instance of the named code on behalf of sender.
func (h *Host) Instantiate(ctx context.Context, sender, codeName string, msg []byte) (*TxResult, error) {
	if err := core.ValidateAddress(sender); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	codeHash := CodeHash(codeName)
	code, ok := h.codes[codeHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, codeName)
	}

	tx, err := h.begin(ctx)
	if err != nil {
		return nil, err
	}

	seq, err := h.readUint(ctx, tx.overlay, seqKey)
	if err != nil {
		return nil, err
	}
	rec := ContractRecord{
		Address:  deriveAddress(codeHash, sender, seq),
		CodeName: codeName,
		CodeHash: codeHash,
		Creator:  sender,
		Height:   tx.height,
	}

	data, err := h.instantiate(ctx, tx, code, rec, seq, sender, msg)
	return h.finish(ctx, tx, TxInstantiate, sender, rec.Address, msg, data, err)
}

func (h *Host) instantiate(ctx context.Context, tx *txState, code Code, rec ContractRecord, seq uint64, sender string, msg []byte) ([]byte, error) {
	if err := h.writeUint(ctx, tx.overlay, seqKey, seq+1); err != nil {
		return nil, err
	}
	if err := h.saveContract(ctx, tx.overlay, rec); err != nil {
		return nil, err
	}
	call := h.newCall(tx, rec, contract.MessageInfo{Sender: sender})
	resp, err := code.Instantiate(ctx, call, msg)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", rec.CodeName, err)
	}
	if err := h.dispatch(ctx, tx, rec, resp.Messages); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Execute runs msg against the contract at target on behalf of sender.
func (h *Host) Execute(ctx context.Context, sender, target string, msg []byte) (*TxResult, error) {
	if err := core.ValidateAddress(sender); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.begin(ctx)
	if err != nil {
		return nil, err
	}

	var data []byte
	rec, err := h.loadContract(ctx, tx.overlay, target)
	if err == nil {
		data, err = h.execute(ctx, tx, contract.MessageInfo{Sender: sender}, rec, msg)
	}
	return h.finish(ctx, tx, TxExecute, sender, target, msg, data, err)
}

func (h *Host) execute(ctx context.Context, tx *txState, info contract.MessageInfo, rec ContractRecord, msg []byte) ([]byte, error) {
	code, ok := h.codes[rec.CodeHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, rec.CodeName)
	}
	resp, err := code.Execute(ctx, h.newCall(tx, rec, info), msg)
	if err != nil {
		return nil, err
	}
	if err := h.dispatch(ctx, tx, rec, resp.Messages); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// dispatch runs emitted messages depth-first with the emitter as sender.
func (h *Host) dispatch(ctx context.Context, tx *txState, emitter ContractRecord, msgs []contractapi.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx.depth++
	defer func() { tx.depth-- }()
	if tx.depth > maxDepth {
		return ErrDepthExceeded
	}

	info := contract.MessageInfo{Sender: emitter.Address, SenderCodeHash: emitter.CodeHash}
	for _, m := range msgs {
		target := m.Target()
		rec, err := h.loadContract(ctx, tx.overlay, target.Address)
		if err != nil {
			return fmt.Errorf("dispatch %T: %w", m, err)
		}
		if rec.CodeHash != target.CodeHash {
			return fmt.Errorf("dispatch %T to %s: %w", m, target.Address, ErrCodeHashMismatch)
		}
		payload, err := encodeMessage(m)
		if err != nil {
			return err
		}
		if _, err := h.execute(ctx, tx, info, rec, payload); err != nil {
			return fmt.Errorf("dispatch %T to %s: %w", m, target.Address, err)
		}
	}
	return nil
}

func encodeMessage(m contractapi.Message) ([]byte, error) {
	switch msg := m.(type) {
	case contractapi.TransferMsg:
		return json.Marshal(map[string]any{"transfer": tokenTransfer{Recipient: msg.Recipient, Amount: msg.Amount}})
	case contractapi.RegisterReceiveMsg:
		return json.Marshal(map[string]any{"register_receive": registerReceive{CodeHash: msg.CodeHash}})
	case contractapi.ReceiveCallbackMsg:
		return parsing.EncodeExecuteMsg(msg.Receive)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, m)
	}
}

// Query runs a read-only query against the committed state.
func (h *Host) Query(ctx context.Context, target string, msg []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := &txState{overlay: newOverlay(h.store), time: h.clock()}
	return h.query(ctx, tx, contractapi.ContractInfo{Address: target}, msg)
}

// query runs against the pending state of tx. An empty code hash skips the
// code hash check.
func (h *Host) query(ctx context.Context, tx *txState, target contractapi.ContractInfo, msg []byte) ([]byte, error) {
	rec, err := h.loadContract(ctx, tx.overlay, target.Address)
	if err != nil {
		return nil, err
	}
	if target.CodeHash != "" && rec.CodeHash != target.CodeHash {
		return nil, fmt.Errorf("query %s: %w", target.Address, ErrCodeHashMismatch)
	}
	code, ok := h.codes[rec.CodeHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, rec.CodeName)
	}
	return code.Query(ctx, h.newCall(tx, rec, contract.MessageInfo{}), msg)
}

// Height returns the height of the last committed transaction, 0 for an
// empty ledger.
func (h *Host) Height(ctx context.Context) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readUint(ctx, h.store, heightKey)
}

// Contract returns the deployed contract at address.
func (h *Host) Contract(ctx context.Context, address string) (ContractRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadContract(ctx, h.store, address)
}

// Balance returns the balance of address on the token contract.
func (h *Host) Balance(ctx context.Context, token, address string) (core.Amount, error) {
	msg, err := json.Marshal(map[string]any{"balance": balanceQuery{Address: address}})
	if err != nil {
		return 0, err
	}
	data, err := h.Query(ctx, token, msg)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Balance struct {
			Amount core.Amount `json:"amount"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(contractapi.Unpad(data), &resp); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return resp.Balance.Amount, nil
}

func (h *Host) newCall(tx *txState, rec ContractRecord, info contract.MessageInfo) *Call {
	return &Call{
		Env: contract.Env{
			Block:    contract.BlockInfo{Height: tx.height, Time: uint64(tx.time.Unix())},
			Message:  info,
			Contract: rec.Info(),
		},
		Storage: newPrefixStore(tx.overlay, contract.AddressKey(contractsPrefix, rec.Address)),
		Querier: &Querier{host: h, tx: tx},
		tx:      tx,
	}
}

func (h *Host) begin(ctx context.Context) (*txState, error) {
	tx := &txState{overlay: newOverlay(h.store), time: h.clock().UTC()}
	height, err := h.readUint(ctx, tx.overlay, heightKey)
	if err != nil {
		return nil, err
	}
	tx.height = height + 1
	if err := h.writeUint(ctx, tx.overlay, heightKey, tx.height); err != nil {
		return nil, err
	}
	return tx, nil
}

// finish commits tx when execErr is nil and discards it otherwise. Either way
// the outcome is appended to the tx log.
func (h *Host) finish(ctx context.Context, tx *txState, kind TxKind, sender, target string, msg, data []byte, execErr error) (*TxResult, error) {
	id := strings.ToLower(ulid.MustNew(ulid.Timestamp(tx.time), h.entropy).String())
	record := TxRecord{
		ID:       id,
		Kind:     kind,
		Sender:   sender,
		Contract: target,
		Msg:      msg,
		Height:   tx.height,
		Time:     tx.time.Unix(),
	}

	if execErr != nil {
		record.Error = execErr.Error()
		if err := h.appendTx(ctx, h.store, record); err != nil {
			log.Errorf("recording failed tx %s: %v", id, err)
		}
		log.Warnf("tx %s %s %s rolled back: %v", id, kind, target, execErr)
		return nil, execErr
	}

	record.Data = data
	record.Transfers = tx.transfers
	if err := h.appendTx(ctx, tx.overlay, record); err != nil {
		return nil, err
	}
	writes := tx.overlay.size()
	if err := tx.overlay.commit(ctx, h.store); err != nil {
		return nil, fmt.Errorf("committing tx %s: %w", id, err)
	}
	log.Infof("tx %s %s %s committed at height %d (%d writes, %d transfers)", id, kind, target, tx.height, writes, len(tx.transfers))

	return &TxResult{
		ID:        id,
		Height:    tx.height,
		Time:      tx.time,
		Contract:  target,
		Data:      data,
		Transfers: tx.transfers,
	}, nil
}

func (h *Host) loadContract(ctx context.Context, r reader, address string) (ContractRecord, error) {
	var rec ContractRecord
	if err := core.ValidateAddress(address); err != nil {
		return rec, fmt.Errorf("%w: %w", ErrUnknownContract, err)
	}
	data, err := r.Get(ctx, contract.AddressKey(registryPrefix, address))
	if errors.Is(err, ds.ErrNotFound) {
		return rec, fmt.Errorf("%w: %s", ErrUnknownContract, address)
	}
	if err != nil {
		return rec, fmt.Errorf("loading contract %s: %w", address, err)
	}
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decoding contract %s: %w", address, err)
	}
	return rec, nil
}

func (h *Host) saveContract(ctx context.Context, w writer, rec ContractRecord) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding contract %s: %w", rec.Address, err)
	}
	return w.Put(ctx, contract.AddressKey(registryPrefix, rec.Address), data)
}

func (h *Host) readUint(ctx context.Context, r reader, key ds.Key) (uint64, error) {
	data, err := r.Get(ctx, key)
	if errors.Is(err, ds.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("reading %s: corrupt value", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (h *Host) writeUint(ctx context.Context, w writer, key ds.Key, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return w.Put(ctx, key, buf[:])
}
