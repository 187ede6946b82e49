package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/crypto/sha3"

	"github.com/cloudx-io/creditauction/contract"
	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
)

// Code is a contract implementation the host can instantiate.
type Code interface {
	// Name identifies the code. Its hash is the code hash of every instance.
	Name() string
	Instantiate(ctx context.Context, call *Call, msg []byte) (*contractapi.Response, error)
	Execute(ctx context.Context, call *Call, msg []byte) (*contractapi.Response, error)
	Query(ctx context.Context, call *Call, msg []byte) ([]byte, error)
}

// Call is the context the host gives a contract for one invocation.
type Call struct {
	Env     contract.Env
	Storage contract.Storage
	Querier *Querier

	tx *txState
}

// recordTransfer notes a token movement performed by the current transaction.
func (c *Call) recordTransfer(t Transfer) {
	c.tx.transfers = append(c.tx.transfers, t)
}

// CodeHash returns the hex sha3-256 hash of a code name.
func CodeHash(name string) string {
	sum := sha3.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// deriveAddress returns a deterministic contract address for the seq-th
// instantiation by creator of code.
func deriveAddress(codeHash, creator string, seq uint64) string {
	h := sha3.NewShake256()
	_, _ = h.Write([]byte(codeHash + "|" + creator + "|" + strconv.FormatUint(seq, 10)))
	out := make([]byte, 19)
	_, _ = h.Read(out)
	return core.AddressPrefix + hex.EncodeToString(out)
}

// AccountAddress returns the address of the account controlled by the key
// with the given PKIX DER encoding.
func AccountAddress(publicKeyDER []byte) string {
	h := sha3.NewShake256()
	_, _ = h.Write([]byte("account|"))
	_, _ = h.Write(publicKeyDER)
	out := make([]byte, 19)
	_, _ = h.Read(out)
	return core.AddressPrefix + hex.EncodeToString(out)
}

// ContractRecord is a deployed contract instance.
type ContractRecord struct {
	Address  string `cbor:"address" json:"address"`
	CodeName string `cbor:"code_name" json:"code_name"`
	CodeHash string `cbor:"code_hash" json:"code_hash"`
	Creator  string `cbor:"creator" json:"creator"`
	Height   uint64 `cbor:"height" json:"height"`
}

// Info returns the address and code hash pair used to address the contract.
func (r ContractRecord) Info() contractapi.ContractInfo {
	return contractapi.ContractInfo{Address: r.Address, CodeHash: r.CodeHash}
}

// Querier runs read-only queries from inside a contract call against the
// transaction's pending state.
type Querier struct {
	host *Host
	tx   *txState
}

var _ contract.Querier = (*Querier)(nil)

// Query sends a raw query to the target contract.
func (q *Querier) Query(ctx context.Context, target contractapi.ContractInfo, msg []byte) ([]byte, error) {
	return q.host.query(ctx, q.tx, target, msg)
}

// QueryTokenInfo queries a token contract for its token_info.
func (q *Querier) QueryTokenInfo(ctx context.Context, token contractapi.ContractInfo) (contractapi.TokenInfo, error) {
	var info contractapi.TokenInfo
	data, err := q.Query(ctx, token, []byte(`{"token_info":{}}`))
	if err != nil {
		return info, err
	}
	var envelope struct {
		TokenInfo contractapi.TokenInfo `json:"token_info"`
	}
	if err := json.Unmarshal(contractapi.Unpad(data), &envelope); err != nil {
		return info, fmt.Errorf("decode token_info: %w", err)
	}
	return envelope.TokenInfo, nil
}

// QueryHistory queries an oracle for a user's credit history.
func (q *Querier) QueryHistory(ctx context.Context, oracle contractapi.ContractInfo, user string) (contractapi.HistoryResponse, error) {
	var resp contractapi.HistoryResponse
	msg, err := json.Marshal(map[string]contractapi.GetHistory{"get_history": {User: user}})
	if err != nil {
		return resp, err
	}
	data, err := q.Query(ctx, oracle, msg)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(contractapi.Unpad(data), &resp); err != nil {
		return resp, fmt.Errorf("decode get_history: %w", err)
	}
	return resp, nil
}
