package node

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/cloudx-io/creditauction/contractapi"
	"github.com/cloudx-io/creditauction/core"
	"github.com/cloudx-io/creditauction/ledger"
)

// Genesis seeds an empty ledger with tokens and an oracle owned by Admin.
type Genesis struct {
	Admin     string                       `json:"admin"`
	Tokens    []ledger.TokenInstantiateMsg `json:"tokens"`
	Histories map[string]core.History      `json:"histories,omitempty"`
}

// Deployment lists the contracts created from a genesis file.
type Deployment struct {
	Tokens map[string]contractapi.ContractInfo `json:"tokens"` // by symbol
	Oracle contractapi.ContractInfo            `json:"oracle"`
}

// LoadGenesis reads a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding genesis: %w", err)
	}
	if g.Admin == "" {
		return nil, fmt.Errorf("%w: genesis admin is required", ErrBadRequest)
	}
	return &g, nil
}

// Apply instantiates the genesis tokens and oracle, then loads every credit
// history. Users are loaded in address order so addresses and heights are
// reproducible.
func (g *Genesis) Apply(ctx context.Context, host *ledger.Host) (*Deployment, error) {
	d := &Deployment{Tokens: make(map[string]contractapi.ContractInfo, len(g.Tokens))}

	for _, token := range g.Tokens {
		if _, ok := d.Tokens[token.Symbol]; ok {
			return nil, fmt.Errorf("%w: duplicate token %s", ErrBadRequest, token.Symbol)
		}
		info, err := g.instantiate(ctx, host, ledger.TokenCodeName, token)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", token.Symbol, err)
		}
		d.Tokens[token.Symbol] = info
	}

	oracle, err := g.instantiate(ctx, host, ledger.OracleCodeName, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	d.Oracle = oracle

	users := make([]string, 0, len(g.Histories))
	for user := range g.Histories {
		users = append(users, user)
	}
	sort.Strings(users)
	for _, user := range users {
		msg, err := json.Marshal(map[string]contractapi.AddHistory{
			"add_history": {User: user, History: g.Histories[user]},
		})
		if err != nil {
			return nil, err
		}
		if _, err := host.Execute(ctx, g.Admin, oracle.Address, msg); err != nil {
			return nil, fmt.Errorf("history of %s: %w", user, err)
		}
	}

	log.Infof("genesis applied: %d tokens, %d histories", len(d.Tokens), len(users))
	return d, nil
}

func (g *Genesis) instantiate(ctx context.Context, host *ledger.Host, code string, msg any) (contractapi.ContractInfo, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return contractapi.ContractInfo{}, err
	}
	res, err := host.Instantiate(ctx, g.Admin, code, data)
	if err != nil {
		return contractapi.ContractInfo{}, err
	}
	return contractapi.ContractInfo{Address: res.Contract, CodeHash: ledger.CodeHash(code)}, nil
}
