package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const managerABI = `[
	{"constant":true,"inputs":[{"name":"token","type":"address"}],"name":"founderOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"token","type":"address"}],"name":"poolOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// SessionSource yields the current live session. Satisfied by *Manager.
type SessionSource interface {
	Session() (Provider, error)
}

// Caller issues the auxiliary read-only contract calls enrichment needs:
// a token's total supply, and a migrated token's founder and pool addresses
// from the manager contract.
type Caller struct {
	sessions SessionSource
	manager  common.Address

	erc20 abi.ABI
	mgr   abi.ABI
}

// NewCaller builds a Caller against the given manager contract.
func NewCaller(sessions SessionSource, manager common.Address) (*Caller, error) {
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	mgr, err := abi.JSON(strings.NewReader(managerABI))
	if err != nil {
		return nil, fmt.Errorf("parse manager abi: %w", err)
	}
	return &Caller{
		sessions: sessions,
		manager:  manager,
		erc20:    erc20,
		mgr:      mgr,
	}, nil
}

func (c *Caller) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	session, err := c.sessions.Session()
	if err != nil {
		return nil, err
	}

	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := session.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	results, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("call %s: empty result", method)
	}
	return results, nil
}

// TotalSupply reads totalSupply() from the token contract.
func (c *Caller) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	results, err := c.call(ctx, token, c.erc20, "totalSupply")
	if err != nil {
		return nil, err
	}
	supply, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("totalSupply: unexpected result type %T", results[0])
	}
	return supply, nil
}

// TokenFounder reads the migrated token's founder from the manager contract.
func (c *Caller) TokenFounder(ctx context.Context, token common.Address) (common.Address, error) {
	results, err := c.call(ctx, c.manager, c.mgr, "founderOf", token)
	if err != nil {
		return common.Address{}, err
	}
	founder, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("founderOf: unexpected result type %T", results[0])
	}
	return founder, nil
}

// TokenPool reads the migrated token's paired liquidity pool from the
// manager contract.
func (c *Caller) TokenPool(ctx context.Context, token common.Address) (common.Address, error) {
	results, err := c.call(ctx, c.manager, c.mgr, "poolOf", token)
	if err != nil {
		return common.Address{}, err
	}
	pool, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("poolOf: unexpected result type %T", results[0])
	}
	return pool, nil
}

func newBlockNumber(block uint64) *big.Int {
	return new(big.Int).SetUint64(block)
}
