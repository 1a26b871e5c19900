package router

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/curvewatch/curvewatch/internal/decode"
)

// Event ABIs for the two manager-contract generations. The layouts mirror
// the decode tables: V1 trades carry token/ether amounts only, V2 adds the
// explicit price and the offers/funds pair.

const managerV1ABI = `[
	{"type":"event","name":"TokenCreate","anonymous":false,"inputs":[
		{"name":"creator","type":"address","indexed":false},
		{"name":"token","type":"address","indexed":false},
		{"name":"name","type":"string","indexed":false},
		{"name":"symbol","type":"string","indexed":false},
		{"name":"totalSupply","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokenPurchase","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":false},
		{"name":"account","type":"address","indexed":false},
		{"name":"tokenAmount","type":"uint256","indexed":false},
		{"name":"etherAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokenSale","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":false},
		{"name":"account","type":"address","indexed":false},
		{"name":"tokenAmount","type":"uint256","indexed":false},
		{"name":"etherAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"LiquidityAdded","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":false}]},
	{"type":"event","name":"TradeStop","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":false}]}
]`

const managerV2ABI = `[
	{"type":"event","name":"TokenCreate","anonymous":false,"inputs":[
		{"name":"creator","type":"address","indexed":false},
		{"name":"token","type":"address","indexed":false},
		{"name":"name","type":"string","indexed":false},
		{"name":"symbol","type":"string","indexed":false},
		{"name":"totalSupply","type":"uint256","indexed":false},
		{"name":"uri","type":"string","indexed":false}]},
	{"type":"event","name":"TokenPurchase","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":false},
		{"name":"account","type":"address","indexed":false},
		{"name":"price","type":"uint256","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"cost","type":"uint256","indexed":false},
		{"name":"offers","type":"uint256","indexed":false},
		{"name":"funds","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokenSale","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":false},
		{"name":"account","type":"address","indexed":false},
		{"name":"price","type":"uint256","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"cost","type":"uint256","indexed":false},
		{"name":"offers","type":"uint256","indexed":false},
		{"name":"funds","type":"uint256","indexed":false}]},
	{"type":"event","name":"LiquidityAdded","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":false},
		{"name":"fee","type":"uint256","indexed":false}]},
	{"type":"event","name":"TradeStop","anonymous":false,"inputs":[
		{"name":"token","type":"address","indexed":false}]}
]`

const pairABI = `[
	{"type":"event","name":"Swap","anonymous":false,"inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount0In","type":"uint256","indexed":false},
		{"name":"amount1In","type":"uint256","indexed":false},
		{"name":"amount0Out","type":"uint256","indexed":false},
		{"name":"amount1Out","type":"uint256","indexed":false},
		{"name":"to","type":"address","indexed":true}]}
]`

var eventKinds = map[string]decode.Kind{
	"TokenCreate":    decode.KindTokenCreate,
	"TokenPurchase":  decode.KindTokenPurchase,
	"TokenSale":      decode.KindTokenSale,
	"LiquidityAdded": decode.KindLiquidityAdded,
	"TradeStop":      decode.KindTradeStop,
}

// binding ties one (contract address, event signature) filter to its
// decoding parameters.
type binding struct {
	address common.Address
	kind    decode.Kind
	version decode.Version
	event   abi.Event
}

// registry maps contract address → topic0 → binding.
type registry map[common.Address]map[common.Hash]binding

func (r registry) add(b binding) {
	byTopic, ok := r[b.address]
	if !ok {
		byTopic = make(map[common.Hash]binding)
		r[b.address] = byTopic
	}
	byTopic[b.event.ID] = b
}

// bindings returns every filter to install.
func (r registry) bindings() []binding {
	var out []binding
	for _, byTopic := range r {
		for _, b := range byTopic {
			out = append(out, b)
		}
	}
	return out
}

// buildRegistry compiles the filter set for the monitored manager
// contracts and watched DEX pairs.
func buildRegistry(managerV1, managerV2 common.Address, pairs []common.Address) (registry, error) {
	reg := make(registry)

	v1, err := abi.JSON(strings.NewReader(managerV1ABI))
	if err != nil {
		return nil, fmt.Errorf("parse v1 manager abi: %w", err)
	}
	for name, ev := range v1.Events {
		kind, ok := eventKinds[name]
		if !ok {
			return nil, fmt.Errorf("v1 event %s has no kind mapping", name)
		}
		reg.add(binding{address: managerV1, kind: kind, version: decode.V1, event: ev})
	}

	v2, err := abi.JSON(strings.NewReader(managerV2ABI))
	if err != nil {
		return nil, fmt.Errorf("parse v2 manager abi: %w", err)
	}
	for name, ev := range v2.Events {
		kind, ok := eventKinds[name]
		if !ok {
			return nil, fmt.Errorf("v2 event %s has no kind mapping", name)
		}
		reg.add(binding{address: managerV2, kind: kind, version: decode.V2, event: ev})
	}

	pair, err := abi.JSON(strings.NewReader(pairABI))
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	swap := pair.Events["Swap"]
	for _, addr := range pairs {
		reg.add(binding{address: addr, kind: decode.KindPairSwap, version: decode.V2, event: swap})
	}

	return reg, nil
}
