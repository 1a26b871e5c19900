// Package decode turns raw launchpad logs into the canonical event records
// published to the bus. Two incompatible manager-contract schema generations
// are supported; decoding is pure and never fails on missing optional fields.
package decode

// Version identifies the manager-contract schema generation a log was
// emitted by.
type Version int

const (
	V1 Version = iota + 1
	V2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// Kind identifies the logical contract event carried by a raw log.
type Kind int

const (
	KindTokenCreate Kind = iota
	KindTokenPurchase
	KindTokenSale
	KindLiquidityAdded
	KindTradeStop
	KindPairSwap
)

func (k Kind) String() string {
	switch k {
	case KindTokenCreate:
		return "token_create"
	case KindTokenPurchase:
		return "token_purchase"
	case KindTokenSale:
		return "token_sale"
	case KindLiquidityAdded:
		return "liquidity_added"
	case KindTradeStop:
		return "trade_stop"
	case KindPairSwap:
		return "pair_swap"
	default:
		return "unknown"
	}
}

// Category groups kinds by output channel.
type Category int

const (
	CategoryCreated Category = iota
	CategoryTrade
	CategoryMigrated
	CategoryInternal // logged only, never published
)

// Category returns the output channel group for the kind.
func (k Kind) Category() Category {
	switch k {
	case KindTokenCreate:
		return CategoryCreated
	case KindTokenPurchase, KindTokenSale:
		return CategoryTrade
	case KindLiquidityAdded:
		return CategoryMigrated
	default:
		return CategoryInternal
	}
}

// NotAvailable is the sentinel for string fields the log or an auxiliary
// call could not supply.
const NotAvailable = "N/A"

// TokenDecimals is the fixed scaling applied to on-chain quantities.
const TokenDecimals = 18

// Meta carries log envelope data the decoder copies into every record.
type Meta struct {
	// Signature is the originating transaction hash.
	Signature string

	// Slot is the block number the log was emitted in.
	Slot uint64
}

// Common holds the fields shared by every canonical record.
type Common struct {
	// ChainID is reserved for multi-chain use and is always 0.
	ChainID int `json:"chain_id"`

	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`

	// KafkaTimestamp is the record-creation wall-clock time, ISO-8601.
	// Set during enrichment, not by the decoder.
	KafkaTimestamp string `json:"kafka_timestamp"`
}

// TokenCreate is the canonical record for a new bonding-curve token.
type TokenCreate struct {
	Common

	Token         string `json:"token_address"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Creator       string `json:"creator"`
	InitialSupply string `json:"initial_supply"`
	URI           string `json:"uri"`
	BlockTime     int64  `json:"block_time"`
}

// Direction distinguishes the two trade sides sharing one record shape.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TokenTrade is the canonical record for a purchase or sale.
type TokenTrade struct {
	Common

	Direction Direction `json:"direction"`
	Wallet    string    `json:"wallet_address"`
	Token     string    `json:"token_address"`
	Amount    string    `json:"amount"`
	Decimals  int       `json:"decimals"`
	Cost      string    `json:"cost"`
	MarketCap float64   `json:"market_cap"`
	BlockTime int64     `json:"block_time"`

	// Price is only present on V2 logs and feeds the market-cap
	// computation during enrichment. Not part of the published shape.
	Price float64 `json:"-"`
}

// TokenMigration is the canonical record for a token graduating to a
// liquidity pool.
type TokenMigration struct {
	Common

	Token     string `json:"token_address"`
	Founder   string `json:"founder"`
	Pool      string `json:"pool_address"`
	Fee       string `json:"fee"`
	BlockTime int64  `json:"block_time"`
}

// TradeStop marks a token whose curve trading was halted. Logged only,
// never published.
type TradeStop struct {
	Common

	Token string `json:"token_address"`
}

// Event is the tagged union over the four canonical variants.
type Event interface {
	// EventKind reports which variant this is.
	EventKind() Kind

	// TokenAddress returns the subject token of the event.
	TokenAddress() string
}

func (e *TokenCreate) EventKind() Kind      { return KindTokenCreate }
func (e *TokenCreate) TokenAddress() string { return e.Token }

func (e *TokenTrade) EventKind() Kind {
	if e.Direction == DirectionSell {
		return KindTokenSale
	}
	return KindTokenPurchase
}
func (e *TokenTrade) TokenAddress() string { return e.Token }

func (e *TokenMigration) EventKind() Kind      { return KindLiquidityAdded }
func (e *TokenMigration) TokenAddress() string { return e.Token }

func (e *TradeStop) EventKind() Kind      { return KindTradeStop }
func (e *TradeStop) TokenAddress() string { return e.Token }
