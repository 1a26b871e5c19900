package decode

import "fmt"

// Decode maps a raw log's argument set to its canonical variant. Missing
// optional fields degrade to NotAvailable or zero values; only an
// unpublishable kind or unknown version is an error. No I/O, no clock reads,
// no hidden state: identical inputs produce identical records.
func Decode(kind Kind, version Version, raw RawArgs, meta Meta) (Event, error) {
	common := Common{
		ChainID:   0,
		Signature: meta.Signature,
		Slot:      meta.Slot,
	}

	switch kind {
	case KindTokenCreate:
		layout, ok := createLayouts[version]
		if !ok {
			return nil, fmt.Errorf("unknown schema version %v", version)
		}
		return &TokenCreate{
			Common:        common,
			Token:         raw.address(layout.token),
			Name:          raw.str(layout.name),
			Symbol:        raw.str(layout.symbol),
			Creator:       raw.address(layout.creator),
			InitialSupply: ScaleDecimalString(raw.bigInt(layout.supply), TokenDecimals),
			URI:           raw.str(layout.uri),
		}, nil

	case KindTokenPurchase, KindTokenSale:
		layout, ok := tradeLayouts[version]
		if !ok {
			return nil, fmt.Errorf("unknown schema version %v", version)
		}
		direction := DirectionBuy
		if kind == KindTokenSale {
			direction = DirectionSell
		}
		return &TokenTrade{
			Common:    common,
			Direction: direction,
			Wallet:    raw.address(layout.account),
			Token:     raw.address(layout.token),
			Amount:    ScaleDecimalString(raw.bigInt(layout.amount), TokenDecimals),
			Decimals:  TokenDecimals,
			Cost:      ScaleDecimalString(raw.bigInt(layout.cost), TokenDecimals),
			Price:     ScaleFloat(raw.bigInt(layout.price), TokenDecimals),
			MarketCap: 0,
		}, nil

	case KindLiquidityAdded:
		layout, ok := migrationLayouts[version]
		if !ok {
			return nil, fmt.Errorf("unknown schema version %v", version)
		}
		return &TokenMigration{
			Common:  common,
			Token:   raw.address(layout.token),
			Founder: NotAvailable,
			Pool:    NotAvailable,
			Fee:     ScaleDecimalString(raw.bigInt(layout.fee), TokenDecimals),
		}, nil

	case KindTradeStop:
		layout, ok := stopLayouts[version]
		if !ok {
			return nil, fmt.Errorf("unknown schema version %v", version)
		}
		return &TradeStop{
			Common: common,
			Token:  raw.address(layout.token),
		}, nil

	default:
		return nil, fmt.Errorf("kind %v has no canonical variant", kind)
	}
}
