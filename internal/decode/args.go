package decode

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RawArgs is a raw log's argument set as produced by the upstream ABI
// unpacking layer. Fully decoded logs carry named values; partially decoded
// ones only the positional slice. Either side may be nil.
type RawArgs struct {
	Named      map[string]any
	Positional []any
}

// field locates one canonical field inside a RawArgs: the arg name tried
// first, then the positional index. Index -1 means the field does not exist
// in this layout.
type field struct {
	name  string
	index int
}

// lookup resolves a field source to its raw value. The named form wins;
// the table's index is the only positional fallback.
func (r RawArgs) lookup(f field) (any, bool) {
	if f.name != "" && r.Named != nil {
		if v, ok := r.Named[f.name]; ok {
			return v, true
		}
	}
	if f.index >= 0 && f.index < len(r.Positional) {
		return r.Positional[f.index], true
	}
	return nil, false
}

// address resolves a field to a hex address string, or NotAvailable.
func (r RawArgs) address(f field) string {
	v, ok := r.lookup(f)
	if !ok {
		return NotAvailable
	}
	switch a := v.(type) {
	case common.Address:
		return a.Hex()
	case *common.Address:
		if a != nil {
			return a.Hex()
		}
	case common.Hash:
		return common.BytesToAddress(a.Bytes()).Hex()
	case string:
		if a != "" {
			return a
		}
	case [32]byte:
		return common.BytesToAddress(a[:]).Hex()
	}
	return NotAvailable
}

// str resolves a field to a plain string, or NotAvailable.
func (r RawArgs) str(f field) string {
	v, ok := r.lookup(f)
	if !ok {
		return NotAvailable
	}
	switch s := v.(type) {
	case string:
		if s != "" {
			return strings.TrimRight(s, "\x00")
		}
	case [32]byte:
		if trimmed := strings.TrimRight(string(s[:]), "\x00"); trimmed != "" {
			return trimmed
		}
	}
	return NotAvailable
}

// bigInt resolves a field to a big integer, nil when absent or untyped.
func (r RawArgs) bigInt(f field) *big.Int {
	v, ok := r.lookup(f)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case *big.Int:
		return n
	case common.Hash:
		return new(big.Int).SetBytes(n.Bytes())
	case uint64:
		return new(big.Int).SetUint64(n)
	case int64:
		return big.NewInt(n)
	}
	return nil
}

// ScaleDecimalString renders an on-chain quantity as a decimal string with
// the given scaling, avoiding float precision loss. A nil value renders as
// "0". Trailing fractional zeros are trimmed.
func ScaleDecimalString(v *big.Int, decimals int) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}

	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(new(big.Int).Abs(v), div, new(big.Int))

	var b strings.Builder
	if v.Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteString(quo.String())

	if rem.Sign() != 0 {
		frac := rem.String()
		for len(frac) < decimals {
			frac = "0" + frac
		}
		frac = strings.TrimRight(frac, "0")
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// ScaleFloat renders an on-chain quantity as a float with the given scaling.
// Precision loss is acceptable here: the only float consumer is the
// market-cap estimate.
func ScaleFloat(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, div).Float64()
	return out
}
