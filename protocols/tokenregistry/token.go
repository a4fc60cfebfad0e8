package tokenregistry

import (
	"fmt"
	"math/big"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// MaxDecimals is the largest precision a token may declare.
const MaxDecimals = 18

// Token describes a currency the engine can pool. The zero address is the native currency.
type Token struct {
	Address  common.Address `json:"address" yaml:"address"`
	Name     string         `json:"name" yaml:"name"`
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
}

// ParseAmount converts a human readable amount such as "1.5" into base units.
// Negative amounts are allowed; more fractional digits than Decimals are not.
func (t Token) ParseAmount(s string) (*big.Int, error) {
	if t.Decimals > MaxDecimals {
		return nil, fmt.Errorf("token %s: decimals %d exceed %d", t.Symbol, t.Decimals, MaxDecimals)
	}
	d, err := math.LegacyNewDecFromStr(s)
	if err != nil {
		return nil, fmt.Errorf("token %s: invalid amount %q: %w", t.Symbol, s, err)
	}
	scaled := d.MulInt(math.NewIntWithDecimal(1, int(t.Decimals)))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("token %s: amount %q has more than %d decimals", t.Symbol, s, t.Decimals)
	}
	return scaled.TruncateInt().BigInt(), nil
}

// FormatAmount renders base units with the token's precision, without trailing zeros.
func (t Token) FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	if t.Decimals > MaxDecimals {
		return amount.String()
	}
	s := math.LegacyNewDecFromBigIntWithPrec(amount, int64(t.Decimals)).String()
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
