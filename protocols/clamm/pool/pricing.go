package pool

import (
	"math"
	"math/big"

	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/sqrtpricemath"
)

var q96F = new(big.Float).SetInt(sqrtpricemath.Q96)

// VirtualReserves returns the reserves a constant-product pool would need to
// match the active liquidity at the current price.
func (s *State) VirtualReserves() (reserve0, reserve1 *big.Int, err error) {
	if err := s.checkInitialized(); err != nil {
		return nil, nil, err
	}
	l := s.liquidity.Big()
	reserve0 = new(big.Int).Div(new(big.Int).Lsh(l, 96), s.slot0.SqrtPriceX96)
	reserve1 = new(big.Int).Div(new(big.Int).Mul(l, s.slot0.SqrtPriceX96), sqrtpricemath.Q96)
	return reserve0, reserve1, nil
}

// SpotPrice returns the price of one whole unit of the input currency in the
// output currency, scaled by the output currency's decimals.
// For example, with a 6-decimal output currency a result of 3045123456 means 3045.123456.
func (s *State) SpotPrice(zeroForOne bool, decimals0, decimals1 uint8) (*big.Int, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	decimalsIn := decimals0
	if !zeroForOne {
		decimalsIn = decimals1
	}

	// token1 per token0 in raw units
	root := new(big.Float).Quo(new(big.Float).SetInt(s.slot0.SqrtPriceX96), q96F)
	price := new(big.Float).Mul(root, root)
	if !zeroForOne {
		price.Quo(big.NewFloat(1), price)
	}

	// raw output units per whole input unit are already in output decimals
	price.Mul(price, big.NewFloat(math.Pow(10, float64(decimalsIn))))
	sp, _ := price.Int(nil)
	return sp, nil
}
