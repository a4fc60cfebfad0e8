package liquiditymath

import (
	"errors"
	"math/big"

	"lukechampine.com/uint128"
)

var (
	maxUint128 = uint128.Max.Big()

	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// AddDelta applies a signed delta to an unsigned 128-bit liquidity value.
func AddDelta(x uint128.Uint128, y *big.Int) (uint128.Uint128, error) {
	if y == nil || y.Sign() == 0 {
		return x, nil
	}

	sum := x.Big()
	sum.Add(sum, y)

	if sum.Sign() < 0 {
		return uint128.Zero, ErrLiquidityUnderflow
	}
	if sum.Cmp(maxUint128) > 0 {
		return uint128.Zero, ErrLiquidityOverflow
	}
	return uint128.FromBig(sum), nil
}

// FromBig converts a non-negative value that fits in 128 bits.
func FromBig(x *big.Int) (uint128.Uint128, error) {
	if x.Sign() < 0 {
		return uint128.Zero, ErrLiquidityUnderflow
	}
	if x.Cmp(maxUint128) > 0 {
		return uint128.Zero, ErrLiquidityOverflow
	}
	return uint128.FromBig(new(big.Int).Set(x)), nil
}
