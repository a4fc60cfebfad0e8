package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/liquiditymath"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/sqrtpricemath"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine-go/protocols/clamm/position"
	"github.com/ethereum/go-ethereum/common"
)

// ModifyLiquidityParams describes a change to one position.
type ModifyLiquidityParams struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
	// LiquidityDelta is positive to add, negative to remove and zero to collect fees only.
	LiquidityDelta *big.Int
	Salt           [32]byte
}

// PositionKey returns the ledger key the params address.
func (p ModifyLiquidityParams) PositionKey() position.Key {
	return position.Key{Owner: p.Owner, TickLower: p.TickLower, TickUpper: p.TickUpper, Salt: p.Salt}
}

// checkTicks validates a position range against the domain and the spacing.
func checkTicks(lower, upper, tickSpacing int32) error {
	if lower >= upper {
		return fmt.Errorf("%w: lower %d >= upper %d", clamm.ErrInvalidTickRange, lower, upper)
	}
	if lower < tickmath.MIN_TICK {
		return fmt.Errorf("%w: %w: %d", clamm.ErrInvalidTickRange, clamm.ErrTickLowerOutOfBounds, lower)
	}
	if upper > tickmath.MAX_TICK {
		return fmt.Errorf("%w: %w: %d", clamm.ErrInvalidTickRange, clamm.ErrTickUpperOutOfBounds, upper)
	}
	if lower%tickSpacing != 0 || upper%tickSpacing != 0 {
		return fmt.Errorf("%w: %w: [%d, %d) spacing %d", clamm.ErrInvalidTickRange, clamm.ErrTickMisaligned, lower, upper, tickSpacing)
	}
	return nil
}

// ModifyLiquidity adds or removes liquidity of one position and settles its fees.
//
// callerDelta is the principal owed by the caller net of the fees paid out to
// them; feesAccrued is the fee part alone. Both use the pool's sign convention
// so fees are negative.
func (s *State) ModifyLiquidity(p ModifyLiquidityParams) (callerDelta, feesAccrued clamm.BalanceDelta, err error) {
	if err = s.checkInitialized(); err != nil {
		return
	}
	if err = checkTicks(p.TickLower, p.TickUpper, s.tickSpacing); err != nil {
		return
	}

	liquidityDelta := p.LiquidityDelta
	if liquidityDelta == nil {
		liquidityDelta = new(big.Int)
	}

	var flippedLower, flippedUpper bool
	if liquidityDelta.Sign() != 0 {
		flippedLower, err = s.ticks.Update(
			p.TickLower, s.slot0.Tick, liquidityDelta,
			s.feeGrowthGlobal0X128, s.feeGrowthGlobal1X128,
			false, s.maxLiquidityPerTick,
		)
		if err != nil {
			return
		}
		flippedUpper, err = s.ticks.Update(
			p.TickUpper, s.slot0.Tick, liquidityDelta,
			s.feeGrowthGlobal0X128, s.feeGrowthGlobal1X128,
			true, s.maxLiquidityPerTick,
		)
		if err != nil {
			return
		}

		if flippedLower {
			if err = s.bitmap.Flip(p.TickLower, s.tickSpacing); err != nil {
				return
			}
		}
		if flippedUpper {
			if err = s.bitmap.Flip(p.TickUpper, s.tickSpacing); err != nil {
				return
			}
		}
	}

	inside0, inside1 := s.ticks.FeeGrowthInside(
		p.TickLower, p.TickUpper, s.slot0.Tick,
		s.feeGrowthGlobal0X128, s.feeGrowthGlobal1X128,
	)
	fees0, fees1, err := s.positions.Update(p.PositionKey(), liquidityDelta, inside0, inside1)
	if err != nil {
		return
	}

	// removed liquidity may leave boundary ticks unreferenced
	if liquidityDelta.Sign() < 0 {
		if flippedLower {
			s.ticks.Clear(p.TickLower)
		}
		if flippedUpper {
			s.ticks.Clear(p.TickUpper)
		}
	}

	principal, err := s.principal(p.TickLower, p.TickUpper, liquidityDelta)
	if err != nil {
		return
	}

	feesAccrued = clamm.BalanceDelta{
		Amount0: new(big.Int).Neg(fees0),
		Amount1: new(big.Int).Neg(fees1),
	}
	return principal.Add(feesAccrued), feesAccrued, nil
}

// principal computes the token amounts for liquidityDelta over [lower, upper)
// at the current price and updates the active liquidity when the range is in use.
func (s *State) principal(lower, upper int32, liquidityDelta *big.Int) (clamm.BalanceDelta, error) {
	delta := clamm.ZeroDelta()
	if liquidityDelta.Sign() == 0 {
		return delta, nil
	}

	sqrtLower, sqrtUpper := new(big.Int), new(big.Int)
	if err := tickmath.GetSqrtRatioAtTick(sqrtLower, lower); err != nil {
		return delta, err
	}
	if err := tickmath.GetSqrtRatioAtTick(sqrtUpper, upper); err != nil {
		return delta, err
	}

	switch {
	case s.slot0.Tick < lower:
		// only token0 is in range above the price
		if err := sqrtpricemath.GetAmount0DeltaSigned(delta.Amount0, sqrtLower, sqrtUpper, liquidityDelta); err != nil {
			return delta, err
		}
	case s.slot0.Tick < upper:
		if err := sqrtpricemath.GetAmount0DeltaSigned(delta.Amount0, s.slot0.SqrtPriceX96, sqrtUpper, liquidityDelta); err != nil {
			return delta, err
		}
		sqrtpricemath.GetAmount1DeltaSigned(delta.Amount1, sqrtLower, s.slot0.SqrtPriceX96, liquidityDelta)

		next, err := liquiditymath.AddDelta(s.liquidity, liquidityDelta)
		switch {
		case errors.Is(err, liquiditymath.ErrLiquidityUnderflow):
			return delta, fmt.Errorf("%w: active liquidity", clamm.ErrInsufficientLiquidity)
		case err != nil:
			return delta, fmt.Errorf("%w: active liquidity", clamm.ErrLiquidityOverflow)
		}
		s.liquidity = next
	default:
		sqrtpricemath.GetAmount1DeltaSigned(delta.Amount1, sqrtLower, sqrtUpper, liquidityDelta)
	}
	return delta, nil
}
