package pool

import (
	"fmt"
	"math/big"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickmath"
	"github.com/holiman/uint256"
)

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

func checkAmounts(amount0, amount1 *big.Int) error {
	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		return fmt.Errorf("%w: donation (%s, %s)", clamm.ErrNegativeAmount, amount0, amount1)
	}
	return nil
}

// Donate credits amount0 and amount1 to the liquidity active at the current tick.
func (s *State) Donate(amount0, amount1 *big.Int) (clamm.BalanceDelta, error) {
	if err := s.checkInitialized(); err != nil {
		return clamm.BalanceDelta{}, err
	}
	amount0, amount1 = orZero(amount0), orZero(amount1)
	if err := checkAmounts(amount0, amount1); err != nil {
		return clamm.BalanceDelta{}, err
	}
	if s.liquidity.IsZero() {
		return clamm.BalanceDelta{}, fmt.Errorf("%w: tick %d", clamm.ErrNoLiquidityToReceiveFees, s.slot0.Tick)
	}

	l := s.liquidity.Big()
	growth0, err := growthPerLiquidity(amount0, l)
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	growth1, err := growthPerLiquidity(amount1, l)
	if err != nil {
		return clamm.BalanceDelta{}, err
	}

	s.feeGrowthGlobal0X128.Add(s.feeGrowthGlobal0X128, growth0)
	s.feeGrowthGlobal1X128.Add(s.feeGrowthGlobal1X128, growth1)
	return clamm.NewBalanceDelta(amount0, amount1), nil
}

// checkTickList validates the inputs of DonateRange.
func checkTickList(amounts0, amounts1 []*big.Int, ticks []int32) error {
	if len(ticks) == 0 {
		return fmt.Errorf("%w: empty", clamm.ErrInvalidTickList)
	}
	if len(amounts0) != len(ticks) || len(amounts1) != len(ticks) {
		return fmt.Errorf("%w: %d ticks, %d amounts0, %d amounts1",
			clamm.ErrInvalidTickList, len(ticks), len(amounts0), len(amounts1))
	}
	for i, t := range ticks {
		if t < tickmath.MIN_TICK {
			return fmt.Errorf("%w: %w: %d", clamm.ErrInvalidTickList, clamm.ErrTickLowerOutOfBounds, t)
		}
		if t > tickmath.MAX_TICK {
			return fmt.Errorf("%w: %w: %d", clamm.ErrInvalidTickList, clamm.ErrTickUpperOutOfBounds, t)
		}
		if i > 0 && t <= ticks[i-1] {
			return fmt.Errorf("%w: tick %d at %d does not follow %d", clamm.ErrInvalidTickList, t, i, ticks[i-1])
		}
	}
	return nil
}

// walk moves a virtual current tick from `from` to `to` and calls visit for each
// initialized tick a price move between them would cross, in crossing order.
// Moving up crosses ticks in (from, to]; moving down crosses ticks in (to, from].
func (s *State) walk(from, to int32, visit func(index int32, up bool)) {
	switch {
	case to > from:
		for cur := from; ; {
			next, initialized := s.bitmap.NextInitializedTickWithinOneWord(cur, s.tickSpacing, false)
			if next > to {
				return
			}
			if initialized {
				visit(next, true)
			}
			cur = next
		}
	case to < from:
		for cur := from; ; {
			next, initialized := s.bitmap.NextInitializedTickWithinOneWord(cur, s.tickSpacing, true)
			if next <= to {
				return
			}
			if initialized {
				visit(next, false)
			}
			cur = next - 1
		}
	}
}

// DonateRange credits amounts0[i] and amounts1[i] to the liquidity active at
// ticks[i], as if the price had moved to each tick in turn and back again.
// A position [lower, upper) is active at t when lower <= t < upper.
//
// Ticks must be strictly increasing. Every tick must have active liquidity; if
// any does not, the pool is left untouched. The price, the current tick and the
// active liquidity are unchanged afterwards.
func (s *State) DonateRange(amounts0, amounts1 []*big.Int, ticks []int32) (clamm.BalanceDelta, error) {
	if err := s.checkInitialized(); err != nil {
		return clamm.BalanceDelta{}, err
	}
	if err := checkTickList(amounts0, amounts1, ticks); err != nil {
		return clamm.BalanceDelta{}, err
	}

	total := clamm.ZeroDelta()
	growths0 := make([]*uint256.Int, len(ticks))
	growths1 := make([]*uint256.Int, len(ticks))

	// first pass: reads only, so a failure leaves no trace
	active := s.liquidity.Big()
	current := s.slot0.Tick
	for i, t := range ticks {
		amount0, amount1 := orZero(amounts0[i]), orZero(amounts1[i])
		if err := checkAmounts(amount0, amount1); err != nil {
			return clamm.BalanceDelta{}, err
		}

		s.walk(current, t, func(index int32, up bool) {
			net := s.ticks.LiquidityNet(index)
			if up {
				active.Add(active, net)
			} else {
				active.Sub(active, net)
			}
		})
		current = t

		if active.Sign() <= 0 {
			return clamm.BalanceDelta{}, fmt.Errorf("%w: tick %d", clamm.ErrNoLiquidityToReceiveFees, t)
		}

		var err error
		if growths0[i], err = growthPerLiquidity(amount0, active); err != nil {
			return clamm.BalanceDelta{}, err
		}
		if growths1[i], err = growthPerLiquidity(amount1, active); err != nil {
			return clamm.BalanceDelta{}, err
		}
		total.Amount0.Add(total.Amount0, amount0)
		total.Amount1.Add(total.Amount1, amount1)
	}

	// second pass: cross each boundary against the globals as they stand when
	// the virtual price passes it, then unwind back to the real tick
	cross := func(index int32, _ bool) {
		s.ticks.Cross(index, s.feeGrowthGlobal0X128, s.feeGrowthGlobal1X128)
	}
	current = s.slot0.Tick
	for i, t := range ticks {
		s.walk(current, t, cross)
		current = t
		s.feeGrowthGlobal0X128.Add(s.feeGrowthGlobal0X128, growths0[i])
		s.feeGrowthGlobal1X128.Add(s.feeGrowthGlobal1X128, growths1[i])
	}
	s.walk(current, s.slot0.Tick, cross)

	return total, nil
}
