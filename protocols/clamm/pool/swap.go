package pool

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/liquiditymath"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/swapmath"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickmath"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

var pipsDenominator = big.NewInt(int64(clamm.MaxLPFee))

// SwapParams describes a swap against one pool.
type SwapParams struct {
	// ZeroForOne swaps currency0 in for currency1 out.
	ZeroForOne bool
	// AmountSpecified is positive for exact input and negative for exact output.
	AmountSpecified *big.Int
	// SqrtPriceLimitX96 bounds how far the price may move.
	SqrtPriceLimitX96 *big.Int
}

// SwapResult is the outcome of a swap.
type SwapResult struct {
	Delta clamm.BalanceDelta
	// AmountToProtocol is the protocol's share, in the input currency.
	AmountToProtocol *big.Int
	// SwapFee is the total fee rate charged, in pips.
	SwapFee      uint32
	TicksCrossed int
}

// swapState carries the loop variables of a swap. Values are reused across steps.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *big.Int
	tick                     int32
	liquidity                uint128.Uint128
	feeGrowthGlobalX128      *uint256.Int
	amountToProtocol         *big.Int

	sqrtPriceStartX96 *big.Int
	sqrtPriceNextX96  *big.Int
	targetPrice       *big.Int
	step              *swapmath.Step
	temp              *big.Int
}

var swapStatePool = sync.Pool{
	New: func() any {
		return &swapState{
			amountSpecifiedRemaining: new(big.Int),
			amountCalculated:         new(big.Int),
			sqrtPriceX96:             new(big.Int),
			feeGrowthGlobalX128:      new(uint256.Int),
			amountToProtocol:         new(big.Int),
			sqrtPriceStartX96:        new(big.Int),
			sqrtPriceNextX96:         new(big.Int),
			targetPrice:              new(big.Int),
			step:                     swapmath.NewStep(),
			temp:                     new(big.Int),
		}
	},
}

// NoPriceLimit returns the loosest valid price limit for a swap direction.
func NoPriceLimit(zeroForOne bool) *big.Int {
	if zeroForOne {
		return new(big.Int).Add(tickmath.MIN_SQRT_RATIO, big.NewInt(1))
	}
	return new(big.Int).Sub(tickmath.MAX_SQRT_RATIO, big.NewInt(1))
}

// checkPriceLimit rejects limits on the wrong side of the current price or outside the domain.
func checkPriceLimit(current, limit *big.Int, zeroForOne bool) error {
	if zeroForOne {
		if limit.Cmp(current) >= 0 {
			return fmt.Errorf("%w: limit %s >= price %s", clamm.ErrPriceLimitAlreadyExceeded, limit, current)
		}
		if limit.Cmp(tickmath.MIN_SQRT_RATIO) <= 0 {
			return fmt.Errorf("%w: %s", clamm.ErrPriceLimitOutOfBounds, limit)
		}
		return nil
	}
	if limit.Cmp(current) <= 0 {
		return fmt.Errorf("%w: limit %s <= price %s", clamm.ErrPriceLimitAlreadyExceeded, limit, current)
	}
	if limit.Cmp(tickmath.MAX_SQRT_RATIO) >= 0 {
		return fmt.Errorf("%w: %s", clamm.ErrPriceLimitOutOfBounds, limit)
	}
	return nil
}

// Swap walks the price along the initialized ticks until the specified amount
// is used up or the price limit is reached.
func (s *State) Swap(p SwapParams) (SwapResult, error) {
	if err := s.checkInitialized(); err != nil {
		return SwapResult{}, err
	}
	if p.AmountSpecified == nil || p.AmountSpecified.Sign() == 0 {
		return SwapResult{}, clamm.ErrSwapAmountZero
	}
	if p.SqrtPriceLimitX96 == nil {
		return SwapResult{}, fmt.Errorf("%w: nil limit", clamm.ErrPriceLimitOutOfBounds)
	}

	protocolFee := s.slot0.ProtocolFee.For(p.ZeroForOne)
	swapFee := clamm.SwapFee(protocolFee, s.slot0.LPFee)
	exactInput := p.AmountSpecified.Sign() > 0
	if !exactInput && swapFee >= clamm.MaxLPFee {
		return SwapResult{}, clamm.ErrInvalidFeeForExactOut
	}
	if err := checkPriceLimit(s.slot0.SqrtPriceX96, p.SqrtPriceLimitX96, p.ZeroForOne); err != nil {
		return SwapResult{}, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.amountSpecifiedRemaining.Set(p.AmountSpecified)
	state.amountCalculated.SetInt64(0)
	state.sqrtPriceX96.Set(s.slot0.SqrtPriceX96)
	state.tick = s.slot0.Tick
	state.liquidity = s.liquidity
	state.amountToProtocol.SetInt64(0)
	if p.ZeroForOne {
		state.feeGrowthGlobalX128.Set(s.feeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobalX128.Set(s.feeGrowthGlobal1X128)
	}

	crossed, err := s.swap(state, p.SqrtPriceLimitX96, p.ZeroForOne, exactInput, protocolFee, swapFee)
	if err != nil {
		return SwapResult{}, err
	}

	s.slot0.SqrtPriceX96 = new(big.Int).Set(state.sqrtPriceX96)
	s.slot0.Tick = state.tick
	s.liquidity = state.liquidity
	if p.ZeroForOne {
		s.feeGrowthGlobal0X128 = state.feeGrowthGlobalX128.Clone()
	} else {
		s.feeGrowthGlobal1X128 = state.feeGrowthGlobalX128.Clone()
	}

	specifiedUsed := new(big.Int).Sub(p.AmountSpecified, state.amountSpecifiedRemaining)
	calculated := new(big.Int).Set(state.amountCalculated)
	var delta clamm.BalanceDelta
	if p.ZeroForOne == exactInput {
		delta = clamm.BalanceDelta{Amount0: specifiedUsed, Amount1: calculated}
	} else {
		delta = clamm.BalanceDelta{Amount0: calculated, Amount1: specifiedUsed}
	}

	return SwapResult{
		Delta:            delta,
		AmountToProtocol: new(big.Int).Set(state.amountToProtocol),
		SwapFee:          swapFee,
		TicksCrossed:     crossed,
	}, nil
}

// swap runs the step loop on state. Only tick crossings write to the pool.
func (s *State) swap(
	state *swapState,
	sqrtPriceLimitX96 *big.Int,
	zeroForOne, exactInput bool,
	protocolFee uint16,
	swapFee uint32,
) (crossed int, err error) {
	step := state.step
	for state.amountSpecifiedRemaining.Sign() != 0 && state.sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0 {
		state.sqrtPriceStartX96.Set(state.sqrtPriceX96)

		tickNext, initialized := s.bitmap.NextInitializedTickWithinOneWord(state.tick, s.tickSpacing, zeroForOne)
		if tickNext < tickmath.MIN_TICK {
			tickNext = tickmath.MIN_TICK
		} else if tickNext > tickmath.MAX_TICK {
			tickNext = tickmath.MAX_TICK
		}

		if err = tickmath.GetSqrtRatioAtTick(state.sqrtPriceNextX96, tickNext); err != nil {
			return crossed, err
		}

		if (zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0) ||
			(!zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0) {
			state.targetPrice.Set(sqrtPriceLimitX96)
		} else {
			state.targetPrice.Set(state.sqrtPriceNextX96)
		}

		err = swapmath.ComputeSwapStep(
			step,
			state.sqrtPriceStartX96,
			state.targetPrice,
			state.liquidity.Big(),
			state.amountSpecifiedRemaining,
			swapFee,
		)
		if err != nil {
			return crossed, err
		}
		state.sqrtPriceX96.Set(step.SqrtPriceNextX96)

		if exactInput {
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, state.temp.Add(step.AmountIn, step.FeeAmount))
			state.amountCalculated.Sub(state.amountCalculated, step.AmountOut)
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, step.AmountOut)
			state.amountCalculated.Add(state.amountCalculated, state.temp.Add(step.AmountIn, step.FeeAmount))
		}

		if protocolFee > 0 {
			// the protocol's share comes out of the step fee before LPs are credited
			if swapFee == uint32(protocolFee) {
				state.temp.Set(step.FeeAmount)
			} else {
				state.temp.Add(step.AmountIn, step.FeeAmount)
				state.temp.Mul(state.temp, big.NewInt(int64(protocolFee)))
				state.temp.Quo(state.temp, pipsDenominator)
			}
			step.FeeAmount.Sub(step.FeeAmount, state.temp)
			state.amountToProtocol.Add(state.amountToProtocol, state.temp)
		}

		if !state.liquidity.IsZero() {
			growth, err := growthPerLiquidity(step.FeeAmount, state.liquidity.Big())
			if err != nil {
				return crossed, err
			}
			state.feeGrowthGlobalX128.Add(state.feeGrowthGlobalX128, growth)
		}

		if state.sqrtPriceX96.Cmp(state.sqrtPriceNextX96) == 0 {
			if initialized {
				fg0, fg1 := s.feeGrowthGlobal0X128, state.feeGrowthGlobalX128
				if zeroForOne {
					fg0, fg1 = state.feeGrowthGlobalX128, s.feeGrowthGlobal1X128
				}
				liquidityNet := s.ticks.Cross(tickNext, fg0, fg1)
				if zeroForOne {
					liquidityNet.Neg(liquidityNet)
				}
				next, err := liquiditymath.AddDelta(state.liquidity, liquidityNet)
				switch {
				case errors.Is(err, liquiditymath.ErrLiquidityUnderflow):
					return crossed, fmt.Errorf("%w: crossing tick %d", clamm.ErrInsufficientLiquidity, tickNext)
				case err != nil:
					return crossed, fmt.Errorf("%w: crossing tick %d", clamm.ErrLiquidityOverflow, tickNext)
				}
				state.liquidity = next
				crossed++
			}

			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if state.sqrtPriceX96.Cmp(state.sqrtPriceStartX96) != 0 {
			state.tick, err = tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return crossed, err
			}
		}
	}
	return crossed, nil
}
