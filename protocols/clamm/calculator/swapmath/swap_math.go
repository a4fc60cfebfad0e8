package swapmath

import (
	"math/big"
	"sync"

	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/sqrtpricemath"
)

// MaxFeePips is a 100% fee in hundredths of a basis point.
const MaxFeePips = 1_000_000

var (
	feeDenominator = big.NewInt(MaxFeePips)
	one            = big.NewInt(1)
)

// Step is the outcome of swapping inside one tick range.
type Step struct {
	SqrtPriceNextX96 *big.Int
	AmountIn         *big.Int
	AmountOut        *big.Int
	FeeAmount        *big.Int
}

// NewStep allocates a Step whose fields can be reused across calls.
func NewStep() *Step {
	return &Step{
		SqrtPriceNextX96: new(big.Int),
		AmountIn:         new(big.Int),
		AmountOut:        new(big.Int),
		FeeAmount:        new(big.Int),
	}
}

type stepScratch struct {
	lessFee  *big.Int
	absOut   *big.Int
	feeBasis *big.Int
	product  *big.Int
	rem      *big.Int
}

var scratchPool = sync.Pool{
	New: func() any {
		return &stepScratch{
			lessFee:  new(big.Int),
			absOut:   new(big.Int),
			feeBasis: new(big.Int),
			product:  new(big.Int),
			rem:      new(big.Int),
		}
	},
}

// ComputeSwapStep swaps from sqrtPriceCurrentX96 toward sqrtPriceTargetX96 using
// at most amountRemaining (positive: exact input, negative: exact output) and
// writes the reached price, the amounts and the fee into out.
// The direction is implied by the relative order of the two prices.
func ComputeSwapStep(
	out *Step,
	sqrtPriceCurrentX96 *big.Int,
	sqrtPriceTargetX96 *big.Int,
	liquidity *big.Int,
	amountRemaining *big.Int,
	feePips uint32,
) error {
	s := scratchPool.Get().(*stepScratch)
	defer scratchPool.Put(s)

	zeroForOne := sqrtPriceCurrentX96.Cmp(sqrtPriceTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := new(big.Int).SetUint64(uint64(feePips))

	out.AmountIn.SetInt64(0)
	out.AmountOut.SetInt64(0)
	out.FeeAmount.SetInt64(0)
	next := out.SqrtPriceNextX96

	var err error
	if exactIn {
		s.feeBasis.Sub(feeDenominator, fee)
		s.product.Mul(amountRemaining, s.feeBasis)
		s.lessFee.Div(s.product, feeDenominator)

		if zeroForOne {
			err = sqrtpricemath.GetAmount0Delta(out.AmountIn, sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, true)
		} else {
			sqrtpricemath.GetAmount1Delta(out.AmountIn, sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, true)
		}
		if err != nil {
			return err
		}

		if s.lessFee.Cmp(out.AmountIn) >= 0 {
			next.Set(sqrtPriceTargetX96)
		} else if err = sqrtpricemath.GetNextSqrtPriceFromInput(next, sqrtPriceCurrentX96, liquidity, s.lessFee, zeroForOne); err != nil {
			return err
		}
	} else {
		s.absOut.Neg(amountRemaining)

		if zeroForOne {
			sqrtpricemath.GetAmount1Delta(out.AmountOut, sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, false)
		} else {
			err = sqrtpricemath.GetAmount0Delta(out.AmountOut, sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, false)
		}
		if err != nil {
			return err
		}

		if s.absOut.Cmp(out.AmountOut) >= 0 {
			next.Set(sqrtPriceTargetX96)
		} else if err = sqrtpricemath.GetNextSqrtPriceFromOutput(next, sqrtPriceCurrentX96, liquidity, s.absOut, zeroForOne); err != nil {
			return err
		}
	}

	reachedTarget := sqrtPriceTargetX96.Cmp(next) == 0

	// recompute for the price actually reached
	if zeroForOne {
		if !(reachedTarget && exactIn) {
			if err = sqrtpricemath.GetAmount0Delta(out.AmountIn, next, sqrtPriceCurrentX96, liquidity, true); err != nil {
				return err
			}
		}
		if !(reachedTarget && !exactIn) {
			sqrtpricemath.GetAmount1Delta(out.AmountOut, next, sqrtPriceCurrentX96, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			sqrtpricemath.GetAmount1Delta(out.AmountIn, sqrtPriceCurrentX96, next, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			if err = sqrtpricemath.GetAmount0Delta(out.AmountOut, sqrtPriceCurrentX96, next, liquidity, false); err != nil {
				return err
			}
		}
	}

	// never hand out more than was asked for
	if !exactIn && out.AmountOut.Cmp(s.absOut) > 0 {
		out.AmountOut.Set(s.absOut)
	}

	switch {
	case exactIn && !reachedTarget:
		// the remainder of the input is kept as fee
		out.FeeAmount.Sub(amountRemaining, out.AmountIn)
	case feePips >= MaxFeePips:
		out.FeeAmount.Set(out.AmountIn)
	default:
		s.feeBasis.Sub(feeDenominator, fee)
		s.product.Mul(out.AmountIn, fee)
		out.FeeAmount.DivMod(s.product, s.feeBasis, s.rem)
		if s.rem.Sign() > 0 {
			out.FeeAmount.Add(out.FeeAmount, one)
		}
	}

	return nil
}
