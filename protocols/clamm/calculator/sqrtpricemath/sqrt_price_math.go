package sqrtpricemath

import (
	"errors"
	"math/big"
	"sync"
)

var (
	// Q96 is 1.0 in Q64.96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Resolution is the number of fractional bits of Q96.
	Resolution = uint(96)

	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")
	ErrPriceOverflow = errors.New("next sqrt price out of range")

	one       = big.NewInt(1)
	maxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
)

// calc carries scratch values between the steps of a single formula.
type calc struct {
	product     *big.Int
	numerator1  *big.Int
	numerator2  *big.Int
	denominator *big.Int
	quotient    *big.Int
	term        *big.Int
	rem         *big.Int
	abs         *big.Int
}

var calcPool = sync.Pool{
	New: func() any {
		return &calc{
			product:     new(big.Int),
			numerator1:  new(big.Int),
			numerator2:  new(big.Int),
			denominator: new(big.Int),
			quotient:    new(big.Int),
			term:        new(big.Int),
			rem:         new(big.Int),
			abs:         new(big.Int),
		}
	},
}

func (c *calc) mulDiv(dest, a, b, d *big.Int) {
	c.product.Mul(a, b)
	dest.Div(c.product, d)
}

func (c *calc) mulDivRoundingUp(dest, a, b, d *big.Int) {
	c.product.Mul(a, b)
	dest.DivMod(c.product, d, c.rem)
	if c.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
}

func (c *calc) divRoundingUp(dest, a, b *big.Int) {
	dest.DivMod(a, b, c.rem)
	if c.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
}

// GetNextSqrtPriceFromAmount0RoundingUp moves the price by an amount of token0.
// Adding token0 lowers the price, removing it raises the price. Rounds up.
func GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	c := calcPool.Get().(*calc)
	defer calcPool.Put(c)
	return c.nextFromAmount0(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromAmount1RoundingDown moves the price by an amount of token1.
// Adding token1 raises the price, removing it lowers the price. Rounds down.
func GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	c := calcPool.Get().(*calc)
	defer calcPool.Put(c)
	return c.nextFromAmount1(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromInput returns the price after swapping amountIn of the input token.
func GetNextSqrtPriceFromInput(dest, sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) error {
	if sqrtPX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput returns the price after taking amountOut of the output token.
func GetNextSqrtPriceFromOutput(dest, sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) error {
	if sqrtPX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta writes liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB) into dest.
func GetAmount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) error {
	c := calcPool.Get().(*calc)
	defer calcPool.Put(c)
	return c.amount0(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

// GetAmount1Delta writes liquidity * (sqrtB - sqrtA) into dest.
func GetAmount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) {
	c := calcPool.Get().(*calc)
	defer calcPool.Put(c)
	c.amount1(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

// GetAmount0DeltaSigned returns the token0 owed for a signed liquidity change.
// Positive liquidity rounds up (the pool is paid), negative rounds down (the pool pays).
func GetAmount0DeltaSigned(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int) error {
	c := calcPool.Get().(*calc)
	defer calcPool.Put(c)

	if liquidity.Sign() < 0 {
		c.abs.Neg(liquidity)
		if err := c.amount0(dest, sqrtRatioAX96, sqrtRatioBX96, c.abs, false); err != nil {
			return err
		}
		dest.Neg(dest)
		return nil
	}
	return c.amount0(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, true)
}

// GetAmount1DeltaSigned is GetAmount0DeltaSigned for token1.
func GetAmount1DeltaSigned(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int) {
	c := calcPool.Get().(*calc)
	defer calcPool.Put(c)

	if liquidity.Sign() < 0 {
		c.abs.Neg(liquidity)
		c.amount1(dest, sqrtRatioAX96, sqrtRatioBX96, c.abs, false)
		dest.Neg(dest)
		return
	}
	c.amount1(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, true)
}

func (c *calc) nextFromAmount0(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	if amount.Sign() == 0 {
		dest.Set(sqrtPX96)
		return nil
	}

	c.numerator1.Lsh(liquidity, Resolution)
	c.product.Mul(amount, sqrtPX96)

	if add {
		c.denominator.Add(c.numerator1, c.product)
		c.mulDivRoundingUp(dest, c.numerator1, sqrtPX96, c.denominator)
		return nil
	}

	if c.numerator1.Cmp(c.product) <= 0 {
		return ErrPriceOverflow
	}
	c.denominator.Sub(c.numerator1, c.product)
	c.mulDivRoundingUp(dest, c.numerator1, sqrtPX96, c.denominator)
	if dest.Cmp(maxUint160) > 0 {
		return ErrPriceOverflow
	}
	return nil
}

func (c *calc) nextFromAmount1(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	if add {
		c.mulDiv(c.quotient, amount, Q96, liquidity)
		dest.Add(sqrtPX96, c.quotient)
		if dest.Cmp(maxUint160) > 0 {
			return ErrPriceOverflow
		}
		return nil
	}

	c.mulDivRoundingUp(c.quotient, amount, Q96, liquidity)
	if sqrtPX96.Cmp(c.quotient) <= 0 {
		return ErrPriceOverflow
	}
	dest.Sub(sqrtPX96, c.quotient)
	return nil
}

func (c *calc) amount0(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) error {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}

	c.numerator1.Lsh(liquidity, Resolution)
	c.numerator2.Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		c.mulDivRoundingUp(c.term, c.numerator1, c.numerator2, sqrtRatioBX96)
		c.divRoundingUp(dest, c.term, sqrtRatioAX96)
		return nil
	}
	c.mulDiv(c.term, c.numerator1, c.numerator2, sqrtRatioBX96)
	dest.Div(c.term, sqrtRatioAX96)
	return nil
}

func (c *calc) amount1(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	c.numerator1.Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		c.mulDivRoundingUp(dest, liquidity, c.numerator1, Q96)
		return
	}
	c.mulDiv(dest, liquidity, c.numerator1, Q96)
}
