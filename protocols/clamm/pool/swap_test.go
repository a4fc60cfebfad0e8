package pool

import (
	"math/big"
	"testing"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	minLimit = NoPriceLimit(true)
	maxLimit = NoPriceLimit(false)
)

func TestSwap_ExactInputAtParity(t *testing.T) {
	s := newPool(t, 60, 0, 3000)
	addLiquidity(t, s, owner, -120, 120, eth(1))

	res, err := s.Swap(SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100), SqrtPriceLimitX96: minLimit})
	require.NoError(t, err)

	assert.Equal(t, "100", res.Delta.Amount0.String())
	assert.Equal(t, "-98", res.Delta.Amount1.String())
	assert.Equal(t, uint32(3000), res.SwapFee)
	assert.Zero(t, res.TicksCrossed)
	assert.Zero(t, res.AmountToProtocol.Sign())

	slot0 := s.Slot0()
	assert.Equal(t, int32(-1), slot0.Tick)
	assert.True(t, slot0.SqrtPriceX96.Cmp(sqrtAt(t, 0)) < 0)

	// the single unit of fee is spread over the active liquidity
	fg0, fg1 := s.FeeGrowthGlobals()
	assert.Equal(t, new(big.Int).Div(q128, oneEther).String(), fg0.ToBig().String())
	assert.True(t, fg1.IsZero())
}

func TestSwap_ExactOutput(t *testing.T) {
	s := newPool(t, 60, 0, 3000)
	addLiquidity(t, s, owner, -120, 120, eth(1))

	res, err := s.Swap(SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-98), SqrtPriceLimitX96: minLimit})
	require.NoError(t, err)

	assert.Equal(t, "-98", res.Delta.Amount1.String())
	assert.True(t, res.Delta.Amount0.Cmp(big.NewInt(98)) > 0)
	assert.True(t, res.Delta.Amount0.Cmp(big.NewInt(101)) <= 0)
}

func TestSwap_OneForZero(t *testing.T) {
	s := newPool(t, 60, 0, 3000)
	addLiquidity(t, s, owner, -120, 120, eth(1))

	res, err := s.Swap(SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(100), SqrtPriceLimitX96: maxLimit})
	require.NoError(t, err)

	assert.Equal(t, "-98", res.Delta.Amount0.String())
	assert.Equal(t, "100", res.Delta.Amount1.String())
	assert.Equal(t, int32(0), s.Slot0().Tick)

	fg0, fg1 := s.FeeGrowthGlobals()
	assert.True(t, fg0.IsZero())
	assert.False(t, fg1.IsZero())
}

func TestSwap_CrossesTicks(t *testing.T) {
	s := newPool(t, 60, 0, 3000)
	addLiquidity(t, s, owner, -60, 60, eth(1))
	limit := sqrtAt(t, -120)

	res, err := s.Swap(SwapParams{ZeroForOne: true, AmountSpecified: eth(1000), SqrtPriceLimitX96: limit})
	require.NoError(t, err)

	assert.Equal(t, 1, res.TicksCrossed)
	assert.True(t, s.Liquidity().IsZero())
	assert.Equal(t, int32(-120), s.Slot0().Tick)
	assert.Zero(t, s.Slot0().SqrtPriceX96.Cmp(limit))
	assert.Equal(t, 1, res.Delta.Amount0.Sign())
	assert.Equal(t, -1, res.Delta.Amount1.Sign())

	// the crossed tick now remembers the growth that happened above it
	fg0, _ := s.FeeGrowthGlobals()
	lower, ok := s.Tick(-60)
	require.True(t, ok)
	assert.Equal(t, fg0.ToBig().String(), lower.FeeGrowthOutside0X128.String())

	t.Run("and back again", func(t *testing.T) {
		res, err := s.Swap(SwapParams{ZeroForOne: false, AmountSpecified: eth(1000), SqrtPriceLimitX96: sqrtAt(t, 0)})
		require.NoError(t, err)
		assert.Equal(t, 1, res.TicksCrossed)
		assert.Equal(t, eth(1).String(), s.Liquidity().String())
		assert.Equal(t, int32(0), s.Slot0().Tick)
	})
}

func TestSwap_FeesReachPositions(t *testing.T) {
	s := newPool(t, 60, 0, 3000)
	liquidity := eth(1)
	addLiquidity(t, s, owner, -120, 120, liquidity)

	_, err := s.Swap(SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1e15), SqrtPriceLimitX96: minLimit})
	require.NoError(t, err)

	fg0, _ := s.FeeGrowthGlobals()
	want := new(big.Int).Rsh(new(big.Int).Mul(liquidity, fg0.ToBig()), 128)
	require.Equal(t, 1, want.Sign())

	fees := poke(t, s, owner, -120, 120)
	assert.Equal(t, new(big.Int).Neg(want).String(), fees.Amount0.String())
	assert.Zero(t, fees.Amount1.Sign())

	// a second poke finds nothing new
	assert.True(t, poke(t, s, owner, -120, 120).IsZero())
}

func TestSwap_ProtocolFee(t *testing.T) {
	t.Run("share of the input", func(t *testing.T) {
		s := newPool(t, 60, 0, 3000)
		require.NoError(t, s.SetProtocolFee(clamm.ProtocolFee{ZeroForOne: 1000}))
		addLiquidity(t, s, owner, -120, 120, eth(1))

		res, err := s.Swap(SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1_000_000), SqrtPriceLimitX96: minLimit})
		require.NoError(t, err)
		assert.Equal(t, uint32(3997), res.SwapFee)
		assert.Equal(t, "1000", res.AmountToProtocol.String())
		assert.Equal(t, "1000000", res.Delta.Amount0.String())
	})

	t.Run("other direction is not charged", func(t *testing.T) {
		s := newPool(t, 60, 0, 3000)
		require.NoError(t, s.SetProtocolFee(clamm.ProtocolFee{ZeroForOne: 1000}))
		addLiquidity(t, s, owner, -120, 120, eth(1))

		res, err := s.Swap(SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(1_000_000), SqrtPriceLimitX96: maxLimit})
		require.NoError(t, err)
		assert.Equal(t, uint32(3000), res.SwapFee)
		assert.Zero(t, res.AmountToProtocol.Sign())
	})

	t.Run("whole fee when the lp fee is zero", func(t *testing.T) {
		s := newPool(t, 60, 0, 0)
		require.NoError(t, s.SetProtocolFee(clamm.ProtocolFee{ZeroForOne: 1000}))
		addLiquidity(t, s, owner, -120, 120, eth(1))

		res, err := s.Swap(SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1_000_000), SqrtPriceLimitX96: minLimit})
		require.NoError(t, err)
		assert.Equal(t, uint32(1000), res.SwapFee)
		assert.Equal(t, 1, res.AmountToProtocol.Sign())

		fg0, _ := s.FeeGrowthGlobals()
		assert.True(t, fg0.IsZero())
	})
}

func TestSwap_Errors(t *testing.T) {
	s := newPool(t, 60, 0, 3000)
	addLiquidity(t, s, owner, -120, 120, eth(1))
	current := sqrtAt(t, 0)

	testCases := []struct {
		name    string
		params  SwapParams
		wantErr error
	}{
		{"zero amount", SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(0), SqrtPriceLimitX96: minLimit}, clamm.ErrSwapAmountZero},
		{"nil amount", SwapParams{ZeroForOne: true, SqrtPriceLimitX96: minLimit}, clamm.ErrSwapAmountZero},
		{"limit above price selling currency0", SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1), SqrtPriceLimitX96: current}, clamm.ErrPriceLimitAlreadyExceeded},
		{"limit below price selling currency1", SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(1), SqrtPriceLimitX96: current}, clamm.ErrPriceLimitAlreadyExceeded},
		{"limit at the minimum", SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1), SqrtPriceLimitX96: tickmath.MIN_SQRT_RATIO}, clamm.ErrPriceLimitOutOfBounds},
		{"limit at the maximum", SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(1), SqrtPriceLimitX96: tickmath.MAX_SQRT_RATIO}, clamm.ErrPriceLimitOutOfBounds},
		{"nil limit", SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(1)}, clamm.ErrPriceLimitOutOfBounds},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Swap(tc.params)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("exact output with a full fee", func(t *testing.T) {
		c := s.Clone()
		require.NoError(t, c.SetLPFee(clamm.MaxLPFee))
		_, err := c.Swap(SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1), SqrtPriceLimitX96: minLimit})
		assert.ErrorIs(t, err, clamm.ErrInvalidFeeForExactOut)
	})
}

func TestSwap_ThroughEmptyRange(t *testing.T) {
	s := newPool(t, 60, 0, 3000)
	addLiquidity(t, s, owner, -600, -480, eth(1))
	require.True(t, s.Liquidity().IsZero())

	res, err := s.Swap(SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1000), SqrtPriceLimitX96: minLimit})
	require.NoError(t, err)

	// the price jumps through the gap and the input is used inside the range
	assert.Equal(t, 1, res.TicksCrossed)
	assert.Equal(t, "1000", res.Delta.Amount0.String())
	assert.True(t, s.Slot0().Tick < -480 && s.Slot0().Tick >= -600)
	assert.Equal(t, eth(1).String(), s.Liquidity().String())
}
