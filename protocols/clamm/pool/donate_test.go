package pool

import (
	"math/big"
	"testing"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amounts(xs ...*big.Int) []*big.Int { return xs }

// newSplitPool builds a pool at tick 0 with spacing 10 and equal liquidity in
// A = [-10, 0) and B = [0, 10).
func newSplitPool(t *testing.T) (s *State, a, b ModifyLiquidityParams) {
	t.Helper()
	s = newPool(t, 10, 0, 100)
	a = ModifyLiquidityParams{Owner: owner, TickLower: -10, TickUpper: 0}
	b = ModifyLiquidityParams{Owner: other, TickLower: 0, TickUpper: 10}
	addLiquidity(t, s, a.Owner, a.TickLower, a.TickUpper, eth(1))
	addLiquidity(t, s, b.Owner, b.TickLower, b.TickUpper, eth(1))
	return s, a, b
}

func TestDonate(t *testing.T) {
	t.Run("no active liquidity", func(t *testing.T) {
		s := newPool(t, 60, 0, 3000)
		addLiquidity(t, s, owner, 60, 120, eth(1))
		_, err := s.Donate(big.NewInt(1), big.NewInt(1))
		assert.ErrorIs(t, err, clamm.ErrNoLiquidityToReceiveFees)
	})

	t.Run("negative amount", func(t *testing.T) {
		s := newPool(t, 60, 0, 3000)
		addLiquidity(t, s, owner, -60, 60, eth(1))
		_, err := s.Donate(big.NewInt(-1), big.NewInt(1))
		assert.ErrorIs(t, err, clamm.ErrNegativeAmount)
	})

	t.Run("accrues to the global growth", func(t *testing.T) {
		s := newPool(t, 60, 0, 3000)
		addLiquidity(t, s, owner, -60, 60, eth(2))

		delta, err := s.Donate(eth(1), eth(3))
		require.NoError(t, err)
		assert.Equal(t, eth(1).String(), delta.Amount0.String())
		assert.Equal(t, eth(3).String(), delta.Amount1.String())

		fg0, fg1 := s.FeeGrowthGlobals()
		assert.Equal(t, new(big.Int).Rsh(q128, 1).String(), fg0.ToBig().String())
		assert.Equal(t, new(big.Int).Rsh(new(big.Int).Mul(q128, big.NewInt(3)), 1).String(), fg1.ToBig().String())

		fees := poke(t, s, owner, -60, 60)
		assert.Equal(t, eth(-1).String(), fees.Amount0.String())
		assert.Equal(t, eth(-3).String(), fees.Amount1.String())
	})
}

func TestDonateRange_Validation(t *testing.T) {
	s, _, _ := newSplitPool(t)
	one := big.NewInt(1)

	testCases := []struct {
		name     string
		amounts0 []*big.Int
		amounts1 []*big.Int
		ticks    []int32
		wantErrs []error
	}{
		{"empty", nil, nil, nil, []error{clamm.ErrInvalidTickList}},
		{"length mismatch", amounts(one), amounts(one, one), []int32{-5, 5}, []error{clamm.ErrInvalidTickList}},
		{"descending", amounts(one, one), amounts(one, one), []int32{20, 10}, []error{clamm.ErrInvalidTickList}},
		{"repeated", amounts(one, one), amounts(one, one), []int32{-5, -5}, []error{clamm.ErrInvalidTickList}},
		{"below the domain", amounts(one), amounts(one), []int32{-887273}, []error{clamm.ErrInvalidTickList, clamm.ErrTickLowerOutOfBounds}},
		{"above the domain", amounts(one), amounts(one), []int32{887273}, []error{clamm.ErrInvalidTickList, clamm.ErrTickUpperOutOfBounds}},
		{"negative amount", amounts(big.NewInt(-1)), amounts(one), []int32{-5}, []error{clamm.ErrNegativeAmount}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := mustJSON(t, s.View(testKey))
			_, err := s.DonateRange(tc.amounts0, tc.amounts1, tc.ticks)
			for _, want := range tc.wantErrs {
				assert.ErrorIs(t, err, want)
			}
			assert.Equal(t, before, mustJSON(t, s.View(testKey)))
		})
	}
}

func TestDonateRange_BelowCurrentTick(t *testing.T) {
	s, a, b := newSplitPool(t)
	slot0 := s.Slot0()
	donation := eth(2)

	delta, err := s.DonateRange(amounts(donation), amounts(donation), []int32{-5})
	require.NoError(t, err)
	assert.Equal(t, donation.String(), delta.Amount0.String())
	assert.Equal(t, donation.String(), delta.Amount1.String())

	// the real price never moved
	assert.Equal(t, mustJSON(t, slot0), mustJSON(t, s.Slot0()))
	assert.Equal(t, eth(1).String(), s.Liquidity().String())

	a.LiquidityDelta = eth(-1)
	_, feesA, err := s.ModifyLiquidity(a)
	require.NoError(t, err)
	assert.Equal(t, eth(-2).String(), feesA.Amount0.String())
	assert.Equal(t, eth(-2).String(), feesA.Amount1.String())

	b.LiquidityDelta = eth(-1)
	_, feesB, err := s.ModifyLiquidity(b)
	require.NoError(t, err)
	assert.True(t, feesB.IsZero(), feesB.String())
}

func TestDonateRange_Boundaries(t *testing.T) {
	t.Run("lower bound is inclusive", func(t *testing.T) {
		s, a, b := newSplitPool(t)
		_, err := s.DonateRange(amounts(eth(1)), amounts(eth(1)), []int32{-10})
		require.NoError(t, err)
		assert.Equal(t, eth(-1).String(), poke(t, s, a.Owner, a.TickLower, a.TickUpper).Amount0.String())
		assert.True(t, poke(t, s, b.Owner, b.TickLower, b.TickUpper).IsZero())
	})

	t.Run("current tick credits the range starting there", func(t *testing.T) {
		s, a, b := newSplitPool(t)
		_, err := s.DonateRange(amounts(eth(1)), amounts(eth(1)), []int32{0})
		require.NoError(t, err)
		assert.True(t, poke(t, s, a.Owner, a.TickLower, a.TickUpper).IsZero())
		assert.Equal(t, eth(-1).String(), poke(t, s, b.Owner, b.TickLower, b.TickUpper).Amount1.String())
	})

	t.Run("upper bound is exclusive", func(t *testing.T) {
		s, _, _ := newSplitPool(t)
		_, err := s.DonateRange(amounts(eth(1)), amounts(eth(1)), []int32{10})
		assert.ErrorIs(t, err, clamm.ErrNoLiquidityToReceiveFees)
	})
}

func TestDonateRange_ManyTicks(t *testing.T) {
	s, a, b := newSplitPool(t)
	c := ModifyLiquidityParams{Owner: owner, TickLower: 10, TickUpper: 20}
	addLiquidity(t, s, c.Owner, c.TickLower, c.TickUpper, eth(1))

	ticksBefore := mustJSON(t, s.View(testKey).Ticks)
	donation := eth(2)
	delta, err := s.DonateRange(
		amounts(donation, donation, donation),
		amounts(donation, new(big.Int), donation),
		[]int32{-5, 5, 15},
	)
	require.NoError(t, err)
	assert.Equal(t, eth(6).String(), delta.Amount0.String())
	assert.Equal(t, eth(4).String(), delta.Amount1.String())
	assert.NotEqual(t, ticksBefore, mustJSON(t, s.View(testKey).Ticks))

	for _, p := range []ModifyLiquidityParams{a, b, c} {
		fees := poke(t, s, p.Owner, p.TickLower, p.TickUpper)
		assert.Equal(t, eth(-2).String(), fees.Amount0.String(), "range [%d, %d)", p.TickLower, p.TickUpper)
	}
	assert.True(t, poke(t, s, b.Owner, b.TickLower, b.TickUpper).IsZero())

	t.Run("later swaps see consistent ticks", func(t *testing.T) {
		res, err := s.Swap(SwapParams{ZeroForOne: false, AmountSpecified: eth(1), SqrtPriceLimitX96: sqrtAt(t, 15)})
		require.NoError(t, err)
		assert.Equal(t, 1, res.TicksCrossed)
		assert.Equal(t, eth(1).String(), s.Liquidity().String())

		// fees earned by the swap stay with B and C, never A
		assert.True(t, poke(t, s, a.Owner, a.TickLower, a.TickUpper).IsZero())
		assert.Equal(t, -1, poke(t, s, b.Owner, b.TickLower, b.TickUpper).Amount1.Sign())
	})
}

func TestDonateRange_IsAllOrNothing(t *testing.T) {
	s, _, _ := newSplitPool(t)
	before := mustJSON(t, s.View(testKey))
	fg0, fg1 := s.FeeGrowthGlobals()

	// -5 has liquidity, 50 does not
	_, err := s.DonateRange(amounts(eth(1), eth(1)), amounts(eth(1), eth(1)), []int32{-5, 50})
	assert.ErrorIs(t, err, clamm.ErrNoLiquidityToReceiveFees)

	assert.Equal(t, before, mustJSON(t, s.View(testKey)))
	after0, after1 := s.FeeGrowthGlobals()
	assert.True(t, fg0.Eq(after0))
	assert.True(t, fg1.Eq(after1))
}

func TestDonateRange_Conservation(t *testing.T) {
	s := newPool(t, 10, 0, 100)
	type lp struct {
		p         ModifyLiquidityParams
		liquidity *big.Int
	}
	lps := []lp{
		{ModifyLiquidityParams{Owner: owner, TickLower: -30, TickUpper: 10}, big.NewInt(3_000_000_007)},
		{ModifyLiquidityParams{Owner: other, TickLower: -10, TickUpper: 30}, big.NewInt(5_000_000_011)},
		{ModifyLiquidityParams{Owner: owner, TickLower: 0, TickUpper: 20, Salt: [32]byte{7}}, big.NewInt(7_000_000_013)},
	}
	for _, l := range lps {
		l.p.LiquidityDelta = l.liquidity
		_, _, err := s.ModifyLiquidity(l.p)
		require.NoError(t, err)
	}

	amounts0 := amounts(big.NewInt(1_000_003), big.NewInt(2_000_029), big.NewInt(999_983))
	amounts1 := amounts(big.NewInt(4_000_037), big.NewInt(17), big.NewInt(3_000_017))
	delta, err := s.DonateRange(amounts0, amounts1, []int32{-25, 0, 25})
	require.NoError(t, err)
	assert.Equal(t, "4000015", delta.Amount0.String())
	assert.Equal(t, "7000071", delta.Amount1.String())

	paid0, paid1 := new(big.Int), new(big.Int)
	for _, l := range lps {
		l.p.LiquidityDelta = new(big.Int)
		_, fees, err := s.ModifyLiquidity(l.p)
		require.NoError(t, err)
		paid0.Sub(paid0, fees.Amount0)
		paid1.Sub(paid1, fees.Amount1)
	}

	// every unit is paid out except rounding dust
	assert.True(t, paid0.Cmp(delta.Amount0) <= 0)
	assert.True(t, paid1.Cmp(delta.Amount1) <= 0)
	assert.True(t, new(big.Int).Sub(delta.Amount0, paid0).Cmp(big.NewInt(6)) <= 0, paid0.String())
	assert.True(t, new(big.Int).Sub(delta.Amount1, paid1).Cmp(big.NewInt(6)) <= 0, paid1.String())
}
