package liquiditymath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func TestAddDelta(t *testing.T) {
	t.Run("adds", func(t *testing.T) {
		got, err := AddDelta(uint128.From64(1), big.NewInt(2))
		require.NoError(t, err)
		assert.Equal(t, uint128.From64(3), got)
	})

	t.Run("subtracts", func(t *testing.T) {
		got, err := AddDelta(uint128.From64(10), big.NewInt(-4))
		require.NoError(t, err)
		assert.Equal(t, uint128.From64(6), got)
	})

	t.Run("zero delta keeps value", func(t *testing.T) {
		got, err := AddDelta(uint128.From64(7), big.NewInt(0))
		require.NoError(t, err)
		assert.Equal(t, uint128.From64(7), got)
	})

	t.Run("underflow", func(t *testing.T) {
		_, err := AddDelta(uint128.From64(1), big.NewInt(-2))
		assert.ErrorIs(t, err, ErrLiquidityUnderflow)
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := AddDelta(uint128.Max, big.NewInt(1))
		assert.ErrorIs(t, err, ErrLiquidityOverflow)
	})

	t.Run("max is reachable", func(t *testing.T) {
		x := uint128.Max.Sub64(5)
		got, err := AddDelta(x, big.NewInt(5))
		require.NoError(t, err)
		assert.Equal(t, uint128.Max, got)
	})
}

func TestFromBig(t *testing.T) {
	_, err := FromBig(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrLiquidityUnderflow)

	_, err = FromBig(new(big.Int).Lsh(big.NewInt(1), 128))
	assert.ErrorIs(t, err, ErrLiquidityOverflow)

	got, err := FromBig(big.NewInt(99))
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(99), got)
}
