package clamm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var (
	token0 = common.HexToAddress("0x1000000000000000000000000000000000000001")
	token1 = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestPoolKeyValidate(t *testing.T) {
	valid := PoolKey{Currency0: token0, Currency1: token1, Fee: 3000, TickSpacing: 60}

	testCases := []struct {
		name   string
		mutate func(k *PoolKey)
		err    error
	}{
		{"valid", func(k *PoolKey) {}, nil},
		{"native currency0", func(k *PoolKey) { k.Currency0 = NativeCurrency }, nil},
		{"dynamic fee", func(k *PoolKey) { k.Fee = DynamicFeeFlag }, nil},
		{"unsorted", func(k *PoolKey) { k.Currency0, k.Currency1 = k.Currency1, k.Currency0 }, ErrCurrenciesOutOfOrder},
		{"equal", func(k *PoolKey) { k.Currency1 = k.Currency0 }, ErrCurrenciesOutOfOrder},
		{"spacing zero", func(k *PoolKey) { k.TickSpacing = 0 }, ErrTickSpacingTooSmall},
		{"spacing negative", func(k *PoolKey) { k.TickSpacing = -1 }, ErrTickSpacingTooSmall},
		{"spacing too large", func(k *PoolKey) { k.TickSpacing = MaxTickSpacing + 1 }, ErrTickSpacingTooLarge},
		{"fee too large", func(k *PoolKey) { k.Fee = MaxLPFee + 1 }, ErrInvalidFee},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			k := valid
			tc.mutate(&k)
			err := k.Validate()
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestPoolKeyID(t *testing.T) {
	a := PoolKey{Currency0: token0, Currency1: token1, Fee: 3000, TickSpacing: 60}
	b := a
	assert.Equal(t, a.ID(), b.ID())

	b.Fee = 500
	assert.NotEqual(t, a.ID(), b.ID())

	c := a
	c.TickSpacing = -60
	assert.NotEqual(t, a.ID(), c.ID())

	d := a
	d.Hooks = common.HexToAddress("0x01")
	assert.NotEqual(t, a.ID(), d.ID())
}

func TestBalanceDelta(t *testing.T) {
	a := NewBalanceDelta(big.NewInt(5), big.NewInt(-3))
	b := NewBalanceDelta(big.NewInt(1), big.NewInt(4))

	assert.Equal(t, "(6, 1)", a.Add(b).String())
	assert.Equal(t, "(4, -7)", a.Sub(b).String())
	assert.Equal(t, "(-5, 3)", a.Neg().String())
	assert.True(t, ZeroDelta().IsZero())
	assert.True(t, BalanceDelta{}.IsZero())
	assert.False(t, a.IsZero())

	// operands are untouched
	assert.Equal(t, "(5, -3)", a.String())
}

func TestProtocolFee(t *testing.T) {
	p := ProtocolFee{ZeroForOne: 1000, OneForZero: 250}
	assert.Equal(t, p, UnpackProtocolFee(p.Pack()))
	assert.Equal(t, uint16(1000), p.For(true))
	assert.Equal(t, uint16(250), p.For(false))
	assert.NoError(t, p.Validate())
	assert.ErrorIs(t, ProtocolFee{OneForZero: 1001}.Validate(), ErrProtocolFeeTooLarge)
	assert.True(t, ProtocolFee{}.IsZero())
}

func TestSwapFee(t *testing.T) {
	assert.Equal(t, uint32(3000), SwapFee(0, 3000))
	// 1000 + 3000 - 1000*3000/1e6 = 3997
	assert.Equal(t, uint32(3997), SwapFee(1000, 3000))
	assert.Equal(t, uint32(1000), SwapFee(1000, 0))
	assert.Equal(t, MaxLPFee, SwapFee(1000, MaxLPFee))
}
