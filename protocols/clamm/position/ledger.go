// Package position keeps each liquidity position's size and the fee growth already credited to it.
package position

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/liquiditymath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

// q128 is 1.0 in Q128.128.
var q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// Key identifies a position. Salt lets one owner hold several positions over the same range.
type Key struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
	Salt      [32]byte
}

// Info is the state of one position.
type Info struct {
	Liquidity                uint128.Uint128
	FeeGrowthInside0LastX128 *uint256.Int
	FeeGrowthInside1LastX128 *uint256.Int
}

func (i *Info) clone() *Info {
	return &Info{
		Liquidity:                i.Liquidity,
		FeeGrowthInside0LastX128: i.FeeGrowthInside0LastX128.Clone(),
		FeeGrowthInside1LastX128: i.FeeGrowthInside1LastX128.Clone(),
	}
}

// Ledger stores the positions of one pool.
type Ledger struct {
	positions map[Key]*Info
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[Key]*Info)}
}

// Get returns the position at key, or nil when it was never touched.
func (l *Ledger) Get(key Key) *Info {
	return l.positions[key]
}

// Len returns the number of positions ever touched.
func (l *Ledger) Len() int {
	return len(l.positions)
}

// Update credits the fees earned since the last touch, applies liquidityDelta
// and stores the new fee growth snapshot. Fees are returned rounded down.
func (l *Ledger) Update(
	key Key,
	liquidityDelta *big.Int,
	feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int,
) (feesOwed0, feesOwed1 *big.Int, err error) {
	info, ok := l.positions[key]
	if !ok {
		info = &Info{
			FeeGrowthInside0LastX128: new(uint256.Int),
			FeeGrowthInside1LastX128: new(uint256.Int),
		}
	}

	var liquidityNext uint128.Uint128
	if liquidityDelta.Sign() == 0 {
		if info.Liquidity.IsZero() {
			return nil, nil, clamm.ErrCannotUpdateEmptyPosition
		}
		liquidityNext = info.Liquidity
	} else {
		liquidityNext, err = liquiditymath.AddDelta(info.Liquidity, liquidityDelta)
		switch {
		case errors.Is(err, liquiditymath.ErrLiquidityUnderflow):
			return nil, nil, fmt.Errorf("%w: position has %s, delta %s", clamm.ErrInsufficientLiquidity, info.Liquidity, liquidityDelta)
		case err != nil:
			return nil, nil, fmt.Errorf("%w: %w", clamm.ErrLiquidityOverflow, err)
		}
	}

	feesOwed0, err = owed(feeGrowthInside0X128, info.FeeGrowthInside0LastX128, info.Liquidity)
	if err != nil {
		return nil, nil, err
	}
	feesOwed1, err = owed(feeGrowthInside1X128, info.FeeGrowthInside1LastX128, info.Liquidity)
	if err != nil {
		return nil, nil, err
	}

	info.Liquidity = liquidityNext
	info.FeeGrowthInside0LastX128 = feeGrowthInside0X128.Clone()
	info.FeeGrowthInside1LastX128 = feeGrowthInside1X128.Clone()
	l.positions[key] = info
	return feesOwed0, feesOwed1, nil
}

// owed computes liquidity * (inside - last) / 2^128 with a wrapping difference.
func owed(inside, last *uint256.Int, liquidity uint128.Uint128) (*big.Int, error) {
	growth := new(uint256.Int).Sub(inside, last)
	l := &uint256.Int{liquidity.Lo, liquidity.Hi, 0, 0}
	fees, overflow := new(uint256.Int).MulDivOverflow(growth, l, q128)
	if overflow {
		return nil, fmt.Errorf("position fees: %w", clamm.ErrFeeGrowthOverflow)
	}
	return fees.ToBig(), nil
}

// Views returns every position in the ledger.
func (l *Ledger) Views() []clamm.PositionView {
	out := make([]clamm.PositionView, 0, len(l.positions))
	for key, info := range l.positions {
		out = append(out, View(key, info))
	}
	return out
}

// View exports a position.
func View(key Key, info *Info) clamm.PositionView {
	return clamm.PositionView{
		Owner:                    key.Owner,
		TickLower:                key.TickLower,
		TickUpper:                key.TickUpper,
		Salt:                     key.Salt,
		Liquidity:                info.Liquidity.Big(),
		FeeGrowthInside0LastX128: info.FeeGrowthInside0LastX128.ToBig(),
		FeeGrowthInside1LastX128: info.FeeGrowthInside1LastX128.ToBig(),
	}
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	positions := make(map[Key]*Info, len(l.positions))
	for key, info := range l.positions {
		positions[key] = info.clone()
	}
	return &Ledger{positions: positions}
}
