// Package tick tracks per-tick liquidity and fee growth outside a pool's current tick.
package tick

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/liquiditymath"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickmath"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

// Info is the state of one initialized tick.
type Info struct {
	// LiquidityGross is the total position liquidity referencing this tick.
	LiquidityGross uint128.Uint128
	// LiquidityNet is added to active liquidity when the tick is crossed left to right.
	LiquidityNet *big.Int
	// Fee growth on the side of this tick away from the current tick.
	FeeGrowthOutside0X128 *uint256.Int
	FeeGrowthOutside1X128 *uint256.Int
}

func newInfo() *Info {
	return &Info{
		LiquidityNet:          new(big.Int),
		FeeGrowthOutside0X128: new(uint256.Int),
		FeeGrowthOutside1X128: new(uint256.Int),
	}
}

func (i *Info) clone() *Info {
	return &Info{
		LiquidityGross:        i.LiquidityGross,
		LiquidityNet:          new(big.Int).Set(i.LiquidityNet),
		FeeGrowthOutside0X128: i.FeeGrowthOutside0X128.Clone(),
		FeeGrowthOutside1X128: i.FeeGrowthOutside1X128.Clone(),
	}
}

// View exports the tick as a clamm.TickView.
func (i *Info) View(index int32) clamm.TickView {
	return clamm.TickView{
		Index:                 index,
		LiquidityGross:        i.LiquidityGross.Big(),
		LiquidityNet:          new(big.Int).Set(i.LiquidityNet),
		FeeGrowthOutside0X128: i.FeeGrowthOutside0X128.ToBig(),
		FeeGrowthOutside1X128: i.FeeGrowthOutside1X128.ToBig(),
	}
}

// Registry maps tick index to Info for a single pool.
type Registry struct {
	ticks map[int32]*Info
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ticks: make(map[int32]*Info)}
}

// Get returns the tick at index, or nil when it is not initialized.
func (r *Registry) Get(index int32) *Info {
	return r.ticks[index]
}

// Len returns the number of initialized ticks.
func (r *Registry) Len() int {
	return len(r.ticks)
}

// Update applies liquidityDelta to the tick at index on behalf of a position
// whose lower (upper=false) or upper (upper=true) bound it is.
// It reports whether the tick flipped between initialized and uninitialized.
func (r *Registry) Update(
	index, tickCurrent int32,
	liquidityDelta *big.Int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
	upper bool,
	maxLiquidity uint128.Uint128,
) (flipped bool, err error) {
	info, ok := r.ticks[index]
	if !ok {
		info = newInfo()
	}

	grossBefore := info.LiquidityGross
	grossAfter, err := liquiditymath.AddDelta(grossBefore, liquidityDelta)
	switch err {
	case nil:
	case liquiditymath.ErrLiquidityUnderflow:
		return false, fmt.Errorf("%w: tick %d", clamm.ErrInsufficientLiquidity, index)
	default:
		return false, fmt.Errorf("%w: tick %d", clamm.ErrLiquidityOverflow, index)
	}
	if grossAfter.Cmp(maxLiquidity) > 0 {
		return false, fmt.Errorf("%w: tick %d gross %s exceeds %s", clamm.ErrLiquidityOverflow, index, grossAfter, maxLiquidity)
	}

	flipped = grossAfter.IsZero() != grossBefore.IsZero()

	if grossBefore.IsZero() && index <= tickCurrent {
		// all growth so far happened below the tick
		info.FeeGrowthOutside0X128.Set(feeGrowthGlobal0X128)
		info.FeeGrowthOutside1X128.Set(feeGrowthGlobal1X128)
	}

	info.LiquidityGross = grossAfter
	if upper {
		info.LiquidityNet.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		info.LiquidityNet.Add(info.LiquidityNet, liquidityDelta)
	}

	r.ticks[index] = info
	return flipped, nil
}

// Clear removes the tick at index.
func (r *Registry) Clear(index int32) {
	delete(r.ticks, index)
}

// Cross flips the outside fee growth of the tick at index against the given
// globals and returns its LiquidityNet. Crossing an absent tick returns zero.
func (r *Registry) Cross(index int32, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int) *big.Int {
	info, ok := r.ticks[index]
	if !ok {
		return new(big.Int)
	}
	info.FeeGrowthOutside0X128.Sub(feeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128.Sub(feeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	return new(big.Int).Set(info.LiquidityNet)
}

// LiquidityNet returns the net liquidity of the tick at index without crossing it.
func (r *Registry) LiquidityNet(index int32) *big.Int {
	info, ok := r.ticks[index]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(info.LiquidityNet)
}

// FeeGrowthInside returns the fee growth per unit of liquidity accumulated
// inside [lower, upper) given the current tick and globals. Subtractions wrap.
func (r *Registry) FeeGrowthInside(
	lower, upper, tickCurrent int32,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
) (inside0, inside1 *uint256.Int) {
	lo := r.outside(lower)
	hi := r.outside(upper)
	inside0, inside1 = new(uint256.Int), new(uint256.Int)

	switch {
	case tickCurrent < lower:
		inside0.Sub(lo.FeeGrowthOutside0X128, hi.FeeGrowthOutside0X128)
		inside1.Sub(lo.FeeGrowthOutside1X128, hi.FeeGrowthOutside1X128)
	case tickCurrent >= upper:
		inside0.Sub(hi.FeeGrowthOutside0X128, lo.FeeGrowthOutside0X128)
		inside1.Sub(hi.FeeGrowthOutside1X128, lo.FeeGrowthOutside1X128)
	default:
		inside0.Sub(feeGrowthGlobal0X128, lo.FeeGrowthOutside0X128)
		inside0.Sub(inside0, hi.FeeGrowthOutside0X128)
		inside1.Sub(feeGrowthGlobal1X128, lo.FeeGrowthOutside1X128)
		inside1.Sub(inside1, hi.FeeGrowthOutside1X128)
	}
	return inside0, inside1
}

func (r *Registry) outside(index int32) *Info {
	if info, ok := r.ticks[index]; ok {
		return info
	}
	return newInfo()
}

// Indices returns the initialized tick indices in ascending order.
func (r *Registry) Indices() []int32 {
	out := make([]int32, 0, len(r.ticks))
	for index := range r.ticks {
		out = append(out, index)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Views returns every initialized tick sorted by index.
func (r *Registry) Views() []clamm.TickView {
	indices := r.Indices()
	out := make([]clamm.TickView, len(indices))
	for i, index := range indices {
		out[i] = r.ticks[index].View(index)
	}
	return out
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	ticks := make(map[int32]*Info, len(r.ticks))
	for index, info := range r.ticks {
		ticks[index] = info.clone()
	}
	return &Registry{ticks: ticks}
}

// MaxLiquidityPerTick divides the uint128 range evenly among every usable tick
// at the given spacing so that active liquidity can never overflow.
func MaxLiquidityPerTick(tickSpacing int32) uint128.Uint128 {
	minTick := tickmath.MIN_TICK / tickSpacing * tickSpacing
	maxTick := tickmath.MAX_TICK / tickSpacing * tickSpacing
	numTicks := uint64((maxTick-minTick)/tickSpacing) + 1
	return uint128.Max.Div64(numTicks)
}
