package clamm

import (
	"math/big"
)

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

func copyTickView(t TickView) TickView {
	return TickView{
		Index:                 t.Index,
		LiquidityGross:        copyInt(t.LiquidityGross),
		LiquidityNet:          copyInt(t.LiquidityNet),
		FeeGrowthOutside0X128: copyInt(t.FeeGrowthOutside0X128),
		FeeGrowthOutside1X128: copyInt(t.FeeGrowthOutside1X128),
	}
}

// DeepCopyPoolView returns a view that shares no memory with p.
func DeepCopyPoolView(p PoolView) PoolView {
	c := p
	c.Slot0 = p.Slot0.Clone()
	c.Liquidity = copyInt(p.Liquidity)
	c.FeeGrowthGlobal0X128 = copyInt(p.FeeGrowthGlobal0X128)
	c.FeeGrowthGlobal1X128 = copyInt(p.FeeGrowthGlobal1X128)
	if p.Ticks != nil {
		c.Ticks = make([]TickView, len(p.Ticks))
		for i, t := range p.Ticks {
			c.Ticks[i] = copyTickView(t)
		}
	}
	return c
}

// Patcher applies diff to prevState and returns the resulting set of views.
// prevState is not modified.
func Patcher(prevState []PoolView, diff PoolSystemDiff) ([]PoolView, error) {
	next := make(map[PoolID]PoolView, len(prevState))
	for _, p := range prevState {
		next[p.ID] = DeepCopyPoolView(p)
	}

	for _, id := range diff.Deletions {
		delete(next, id)
	}
	for _, p := range diff.Updates {
		next[p.ID] = DeepCopyPoolView(p)
	}
	for _, p := range diff.Additions {
		next[p.ID] = DeepCopyPoolView(p)
	}

	out := make([]PoolView, 0, len(next))
	for _, p := range next {
		out = append(out, p)
	}
	return out, nil
}
