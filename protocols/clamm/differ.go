package clamm

import (
	"math/big"
)

// PoolSystemDiff describes how one set of pool views became another.
type PoolSystemDiff struct {
	Additions []PoolView `json:"additions,omitempty"`
	Updates   []PoolView `json:"updates,omitempty"`
	Deletions []PoolID   `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

func intsDiffer(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a != b
	}
	return a.Cmp(b) != 0
}

// poolChanged compares the mutable parts of two views. Ticks are expected sorted by Index.
func poolChanged(old, new PoolView) bool {
	if old.Slot0.Tick != new.Slot0.Tick ||
		old.Slot0.ProtocolFee != new.Slot0.ProtocolFee ||
		old.Slot0.LPFee != new.Slot0.LPFee {
		return true
	}
	if intsDiffer(old.Slot0.SqrtPriceX96, new.Slot0.SqrtPriceX96) ||
		intsDiffer(old.Liquidity, new.Liquidity) ||
		intsDiffer(old.FeeGrowthGlobal0X128, new.FeeGrowthGlobal0X128) ||
		intsDiffer(old.FeeGrowthGlobal1X128, new.FeeGrowthGlobal1X128) {
		return true
	}

	if len(old.Ticks) != len(new.Ticks) {
		return true
	}
	for i := range old.Ticks {
		o, n := old.Ticks[i], new.Ticks[i]
		if o.Index != n.Index ||
			intsDiffer(o.LiquidityGross, n.LiquidityGross) ||
			intsDiffer(o.LiquidityNet, n.LiquidityNet) ||
			intsDiffer(o.FeeGrowthOutside0X128, n.FeeGrowthOutside0X128) ||
			intsDiffer(o.FeeGrowthOutside1X128, n.FeeGrowthOutside1X128) {
			return true
		}
	}
	return false
}

// Differ computes the additions, updates and deletions that turn old into new.
func Differ(old, new []PoolView) PoolSystemDiff {
	oldByID := make(map[PoolID]PoolView, len(old))
	for _, p := range old {
		oldByID[p.ID] = p
	}

	var diff PoolSystemDiff
	seen := make(map[PoolID]struct{}, len(new))
	for _, p := range new {
		seen[p.ID] = struct{}{}
		prev, ok := oldByID[p.ID]
		switch {
		case !ok:
			diff.Additions = append(diff.Additions, p)
		case poolChanged(prev, p):
			diff.Updates = append(diff.Updates, p)
		}
	}

	for _, p := range old {
		if _, ok := seen[p.ID]; !ok {
			diff.Deletions = append(diff.Deletions, p.ID)
		}
	}
	return diff
}
