package clamm

import (
	"math/big"
)

// PoolView is a read-only snapshot of one pool, safe to hand to other goroutines.
type PoolView struct {
	ID                   PoolID     `json:"id"`
	Key                  PoolKey    `json:"key"`
	Slot0                Slot0      `json:"slot0"`
	Liquidity            *big.Int   `json:"liquidity"`
	FeeGrowthGlobal0X128 *big.Int   `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128 *big.Int   `json:"feeGrowthGlobal1X128"`
	Ticks                []TickView `json:"ticks"`
}

// TickView is the snapshot of an initialized tick. Ticks in a PoolView are sorted by Index.
type TickView struct {
	Index                 int32    `json:"index"`
	LiquidityGross        *big.Int `json:"liquidityGross"`
	LiquidityNet          *big.Int `json:"liquidityNet"`
	FeeGrowthOutside0X128 *big.Int `json:"feeGrowthOutside0X128"`
	FeeGrowthOutside1X128 *big.Int `json:"feeGrowthOutside1X128"`
}

// PositionView is the snapshot of a position.
type PositionView struct {
	Owner                    Currency `json:"owner"`
	TickLower                int32    `json:"tickLower"`
	TickUpper                int32    `json:"tickUpper"`
	Salt                     [32]byte `json:"salt"`
	Liquidity                *big.Int `json:"liquidity"`
	FeeGrowthInside0LastX128 *big.Int `json:"feeGrowthInside0LastX128"`
	FeeGrowthInside1LastX128 *big.Int `json:"feeGrowthInside1LastX128"`
}
