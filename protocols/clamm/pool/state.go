// Package pool implements the state machine of a single concentrated-liquidity pool.
//
// A State is not safe for concurrent use, and a method that returns an error may
// leave the receiver partially updated. Callers that need all-or-nothing semantics
// mutate a Clone and discard it on failure, as the manager does.
package pool

import (
	"fmt"
	"math/big"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickbitmap"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine-go/protocols/clamm/position"
	"github.com/defistate/clamm-engine-go/protocols/clamm/tick"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

// State is the full state of one pool.
type State struct {
	tickSpacing         int32
	maxLiquidityPerTick uint128.Uint128

	initialized bool
	slot0       clamm.Slot0

	feeGrowthGlobal0X128 *uint256.Int
	feeGrowthGlobal1X128 *uint256.Int
	liquidity            uint128.Uint128

	ticks     *tick.Registry
	bitmap    *tickbitmap.Bitmap
	positions *position.Ledger
}

// New returns an uninitialized pool with the given tick spacing.
func New(tickSpacing int32) *State {
	return &State{
		tickSpacing:          tickSpacing,
		maxLiquidityPerTick:  tick.MaxLiquidityPerTick(tickSpacing),
		feeGrowthGlobal0X128: new(uint256.Int),
		feeGrowthGlobal1X128: new(uint256.Int),
		ticks:                tick.NewRegistry(),
		bitmap:               tickbitmap.New(),
		positions:            position.NewLedger(),
	}
}

// Initialize sets the starting price and fees and returns the starting tick.
func (s *State) Initialize(sqrtPriceX96 *big.Int, protocolFee clamm.ProtocolFee, lpFee uint32) (int32, error) {
	if s.initialized {
		return 0, clamm.ErrAlreadyInitialized
	}
	if sqrtPriceX96 == nil {
		return 0, fmt.Errorf("%w: nil price", clamm.ErrPriceOutOfBounds)
	}
	if err := tickmath.CheckSqrtPrice(sqrtPriceX96); err != nil {
		return 0, fmt.Errorf("%w: %s", clamm.ErrPriceOutOfBounds, sqrtPriceX96)
	}
	if err := protocolFee.Validate(); err != nil {
		return 0, err
	}

	t, err := tickmath.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", clamm.ErrPriceOutOfBounds, err)
	}

	s.slot0 = clamm.Slot0{
		SqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
		Tick:         t,
		ProtocolFee:  protocolFee,
		LPFee:        lpFee,
	}
	s.feeGrowthGlobal0X128.Clear()
	s.feeGrowthGlobal1X128.Clear()
	s.liquidity = uint128.Zero
	s.initialized = true
	return t, nil
}

// IsInitialized reports whether Initialize has succeeded.
func (s *State) IsInitialized() bool {
	return s.initialized
}

func (s *State) checkInitialized() error {
	if !s.initialized {
		return clamm.ErrPoolNotInitialized
	}
	return nil
}

// SetProtocolFee replaces the protocol fee rates.
func (s *State) SetProtocolFee(fee clamm.ProtocolFee) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if err := fee.Validate(); err != nil {
		return err
	}
	s.slot0.ProtocolFee = fee
	return nil
}

// SetLPFee replaces the LP fee. The manager only allows this for dynamic-fee pools.
func (s *State) SetLPFee(fee uint32) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if fee > clamm.MaxLPFee {
		return fmt.Errorf("%w: %d", clamm.ErrInvalidFee, fee)
	}
	s.slot0.LPFee = fee
	return nil
}

// TickSpacing returns the pool's tick spacing.
func (s *State) TickSpacing() int32 {
	return s.tickSpacing
}

// Slot0 returns a copy of the pool header.
func (s *State) Slot0() clamm.Slot0 {
	return s.slot0.Clone()
}

// Liquidity returns the active liquidity.
func (s *State) Liquidity() uint128.Uint128 {
	return s.liquidity
}

// FeeGrowthGlobals returns copies of the two global fee growth accumulators.
func (s *State) FeeGrowthGlobals() (feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int) {
	return s.feeGrowthGlobal0X128.Clone(), s.feeGrowthGlobal1X128.Clone()
}

// Tick returns a view of the tick at index and whether it is initialized.
func (s *State) Tick(index int32) (clamm.TickView, bool) {
	info := s.ticks.Get(index)
	if info == nil {
		return clamm.TickView{}, false
	}
	return info.View(index), true
}

// Position returns a view of the position at key and whether it exists.
func (s *State) Position(key position.Key) (clamm.PositionView, bool) {
	info := s.positions.Get(key)
	if info == nil {
		return clamm.PositionView{}, false
	}
	return position.View(key, info), true
}

// Positions returns every position of the pool.
func (s *State) Positions() []clamm.PositionView {
	return s.positions.Views()
}

// View exports the pool as a self-contained snapshot.
func (s *State) View(key clamm.PoolKey) clamm.PoolView {
	return clamm.PoolView{
		ID:                   key.ID(),
		Key:                  key,
		Slot0:                s.slot0.Clone(),
		Liquidity:            s.liquidity.Big(),
		FeeGrowthGlobal0X128: s.feeGrowthGlobal0X128.ToBig(),
		FeeGrowthGlobal1X128: s.feeGrowthGlobal1X128.ToBig(),
		Ticks:                s.ticks.Views(),
	}
}

// Clone returns a deep copy that shares no memory with s.
func (s *State) Clone() *State {
	c := *s
	c.slot0 = s.slot0.Clone()
	c.feeGrowthGlobal0X128 = s.feeGrowthGlobal0X128.Clone()
	c.feeGrowthGlobal1X128 = s.feeGrowthGlobal1X128.Clone()
	c.ticks = s.ticks.Clone()
	c.bitmap = s.bitmap.Clone()
	c.positions = s.positions.Clone()
	return &c
}

// growthPerLiquidity returns amount * 2^128 / liquidity.
func growthPerLiquidity(amount *big.Int, liquidity *big.Int) (*uint256.Int, error) {
	if amount.Sign() == 0 {
		return new(uint256.Int), nil
	}
	g := new(big.Int).Lsh(amount, 128)
	g.Quo(g, liquidity)
	out, overflow := uint256.FromBig(g)
	if overflow {
		return nil, fmt.Errorf("%w: %s over liquidity %s", clamm.ErrFeeGrowthOverflow, amount, liquidity)
	}
	return out, nil
}
