package manager

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/pool"
	"github.com/ethereum/go-ethereum/common"
)

// Initialize creates the pool of key at sqrtPriceX96 and returns its starting tick.
// Dynamic-fee pools start with an LP fee of zero.
func (m *Manager) Initialize(ctx context.Context, sender common.Address, key clamm.PoolKey, sqrtPriceX96 *big.Int) (tick int32, err error) {
	release, err := m.begin()
	if err != nil {
		return 0, err
	}
	defer release()
	done := m.metrics.track(opInitialize)
	defer func() { done(err) }()

	if err := key.Validate(); err != nil {
		return 0, err
	}
	if err := m.hooks.Check(key); err != nil {
		return 0, err
	}
	if _, err := m.lookup(key); err == nil {
		return 0, fmt.Errorf("%w: %s", clamm.ErrAlreadyInitialized, key.ID().Hex())
	}

	if err := m.hooks.BeforeInitialize(ctx, sender, key, sqrtPriceX96); err != nil {
		return 0, err
	}

	lpFee := key.Fee
	if clamm.IsDynamicFee(lpFee) {
		lpFee = 0
	}
	state := pool.New(key.TickSpacing)
	tick, err = state.Initialize(sqrtPriceX96, m.initialProtocolFee(ctx, key), lpFee)
	if err != nil {
		return 0, err
	}

	m.publish(key, state)
	if err := m.hooks.AfterInitialize(ctx, sender, key, sqrtPriceX96, tick); err != nil {
		m.restore(key, nil)
		return 0, err
	}

	m.logger.Info("pool initialized", "pool", key.ID().Hex(), "key", key.String(), "tick", tick)
	m.snapshot(ctx, key, state)
	return tick, nil
}

// ModifyLiquidity changes the sender's position. The position owner is always the sender.
// callerDelta includes any delta returned by the hooks; feesAccrued is the part of it
// that pays out fees owed to the position.
func (m *Manager) ModifyLiquidity(
	ctx context.Context,
	sender common.Address,
	key clamm.PoolKey,
	params pool.ModifyLiquidityParams,
) (callerDelta, feesAccrued clamm.BalanceDelta, err error) {
	release, err := m.begin()
	if err != nil {
		return clamm.BalanceDelta{}, clamm.BalanceDelta{}, err
	}
	defer release()
	done := m.metrics.track(opModifyLiquidity)
	defer func() { done(err) }()

	prev, err := m.lookup(key)
	if err != nil {
		return clamm.BalanceDelta{}, clamm.BalanceDelta{}, err
	}
	params.Owner = sender

	if err := m.hooks.BeforeModifyLiquidity(ctx, sender, key, params); err != nil {
		return clamm.BalanceDelta{}, clamm.BalanceDelta{}, err
	}

	next := prev.state.Clone()
	delta, feesAccrued, err := next.ModifyLiquidity(params)
	if err != nil {
		return clamm.BalanceDelta{}, clamm.BalanceDelta{}, err
	}

	callerDelta, err = m.commit(ctx, sender, prev, next, delta, func() (clamm.BalanceDelta, error) {
		return m.hooks.AfterModifyLiquidity(ctx, sender, key, params, delta, feesAccrued)
	})
	if err != nil {
		return clamm.BalanceDelta{}, clamm.BalanceDelta{}, err
	}

	m.logger.Debug("liquidity modified",
		"pool", key.ID().Hex(),
		"owner", sender.Hex(),
		"tickLower", params.TickLower,
		"tickUpper", params.TickUpper,
		"liquidityDelta", params.LiquidityDelta,
		"delta", callerDelta.String(),
	)
	m.snapshot(ctx, key, next)
	return callerDelta, feesAccrued, nil
}

// Swap trades against a pool. The returned Delta includes any delta returned by the hooks.
func (m *Manager) Swap(ctx context.Context, sender common.Address, key clamm.PoolKey, params pool.SwapParams) (res pool.SwapResult, err error) {
	release, err := m.begin()
	if err != nil {
		return pool.SwapResult{}, err
	}
	defer release()
	done := m.metrics.track(opSwap)
	defer func() { done(err) }()

	prev, err := m.lookup(key)
	if err != nil {
		return pool.SwapResult{}, err
	}
	if err := m.hooks.BeforeSwap(ctx, sender, key, params); err != nil {
		return pool.SwapResult{}, err
	}

	next := prev.state.Clone()
	res, err = next.Swap(params)
	if err != nil {
		return pool.SwapResult{}, err
	}

	swapDelta := res.Delta
	res.Delta, err = m.commit(ctx, sender, prev, next, swapDelta, func() (clamm.BalanceDelta, error) {
		return m.hooks.AfterSwap(ctx, sender, key, params, swapDelta)
	})
	if err != nil {
		return pool.SwapResult{}, err
	}

	inputCurrency := key.Currency1
	if params.ZeroForOne {
		inputCurrency = key.Currency0
	}
	m.accrueProtocolFee(inputCurrency, res.AmountToProtocol)
	m.metrics.ticksCrossed.Add(float64(res.TicksCrossed))

	m.logger.Debug("swap",
		"pool", key.ID().Hex(),
		"sender", sender.Hex(),
		"zeroForOne", params.ZeroForOne,
		"amountSpecified", params.AmountSpecified,
		"delta", res.Delta.String(),
		"ticksCrossed", res.TicksCrossed,
	)
	m.snapshot(ctx, key, next)
	return res, nil
}

// Donate credits amount0 and amount1 to the liquidity active at the current price.
func (m *Manager) Donate(ctx context.Context, sender common.Address, key clamm.PoolKey, amount0, amount1 *big.Int) (delta clamm.BalanceDelta, err error) {
	release, err := m.begin()
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	defer release()
	done := m.metrics.track(opDonate)
	defer func() { done(err) }()

	prev, err := m.lookup(key)
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	if err := m.hooks.BeforeDonate(ctx, sender, key, amount0, amount1); err != nil {
		return clamm.BalanceDelta{}, err
	}

	next := prev.state.Clone()
	donated, err := next.Donate(amount0, amount1)
	if err != nil {
		return clamm.BalanceDelta{}, err
	}

	delta, err = m.commit(ctx, sender, prev, next, donated, func() (clamm.BalanceDelta, error) {
		return m.hooks.AfterDonate(ctx, sender, key, amount0, amount1)
	})
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	m.logger.Debug("donation", "pool", key.ID().Hex(), "sender", sender.Hex(), "delta", delta.String())
	m.snapshot(ctx, key, next)
	return delta, nil
}

// DonateRange credits each (amounts0[i], amounts1[i]) to the liquidity active at ticks[i].
// The donate checkpoints see the summed amounts. Either every donation applies or none does.
func (m *Manager) DonateRange(
	ctx context.Context,
	sender common.Address,
	key clamm.PoolKey,
	amounts0, amounts1 []*big.Int,
	ticks []int32,
) (delta clamm.BalanceDelta, err error) {
	release, err := m.begin()
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	defer release()
	done := m.metrics.track(opDonateRange)
	defer func() { done(err) }()

	prev, err := m.lookup(key)
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	total0, total1 := sum(amounts0), sum(amounts1)
	if err := m.hooks.BeforeDonate(ctx, sender, key, total0, total1); err != nil {
		return clamm.BalanceDelta{}, err
	}

	next := prev.state.Clone()
	donated, err := next.DonateRange(amounts0, amounts1, ticks)
	if err != nil {
		return clamm.BalanceDelta{}, err
	}

	delta, err = m.commit(ctx, sender, prev, next, donated, func() (clamm.BalanceDelta, error) {
		return m.hooks.AfterDonate(ctx, sender, key, total0, total1)
	})
	if err != nil {
		return clamm.BalanceDelta{}, err
	}
	m.logger.Debug("range donation",
		"pool", key.ID().Hex(),
		"sender", sender.Hex(),
		"ticks", ticks,
		"delta", delta.String(),
	)
	m.snapshot(ctx, key, next)
	return delta, nil
}

func sum(xs []*big.Int) *big.Int {
	total := new(big.Int)
	for _, x := range xs {
		if x != nil {
			total.Add(total, x)
		}
	}
	return total
}
