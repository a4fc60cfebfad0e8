package manager

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/ethereum/go-ethereum/common"
)

// ProtocolFeeController decides the protocol fee of each pool.
type ProtocolFeeController interface {
	ProtocolFeeForPool(ctx context.Context, key clamm.PoolKey) (clamm.ProtocolFee, error)
}

// StaticFeeController serves fees from a fixed table, falling back to a default.
type StaticFeeController struct {
	mu       sync.RWMutex
	fallback clamm.ProtocolFee
	fees     map[clamm.PoolID]clamm.ProtocolFee
}

// NewStaticFeeController returns a controller that answers fallback for unknown pools.
func NewStaticFeeController(fallback clamm.ProtocolFee) *StaticFeeController {
	return &StaticFeeController{
		fallback: fallback,
		fees:     make(map[clamm.PoolID]clamm.ProtocolFee),
	}
}

// Set overrides the fee of one pool.
func (c *StaticFeeController) Set(id clamm.PoolID, fee clamm.ProtocolFee) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fees[id] = fee
}

func (c *StaticFeeController) ProtocolFeeForPool(_ context.Context, key clamm.PoolKey) (clamm.ProtocolFee, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if fee, ok := c.fees[key.ID()]; ok {
		return fee, nil
	}
	return c.fallback, nil
}

// initialProtocolFee asks the controller for the fee of a new pool. A failing or
// invalid answer is logged and the pool starts without a protocol fee.
func (m *Manager) initialProtocolFee(ctx context.Context, key clamm.PoolKey) clamm.ProtocolFee {
	if m.feeController == nil {
		return clamm.ProtocolFee{}
	}
	fee, err := m.feeController.ProtocolFeeForPool(ctx, key)
	if err == nil {
		err = fee.Validate()
	}
	if err != nil {
		m.logger.Warn("protocol fee controller failed, starting with zero fee", "pool", key.ID().Hex(), "error", err)
		return clamm.ProtocolFee{}
	}
	return fee
}

// SetProtocolFee refreshes the protocol fee of a pool from the controller and returns it.
// Without a controller the fee is reset to zero.
func (m *Manager) SetProtocolFee(ctx context.Context, key clamm.PoolKey) (fee clamm.ProtocolFee, err error) {
	release, err := m.begin()
	if err != nil {
		return clamm.ProtocolFee{}, err
	}
	defer release()
	done := m.metrics.track(opSetProtocolFee)
	defer func() { done(err) }()

	prev, err := m.lookup(key)
	if err != nil {
		return clamm.ProtocolFee{}, err
	}
	if m.feeController != nil {
		fee, err = m.feeController.ProtocolFeeForPool(ctx, key)
		if err != nil {
			return clamm.ProtocolFee{}, fmt.Errorf("protocol fee controller: %w", err)
		}
	}

	next := prev.state.Clone()
	if err := next.SetProtocolFee(fee); err != nil {
		return clamm.ProtocolFee{}, err
	}
	m.publish(key, next)
	m.logger.Info("protocol fee updated", "pool", key.ID().Hex(), "zeroForOne", fee.ZeroForOne, "oneForZero", fee.OneForZero)
	m.snapshot(ctx, key, next)
	return fee, nil
}

// CollectProtocolFees pays accrued protocol fees of currency to recipient and returns
// the amount paid. A nil or zero amount collects everything accrued.
func (m *Manager) CollectProtocolFees(ctx context.Context, recipient common.Address, currency clamm.Currency, amount *big.Int) (collected *big.Int, err error) {
	release, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer release()
	done := m.metrics.track(opCollectProtocolFees)
	defer func() { done(err) }()

	if amount != nil && amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", clamm.ErrNegativeAmount, amount)
	}
	accrued := m.ProtocolFeesAccrued(currency)
	collected = accrued
	if amount != nil && amount.Sign() != 0 {
		if amount.Cmp(accrued) > 0 {
			return nil, fmt.Errorf("%w: requested %s, accrued %s", clamm.ErrInsufficientProtocolFees, amount, accrued)
		}
		collected = new(big.Int).Set(amount)
	}
	if collected.Sign() == 0 {
		return collected, nil
	}

	payout := []Transfer{{Account: recipient, Currency: currency, Amount: new(big.Int).Neg(collected)}}
	if err := m.settler.Settle(ctx, payout); err != nil {
		return nil, fmt.Errorf("%w: %w", clamm.ErrSettlementFailed, err)
	}

	m.mu.Lock()
	m.protocolFees[currency] = new(big.Int).Sub(m.protocolFees[currency], collected)
	m.mu.Unlock()

	m.metrics.protocolFees.WithLabelValues(currency.Hex()).Inc()
	m.logger.Info("protocol fees collected", "currency", currency.Hex(), "recipient", recipient.Hex(), "amount", collected)
	return collected, nil
}

// ProtocolFeesAccrued returns the uncollected protocol fees of currency.
func (m *Manager) ProtocolFeesAccrued(currency clamm.Currency) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.protocolFees[currency]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (m *Manager) accrueProtocolFee(currency clamm.Currency, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.protocolFees[currency]
	if !ok {
		prev = new(big.Int)
	}
	m.protocolFees[currency] = new(big.Int).Add(prev, amount)
}

// UpdateDynamicLPFee sets the LP fee of a dynamic-fee pool. Only the pool's hooks may call it.
func (m *Manager) UpdateDynamicLPFee(ctx context.Context, caller common.Address, key clamm.PoolKey, fee uint32) (err error) {
	release, err := m.begin()
	if err != nil {
		return err
	}
	defer release()
	done := m.metrics.track(opUpdateDynamicLPFee)
	defer func() { done(err) }()

	if !clamm.IsDynamicFee(key.Fee) {
		return fmt.Errorf("%w: %s", clamm.ErrNotDynamicFee, key.ID().Hex())
	}
	if caller != key.Hooks {
		return fmt.Errorf("%w: caller %s", clamm.ErrUnauthorizedDynamicFeeCall, caller.Hex())
	}
	prev, err := m.lookup(key)
	if err != nil {
		return err
	}
	next := prev.state.Clone()
	if err := next.SetLPFee(fee); err != nil {
		return err
	}
	m.publish(key, next)
	m.logger.Debug("dynamic lp fee updated", "pool", key.ID().Hex(), "fee", fee)
	m.snapshot(ctx, key, next)
	return nil
}
