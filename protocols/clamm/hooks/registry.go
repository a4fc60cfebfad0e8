package hooks

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/pool"
	"github.com/ethereum/go-ethereum/common"
)

// Registry maps hooks addresses to implementations and dispatches checkpoints.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	hooks map[common.Address]Hooks
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[common.Address]Hooks)}
}

// Register validates h against addr and stores it, replacing any previous entry.
func (r *Registry) Register(addr common.Address, h Hooks) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: zero address", clamm.ErrHookAddressNotValid)
	}
	if err := Validate(addr, h); err != nil {
		return fmt.Errorf("%w: %w", clamm.ErrHookAddressNotValid, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[addr] = h
	return nil
}

// Lookup returns the implementation registered at addr.
func (r *Registry) Lookup(addr common.Address) (Hooks, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[addr]
	return h, ok
}

// Check verifies that a pool key's hooks address can be served. The zero address means no hooks.
func (r *Registry) Check(key clamm.PoolKey) error {
	if key.Hooks == (common.Address{}) {
		return nil
	}
	h, ok := r.Lookup(key.Hooks)
	if !ok {
		return fmt.Errorf("%w: %w: %s", clamm.ErrHookAddressNotValid, ErrNotRegistered, key.Hooks.Hex())
	}
	if err := Validate(key.Hooks, h); err != nil {
		return fmt.Errorf("%w: %w", clamm.ErrHookAddressNotValid, err)
	}
	return nil
}

// resolve returns the hooks of key if they take part in flag.
func (r *Registry) resolve(key clamm.PoolKey, flag Flags) (Hooks, bool) {
	if key.Hooks == (common.Address{}) || !AddressFlags(key.Hooks).Has(flag) {
		return nil, false
	}
	h, ok := r.Lookup(key.Hooks)
	return h, ok
}

func invalidResponse(flag Flags, err error) error {
	return fmt.Errorf("%w: %s: %w", clamm.ErrInvalidHookResponse, flag, err)
}

func missing(flag Flags) error {
	return fmt.Errorf("%w: %s: %w", clamm.ErrInvalidHookResponse, flag, ErrMissingCheckpoint)
}

// hookDelta normalizes a delta returned by an after checkpoint.
func hookDelta(d clamm.BalanceDelta) clamm.BalanceDelta {
	return clamm.ZeroDelta().Add(d)
}

func (r *Registry) BeforeInitialize(ctx context.Context, sender common.Address, key clamm.PoolKey, sqrtPriceX96 *big.Int) error {
	h, ok := r.resolve(key, BeforeInitialize)
	if !ok {
		return nil
	}
	cp, ok := h.(BeforeInitializeHook)
	if !ok {
		return missing(BeforeInitialize)
	}
	if err := cp.BeforeInitialize(ctx, sender, key, sqrtPriceX96); err != nil {
		return invalidResponse(BeforeInitialize, err)
	}
	return nil
}

func (r *Registry) AfterInitialize(ctx context.Context, sender common.Address, key clamm.PoolKey, sqrtPriceX96 *big.Int, tick int32) error {
	h, ok := r.resolve(key, AfterInitialize)
	if !ok {
		return nil
	}
	cp, ok := h.(AfterInitializeHook)
	if !ok {
		return missing(AfterInitialize)
	}
	if err := cp.AfterInitialize(ctx, sender, key, sqrtPriceX96, tick); err != nil {
		return invalidResponse(AfterInitialize, err)
	}
	return nil
}

func (r *Registry) BeforeModifyLiquidity(ctx context.Context, sender common.Address, key clamm.PoolKey, params pool.ModifyLiquidityParams) error {
	h, ok := r.resolve(key, BeforeModifyLiquidity)
	if !ok {
		return nil
	}
	cp, ok := h.(BeforeModifyLiquidityHook)
	if !ok {
		return missing(BeforeModifyLiquidity)
	}
	if err := cp.BeforeModifyLiquidity(ctx, sender, key, params); err != nil {
		return invalidResponse(BeforeModifyLiquidity, err)
	}
	return nil
}

// AfterModifyLiquidity returns the hook's extra delta, zero when the checkpoint is not declared.
func (r *Registry) AfterModifyLiquidity(
	ctx context.Context,
	sender common.Address,
	key clamm.PoolKey,
	params pool.ModifyLiquidityParams,
	delta, feesAccrued clamm.BalanceDelta,
) (clamm.BalanceDelta, error) {
	h, ok := r.resolve(key, AfterModifyLiquidity)
	if !ok {
		return clamm.ZeroDelta(), nil
	}
	cp, ok := h.(AfterModifyLiquidityHook)
	if !ok {
		return clamm.BalanceDelta{}, missing(AfterModifyLiquidity)
	}
	extra, err := cp.AfterModifyLiquidity(ctx, sender, key, params, delta, feesAccrued)
	if err != nil {
		return clamm.BalanceDelta{}, invalidResponse(AfterModifyLiquidity, err)
	}
	return hookDelta(extra), nil
}

func (r *Registry) BeforeSwap(ctx context.Context, sender common.Address, key clamm.PoolKey, params pool.SwapParams) error {
	h, ok := r.resolve(key, BeforeSwap)
	if !ok {
		return nil
	}
	cp, ok := h.(BeforeSwapHook)
	if !ok {
		return missing(BeforeSwap)
	}
	if err := cp.BeforeSwap(ctx, sender, key, params); err != nil {
		return invalidResponse(BeforeSwap, err)
	}
	return nil
}

// AfterSwap returns the hook's extra delta, zero when the checkpoint is not declared.
func (r *Registry) AfterSwap(ctx context.Context, sender common.Address, key clamm.PoolKey, params pool.SwapParams, delta clamm.BalanceDelta) (clamm.BalanceDelta, error) {
	h, ok := r.resolve(key, AfterSwap)
	if !ok {
		return clamm.ZeroDelta(), nil
	}
	cp, ok := h.(AfterSwapHook)
	if !ok {
		return clamm.BalanceDelta{}, missing(AfterSwap)
	}
	extra, err := cp.AfterSwap(ctx, sender, key, params, delta)
	if err != nil {
		return clamm.BalanceDelta{}, invalidResponse(AfterSwap, err)
	}
	return hookDelta(extra), nil
}

func (r *Registry) BeforeDonate(ctx context.Context, sender common.Address, key clamm.PoolKey, amount0, amount1 *big.Int) error {
	h, ok := r.resolve(key, BeforeDonate)
	if !ok {
		return nil
	}
	cp, ok := h.(BeforeDonateHook)
	if !ok {
		return missing(BeforeDonate)
	}
	if err := cp.BeforeDonate(ctx, sender, key, amount0, amount1); err != nil {
		return invalidResponse(BeforeDonate, err)
	}
	return nil
}

// AfterDonate returns the hook's extra delta, zero when the checkpoint is not declared.
func (r *Registry) AfterDonate(ctx context.Context, sender common.Address, key clamm.PoolKey, amount0, amount1 *big.Int) (clamm.BalanceDelta, error) {
	h, ok := r.resolve(key, AfterDonate)
	if !ok {
		return clamm.ZeroDelta(), nil
	}
	cp, ok := h.(AfterDonateHook)
	if !ok {
		return clamm.BalanceDelta{}, missing(AfterDonate)
	}
	extra, err := cp.AfterDonate(ctx, sender, key, amount0, amount1)
	if err != nil {
		return clamm.BalanceDelta{}, invalidResponse(AfterDonate, err)
	}
	return hookDelta(extra), nil
}
