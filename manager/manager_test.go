package manager_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/defistate/clamm-engine-go/manager"
	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine-go/protocols/clamm/hooks"
	"github.com/defistate/clamm-engine-go/protocols/clamm/pool"
	"github.com/defistate/clamm-engine-go/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice    = common.HexToAddress("0xa11ce")
	bob      = common.HexToAddress("0xb0b")
	treasury = common.HexToAddress("0x7ea5")
	token0   = common.HexToAddress("0x1000")
	token1   = common.HexToAddress("0x2000")

	staticKey = clamm.PoolKey{Currency0: token0, Currency1: token1, Fee: 3000, TickSpacing: 60}
	minLimit  = new(big.Int).Add(tickmath.MIN_SQRT_RATIO, big.NewInt(1))
	maxLimit  = new(big.Int).Sub(tickmath.MAX_SQRT_RATIO, big.NewInt(1))
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func sqrtAt(t *testing.T, tick int32) *big.Int {
	t.Helper()
	p := new(big.Int)
	require.NoError(t, tickmath.GetSqrtRatioAtTick(p, tick))
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

type fixture struct {
	mgr   *manager.Manager
	vault *settlement.Vault
	hooks *hooks.Registry
	reg   *prometheus.Registry
	fees  *manager.StaticFeeController
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		vault: settlement.NewVault(),
		hooks: hooks.NewRegistry(),
		reg:   prometheus.NewRegistry(),
		fees:  manager.NewStaticFeeController(clamm.ProtocolFee{}),
	}
	mgr, err := manager.New(&manager.Config{
		Logger:        discardLogger(),
		Registry:      f.reg,
		Settler:       f.vault,
		Hooks:         f.hooks,
		FeeController: f.fees,
	})
	require.NoError(t, err)
	f.mgr = mgr
	for _, a := range []common.Address{alice, bob} {
		require.NoError(t, f.vault.Deposit(a, token0, eth(1000)))
		require.NoError(t, f.vault.Deposit(a, token1, eth(1000)))
	}
	return f
}

func (f *fixture) initialize(t *testing.T, key clamm.PoolKey, tick int32) {
	t.Helper()
	got, err := f.mgr.Initialize(context.Background(), alice, key, sqrtAt(t, tick))
	require.NoError(t, err)
	require.Equal(t, tick, got)
}

func (f *fixture) addLiquidity(t *testing.T, key clamm.PoolKey, owner common.Address, lower, upper int32, liquidity *big.Int) clamm.BalanceDelta {
	t.Helper()
	delta, _, err := f.mgr.ModifyLiquidity(context.Background(), owner, key, pool.ModifyLiquidityParams{
		TickLower:      lower,
		TickUpper:      upper,
		LiquidityDelta: liquidity,
	})
	require.NoError(t, err)
	return delta
}

// testHook implements the swap checkpoints with pluggable behaviour.
type testHook struct {
	flags      hooks.Flags
	beforeSwap func() error
	afterSwap  func() (clamm.BalanceDelta, error)
}

func (h *testHook) Permissions() hooks.Flags { return h.flags }

func (h *testHook) BeforeSwap(context.Context, common.Address, clamm.PoolKey, pool.SwapParams) error {
	if h.beforeSwap == nil {
		return nil
	}
	return h.beforeSwap()
}

func (h *testHook) AfterSwap(context.Context, common.Address, clamm.PoolKey, pool.SwapParams, clamm.BalanceDelta) (clamm.BalanceDelta, error) {
	if h.afterSwap == nil {
		return clamm.ZeroDelta(), nil
	}
	return h.afterSwap()
}

func (f *fixture) hookedKey(t *testing.T, h *testHook, salt string) clamm.PoolKey {
	t.Helper()
	addr := hooks.AddressFor(h.flags, []byte(salt))
	require.NoError(t, f.hooks.Register(addr, h))
	key := staticKey
	key.Hooks = addr
	return key
}

// failingSettler rejects every settlement.
type failingSettler struct{}

func (failingSettler) Settle(context.Context, []manager.Transfer) error {
	return errors.New("custody offline")
}

func TestNew_Validation(t *testing.T) {
	vault := settlement.NewVault()
	testCases := []struct {
		name string
		cfg  manager.Config
	}{
		{"no logger", manager.Config{Registry: prometheus.NewRegistry(), Settler: vault}},
		{"no registry", manager.Config{Logger: discardLogger(), Settler: vault}},
		{"no settler", manager.Config{Logger: discardLogger(), Registry: prometheus.NewRegistry()}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.New(&tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.initialize(t, staticKey, 0)
	_, err := f.mgr.Initialize(ctx, alice, staticKey, sqrtAt(t, 0))
	assert.ErrorIs(t, err, clamm.ErrAlreadyInitialized)

	delta := f.addLiquidity(t, staticKey, alice, -120, 120, eth(1))
	require.Equal(t, 1, delta.Amount0.Sign())
	require.Equal(t, 1, delta.Amount1.Sign())
	assert.Equal(t, delta.Amount0.String(), f.vault.Custody(token0).String())
	assert.Equal(t, delta.Amount1.String(), f.vault.Custody(token1).String())
	assert.Equal(t, new(big.Int).Sub(eth(1000), delta.Amount0).String(), f.vault.Balance(alice, token0).String())

	res, err := f.mgr.Swap(ctx, bob, staticKey, pool.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100), SqrtPriceLimitX96: minLimit})
	require.NoError(t, err)
	assert.Equal(t, "(100, -98)", res.Delta.String())
	assert.Equal(t, new(big.Int).Sub(eth(1000), big.NewInt(100)).String(), f.vault.Balance(bob, token0).String())
	assert.Equal(t, new(big.Int).Add(eth(1000), big.NewInt(98)).String(), f.vault.Balance(bob, token1).String())

	slot0, err := f.mgr.Slot0(staticKey)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), slot0.Tick)

	liquidity, err := f.mgr.Liquidity(staticKey)
	require.NoError(t, err)
	assert.Equal(t, eth(1).String(), liquidity.String())

	fg0, fg1, err := f.mgr.FeeGrowthGlobals(staticKey)
	require.NoError(t, err)
	assert.Equal(t, 1, fg0.Sign())
	assert.Zero(t, fg1.Sign())

	lower, ok, err := f.mgr.TickInfo(staticKey, -120)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, eth(1).String(), lower.LiquidityNet.String())

	pos, ok, err := f.mgr.Position(staticKey, alice, -120, 120, [32]byte{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, eth(1).String(), pos.Liquidity.String())

	t.Run("closing returns principal and fees", func(t *testing.T) {
		before0 := f.vault.Balance(alice, token0)
		closing, fees, err := f.mgr.ModifyLiquidity(ctx, alice, staticKey, pool.ModifyLiquidityParams{
			TickLower:      -120,
			TickUpper:      120,
			LiquidityDelta: eth(-1),
		})
		require.NoError(t, err)
		assert.Equal(t, -1, closing.Amount0.Sign())
		assert.Zero(t, fees.Amount1.Sign())
		assert.Equal(t, new(big.Int).Sub(before0, closing.Amount0).String(), f.vault.Balance(alice, token0).String())

		positions, err := f.mgr.Positions(staticKey)
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Zero(t, positions[0].Liquidity.Sign())
	})

	views := f.mgr.Pools()
	require.Len(t, views, 1)
	assert.Equal(t, staticKey.ID(), views[0].ID)
}

func TestManager_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	swapped := clamm.PoolKey{Currency0: token1, Currency1: token0, Fee: 3000, TickSpacing: 60}
	_, err := f.mgr.Initialize(ctx, alice, swapped, sqrtAt(t, 0))
	assert.ErrorIs(t, err, clamm.ErrCurrenciesOutOfOrder)

	unregistered := staticKey
	unregistered.Hooks = hooks.AddressFor(hooks.BeforeSwap, []byte("nobody"))
	_, err = f.mgr.Initialize(ctx, alice, unregistered, sqrtAt(t, 0))
	assert.ErrorIs(t, err, clamm.ErrHookAddressNotValid)

	_, err = f.mgr.Initialize(ctx, alice, staticKey, big.NewInt(1))
	assert.ErrorIs(t, err, clamm.ErrPriceOutOfBounds)
	assert.Empty(t, f.mgr.Pools())

	_, err = f.mgr.Swap(ctx, bob, staticKey, pool.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1), SqrtPriceLimitX96: minLimit})
	assert.ErrorIs(t, err, clamm.ErrPoolNotInitialized)
	_, err = f.mgr.Slot0(staticKey)
	assert.ErrorIs(t, err, clamm.ErrPoolNotInitialized)
}

func TestManager_RollbackOnSettlementFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.initialize(t, staticKey, 0)
	f.addLiquidity(t, staticKey, alice, -120, 120, eth(1))

	broke := common.HexToAddress("0xdead")
	before, err := f.mgr.PoolView(staticKey)
	require.NoError(t, err)

	_, err = f.mgr.Swap(ctx, broke, staticKey, pool.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100), SqrtPriceLimitX96: minLimit})
	assert.ErrorIs(t, err, clamm.ErrSettlementFailed)
	assert.ErrorIs(t, err, settlement.ErrInsufficientBalance)

	after, err := f.mgr.PoolView(staticKey)
	require.NoError(t, err)
	assert.Equal(t, mustJSON(t, before), mustJSON(t, after))

	t.Run("failing settler", func(t *testing.T) {
		mgr, err := manager.New(&manager.Config{
			Logger:   discardLogger(),
			Registry: prometheus.NewRegistry(),
			Settler:  failingSettler{},
		})
		require.NoError(t, err)

		// initialize settles nothing
		_, err = mgr.Initialize(ctx, alice, staticKey, sqrtAt(t, 0))
		require.NoError(t, err)

		_, _, err = mgr.ModifyLiquidity(ctx, alice, staticKey, pool.ModifyLiquidityParams{TickLower: -60, TickUpper: 60, LiquidityDelta: eth(1)})
		assert.ErrorIs(t, err, clamm.ErrSettlementFailed)
		liquidity, err := mgr.Liquidity(staticKey)
		require.NoError(t, err)
		assert.Zero(t, liquidity.Sign())
		_, ok, err := mgr.TickInfo(staticKey, -60)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestManager_Hooks(t *testing.T) {
	ctx := context.Background()
	params := pool.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100), SqrtPriceLimitX96: minLimit}
	errVeto := errors.New("veto")

	t.Run("before swap veto", func(t *testing.T) {
		f := newFixture(t)
		key := f.hookedKey(t, &testHook{flags: hooks.BeforeSwap, beforeSwap: func() error { return errVeto }}, "veto")
		f.initialize(t, key, 0)
		f.addLiquidity(t, key, alice, -120, 120, eth(1))
		before, err := f.mgr.PoolView(key)
		require.NoError(t, err)

		_, err = f.mgr.Swap(ctx, bob, key, params)
		assert.ErrorIs(t, err, clamm.ErrInvalidHookResponse)
		assert.ErrorIs(t, err, errVeto)

		after, err := f.mgr.PoolView(key)
		require.NoError(t, err)
		assert.Equal(t, mustJSON(t, before), mustJSON(t, after))
		assert.Equal(t, eth(1000).String(), f.vault.Balance(bob, token0).String())
	})

	t.Run("after swap failure restores the pool", func(t *testing.T) {
		f := newFixture(t)
		h := &testHook{flags: hooks.AfterSwap}
		key := f.hookedKey(t, h, "after")
		f.initialize(t, key, 0)
		f.addLiquidity(t, key, alice, -120, 120, eth(1))

		var seenTick int32
		h.afterSwap = func() (clamm.BalanceDelta, error) {
			// the hook observes the swapped pool
			slot0, err := f.mgr.Slot0(key)
			if err != nil {
				return clamm.BalanceDelta{}, err
			}
			seenTick = slot0.Tick
			return clamm.BalanceDelta{}, errVeto
		}

		_, err := f.mgr.Swap(ctx, bob, key, params)
		assert.ErrorIs(t, err, clamm.ErrInvalidHookResponse)
		assert.Equal(t, int32(-1), seenTick)

		slot0, err := f.mgr.Slot0(key)
		require.NoError(t, err)
		assert.Equal(t, int32(0), slot0.Tick)
	})

	t.Run("after swap delta is charged to the caller and paid to the hooks", func(t *testing.T) {
		f := newFixture(t)
		h := &testHook{flags: hooks.AfterSwap, afterSwap: func() (clamm.BalanceDelta, error) {
			return clamm.BalanceDelta{Amount0: big.NewInt(5)}, nil
		}}
		key := f.hookedKey(t, h, "fee")
		f.initialize(t, key, 0)
		f.addLiquidity(t, key, alice, -120, 120, eth(1))

		res, err := f.mgr.Swap(ctx, bob, key, params)
		require.NoError(t, err)
		assert.Equal(t, "(105, -98)", res.Delta.String())
		assert.Equal(t, new(big.Int).Sub(eth(1000), big.NewInt(105)).String(), f.vault.Balance(bob, token0).String())
		assert.Equal(t, "5", f.vault.Balance(key.Hooks, token0).String())
	})

	t.Run("after swap rebate larger than pool custody", func(t *testing.T) {
		f := newFixture(t)
		rebate := eth(5)
		h := &testHook{flags: hooks.AfterSwap, afterSwap: func() (clamm.BalanceDelta, error) {
			return clamm.BalanceDelta{Amount0: big.NewInt(0), Amount1: new(big.Int).Neg(rebate)}, nil
		}}
		key := f.hookedKey(t, h, "rebate")
		require.NoError(t, f.vault.Deposit(key.Hooks, token1, eth(10)))
		f.initialize(t, key, 0)
		f.addLiquidity(t, key, alice, -120, 120, eth(1))

		custody := f.vault.Custody(token1)
		require.Equal(t, -1, custody.Cmp(rebate))
		bobBefore := f.vault.Balance(bob, token1)

		res, err := f.mgr.Swap(ctx, bob, key, params)
		require.NoError(t, err)
		assert.Equal(t, new(big.Int).Sub(big.NewInt(-98), rebate).String(), res.Delta.Amount1.String())

		received := new(big.Int).Sub(f.vault.Balance(bob, token1), bobBefore)
		assert.Equal(t, new(big.Int).Add(big.NewInt(98), rebate).String(), received.String())
		assert.Equal(t, eth(5).String(), f.vault.Balance(key.Hooks, token1).String())
		assert.Equal(t, new(big.Int).Sub(custody, big.NewInt(98)).String(), f.vault.Custody(token1).String())
	})

	t.Run("re-entrant calls are rejected", func(t *testing.T) {
		f := newFixture(t)
		var inner error
		h := &testHook{flags: hooks.BeforeSwap}
		key := f.hookedKey(t, h, "reenter")
		f.initialize(t, key, 0)
		f.addLiquidity(t, key, alice, -120, 120, eth(1))

		h.beforeSwap = func() error {
			_, inner = f.mgr.Donate(ctx, bob, key, big.NewInt(1), big.NewInt(1))
			return inner
		}
		_, err := f.mgr.Swap(ctx, bob, key, params)
		assert.ErrorIs(t, inner, clamm.ErrReentrant)
		assert.ErrorIs(t, err, clamm.ErrInvalidHookResponse)
		assert.ErrorIs(t, err, clamm.ErrReentrant)

		// the guard is released afterwards
		_, err = f.mgr.Donate(ctx, bob, key, big.NewInt(1), big.NewInt(1))
		assert.NoError(t, err)
	})
}

// reentrantSettler calls back into the manager while settling.
type reentrantSettler struct {
	mgr *manager.Manager
	err error
}

func (s *reentrantSettler) Settle(ctx context.Context, _ []manager.Transfer) error {
	_, s.err = s.mgr.Initialize(ctx, alice, staticKey, big.NewInt(1))
	return nil
}

func TestManager_SettlerCannotReenter(t *testing.T) {
	ctx := context.Background()
	s := &reentrantSettler{}
	mgr, err := manager.New(&manager.Config{Logger: discardLogger(), Registry: prometheus.NewRegistry(), Settler: s})
	require.NoError(t, err)
	s.mgr = mgr

	_, err = mgr.Initialize(ctx, alice, staticKey, sqrtAt(t, 0))
	require.NoError(t, err)
	_, _, err = mgr.ModifyLiquidity(ctx, alice, staticKey, pool.ModifyLiquidityParams{TickLower: -60, TickUpper: 60, LiquidityDelta: eth(1)})
	require.NoError(t, err)
	assert.ErrorIs(t, s.err, clamm.ErrReentrant)
}

// brokenController always fails.
type brokenController struct{}

func (brokenController) ProtocolFeeForPool(context.Context, clamm.PoolKey) (clamm.ProtocolFee, error) {
	return clamm.ProtocolFee{}, errors.New("controller down")
}

func TestManager_ProtocolFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fees.Set(staticKey.ID(), clamm.ProtocolFee{ZeroForOne: 1000})
	f.initialize(t, staticKey, 0)
	f.addLiquidity(t, staticKey, alice, -120, 120, eth(1))

	slot0, err := f.mgr.Slot0(staticKey)
	require.NoError(t, err)
	assert.Equal(t, clamm.ProtocolFee{ZeroForOne: 1000}, slot0.ProtocolFee)

	res, err := f.mgr.Swap(ctx, bob, staticKey, pool.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1_000_000), SqrtPriceLimitX96: minLimit})
	require.NoError(t, err)
	assert.Equal(t, "1000", res.AmountToProtocol.String())
	assert.Equal(t, "1000", f.mgr.ProtocolFeesAccrued(token0).String())
	assert.Zero(t, f.mgr.ProtocolFeesAccrued(token1).Sign())

	_, err = f.mgr.CollectProtocolFees(ctx, treasury, token0, big.NewInt(1001))
	assert.ErrorIs(t, err, clamm.ErrInsufficientProtocolFees)

	got, err := f.mgr.CollectProtocolFees(ctx, treasury, token0, big.NewInt(400))
	require.NoError(t, err)
	assert.Equal(t, "400", got.String())

	got, err = f.mgr.CollectProtocolFees(ctx, treasury, token0, nil)
	require.NoError(t, err)
	assert.Equal(t, "600", got.String())
	assert.Equal(t, "1000", f.vault.Balance(treasury, token0).String())
	assert.Zero(t, f.mgr.ProtocolFeesAccrued(token0).Sign())

	t.Run("set protocol fee reads the controller", func(t *testing.T) {
		f.fees.Set(staticKey.ID(), clamm.ProtocolFee{OneForZero: 500})
		fee, err := f.mgr.SetProtocolFee(ctx, staticKey)
		require.NoError(t, err)
		assert.Equal(t, clamm.ProtocolFee{OneForZero: 500}, fee)
		slot0, err := f.mgr.Slot0(staticKey)
		require.NoError(t, err)
		assert.Equal(t, fee, slot0.ProtocolFee)

		f.fees.Set(staticKey.ID(), clamm.ProtocolFee{OneForZero: 1001})
		_, err = f.mgr.SetProtocolFee(ctx, staticKey)
		assert.ErrorIs(t, err, clamm.ErrProtocolFeeTooLarge)
	})

	t.Run("failing controller at initialize means zero fee", func(t *testing.T) {
		mgr, err := manager.New(&manager.Config{
			Logger:        discardLogger(),
			Registry:      prometheus.NewRegistry(),
			Settler:       settlement.NewVault(),
			FeeController: brokenController{},
		})
		require.NoError(t, err)
		_, err = mgr.Initialize(ctx, alice, staticKey, sqrtAt(t, 0))
		require.NoError(t, err)
		slot0, err := mgr.Slot0(staticKey)
		require.NoError(t, err)
		assert.True(t, slot0.ProtocolFee.IsZero())

		_, err = mgr.SetProtocolFee(ctx, staticKey)
		assert.Error(t, err)
	})
}

func TestManager_DynamicLPFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := f.hookedKey(t, &testHook{flags: hooks.BeforeSwap}, "dynamic")
	key.Fee = clamm.DynamicFeeFlag
	f.initialize(t, key, 0)
	f.initialize(t, staticKey, 0)

	slot0, err := f.mgr.Slot0(key)
	require.NoError(t, err)
	assert.Zero(t, slot0.LPFee)

	require.NoError(t, f.mgr.UpdateDynamicLPFee(ctx, key.Hooks, key, 500))
	slot0, err = f.mgr.Slot0(key)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), slot0.LPFee)

	assert.ErrorIs(t, f.mgr.UpdateDynamicLPFee(ctx, bob, key, 500), clamm.ErrUnauthorizedDynamicFeeCall)
	assert.ErrorIs(t, f.mgr.UpdateDynamicLPFee(ctx, key.Hooks, key, clamm.MaxLPFee+1), clamm.ErrInvalidFee)
	assert.ErrorIs(t, f.mgr.UpdateDynamicLPFee(ctx, staticKey.Hooks, staticKey, 500), clamm.ErrNotDynamicFee)
}

func TestManager_DonateRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := clamm.PoolKey{Currency0: token0, Currency1: token1, Fee: 100, TickSpacing: 10}
	f.initialize(t, key, 0)
	f.addLiquidity(t, key, alice, -10, 0, eth(1))
	f.addLiquidity(t, key, bob, 0, 10, eth(1))

	t.Run("failure moves nothing", func(t *testing.T) {
		before := f.vault.Balance(bob, token0)
		_, err := f.mgr.DonateRange(ctx, bob, key, []*big.Int{eth(1), eth(1)}, []*big.Int{eth(1), eth(1)}, []int32{-5, 50})
		assert.ErrorIs(t, err, clamm.ErrNoLiquidityToReceiveFees)
		assert.Equal(t, before.String(), f.vault.Balance(bob, token0).String())
	})

	custody0 := f.vault.Custody(token0)
	delta, err := f.mgr.DonateRange(ctx, bob, key, []*big.Int{eth(2)}, []*big.Int{eth(2)}, []int32{-5})
	require.NoError(t, err)
	assert.Equal(t, eth(2).String(), delta.Amount0.String())
	assert.Equal(t, new(big.Int).Add(custody0, eth(2)).String(), f.vault.Custody(token0).String())

	slot0, err := f.mgr.Slot0(key)
	require.NoError(t, err)
	assert.Equal(t, int32(0), slot0.Tick)

	_, feesA, err := f.mgr.ModifyLiquidity(ctx, alice, key, pool.ModifyLiquidityParams{TickLower: -10, TickUpper: 0})
	require.NoError(t, err)
	assert.Equal(t, eth(-2).String(), feesA.Amount0.String())
	assert.Equal(t, eth(-2).String(), feesA.Amount1.String())

	_, feesB, err := f.mgr.ModifyLiquidity(ctx, bob, key, pool.ModifyLiquidityParams{TickLower: 0, TickUpper: 10})
	require.NoError(t, err)
	assert.True(t, feesB.IsZero())
}

func TestManager_Metrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.initialize(t, staticKey, 0)
	f.addLiquidity(t, staticKey, alice, -60, 60, eth(1))

	_, err := f.mgr.Swap(ctx, bob, staticKey, pool.SwapParams{ZeroForOne: true, AmountSpecified: eth(100), SqrtPriceLimitX96: sqrtAt(t, -120)})
	require.NoError(t, err)
	_, err = f.mgr.Swap(ctx, bob, staticKey, pool.SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(0), SqrtPriceLimitX96: maxLimit})
	require.ErrorIs(t, err, clamm.ErrSwapAmountZero)

	expected := `
# HELP clamm_manager_pools Initialized pools.
# TYPE clamm_manager_pools gauge
clamm_manager_pools 1
# HELP clamm_manager_ticks_crossed_total Initialized ticks crossed by committed swaps.
# TYPE clamm_manager_ticks_crossed_total counter
clamm_manager_ticks_crossed_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(expected),
		"clamm_manager_pools", "clamm_manager_ticks_crossed_total"))

	ops := `
# HELP clamm_manager_operations_total Mutating manager operations by kind and result.
# TYPE clamm_manager_operations_total counter
clamm_manager_operations_total{op="initialize",result="ok"} 1
clamm_manager_operations_total{op="modify_liquidity",result="ok"} 1
clamm_manager_operations_total{op="swap",result="error"} 1
clamm_manager_operations_total{op="swap",result="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(ops), "clamm_manager_operations_total"))
}

type recordingSnapshotter struct {
	views []clamm.PoolView
	err   error
}

func (r *recordingSnapshotter) SavePool(_ context.Context, view clamm.PoolView) error {
	r.views = append(r.views, view)
	return r.err
}

func TestSnapshotters_FanOut(t *testing.T) {
	broken := &recordingSnapshotter{err: errors.New("disk full")}
	healthy := &recordingSnapshotter{}
	snaps := manager.Snapshotters{broken, healthy}

	err := snaps.SavePool(context.Background(), clamm.PoolView{ID: staticKey.ID()})
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, broken.views, 1)
	assert.Len(t, healthy.views, 1)

	assert.NoError(t, manager.Snapshotters{}.SavePool(context.Background(), clamm.PoolView{}))
}

func TestManager_SnapshotsCommittedPools(t *testing.T) {
	broken := &recordingSnapshotter{err: errors.New("unavailable")}
	healthy := &recordingSnapshotter{}
	vault := settlement.NewVault()
	mgr, err := manager.New(&manager.Config{
		Logger:    discardLogger(),
		Registry:  prometheus.NewRegistry(),
		Settler:   vault,
		Snapshots: manager.Snapshotters{broken, healthy},
	})
	require.NoError(t, err)
	ctx := context.Background()

	// a failing snapshotter does not fail the operation
	_, err = mgr.Initialize(ctx, alice, staticKey, sqrtAt(t, 0))
	require.NoError(t, err)
	require.Len(t, healthy.views, 1)
	assert.Equal(t, staticKey.ID(), healthy.views[0].ID)

	// rolled back operations are not published
	_, _, err = mgr.ModifyLiquidity(ctx, alice, staticKey, pool.ModifyLiquidityParams{
		TickLower: -60, TickUpper: 60, LiquidityDelta: eth(1),
	})
	require.ErrorIs(t, err, clamm.ErrSettlementFailed)
	assert.Len(t, healthy.views, 1)
}
