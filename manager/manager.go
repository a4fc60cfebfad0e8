// Package manager owns every pool of the engine. It serializes mutating calls,
// runs hook checkpoints, settles balance deltas and commits each operation
// atomically: a failed operation leaves no observable state behind.
package manager

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/hooks"
	"github.com/defistate/clamm-engine-go/protocols/clamm/pool"
	"github.com/defistate/clamm-engine-go/protocols/clamm/position"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opInitialize          = "initialize"
	opModifyLiquidity     = "modify_liquidity"
	opSwap                = "swap"
	opDonate              = "donate"
	opDonateRange         = "donate_range"
	opSetProtocolFee      = "set_protocol_fee"
	opCollectProtocolFees = "collect_protocol_fees"
	opUpdateDynamicLPFee  = "update_dynamic_lp_fee"
)

// Logger is the structured logger the manager reports through. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Snapshotter receives the view of every pool after a committed change.
type Snapshotter interface {
	SavePool(ctx context.Context, view clamm.PoolView) error
}

// Snapshotters fans a view out to several snapshotters. Every snapshotter sees
// the view even when an earlier one fails.
type Snapshotters []Snapshotter

func (s Snapshotters) SavePool(ctx context.Context, view clamm.PoolView) error {
	var errs []error
	for _, snap := range s {
		if err := snap.SavePool(ctx, view); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config holds the dependencies of a Manager.
type Config struct {
	Logger   Logger
	Registry prometheus.Registerer
	Settler  Settler
	// Hooks resolves hooks addresses. Nil means no pool may use hooks.
	Hooks *hooks.Registry
	// FeeController is optional; without it the protocol fee is always zero.
	FeeController ProtocolFeeController
	// Snapshots is optional.
	Snapshots Snapshotter
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Settler == nil {
		return errors.New("config: Settler cannot be nil")
	}
	return nil
}

type poolEntry struct {
	key   clamm.PoolKey
	state *pool.State
}

// Manager is safe for concurrent use. Mutating calls never interleave: a call
// made while another is in flight, including one made from a hook or the
// settler, fails with clamm.ErrReentrant.
type Manager struct {
	logger        Logger
	metrics       *Metrics
	settler       Settler
	hooks         *hooks.Registry
	feeController ProtocolFeeController
	snapshots     Snapshotter

	inProgress atomic.Bool

	mu           sync.RWMutex
	pools        map[clamm.PoolID]*poolEntry
	protocolFees map[clamm.Currency]*big.Int
}

// New constructs a manager from cfg.
func New(cfg *Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	registry := cfg.Hooks
	if registry == nil {
		registry = hooks.NewRegistry()
	}
	return &Manager{
		logger:        cfg.Logger,
		metrics:       NewMetrics(cfg.Registry),
		settler:       cfg.Settler,
		hooks:         registry,
		feeController: cfg.FeeController,
		snapshots:     cfg.Snapshots,
		pools:         make(map[clamm.PoolID]*poolEntry),
		protocolFees:  make(map[clamm.Currency]*big.Int),
	}, nil
}

// Hooks returns the registry used to resolve hooks addresses.
func (m *Manager) Hooks() *hooks.Registry {
	return m.hooks
}

// begin marks a mutating call in flight. The returned function clears the mark.
func (m *Manager) begin() (func(), error) {
	if !m.inProgress.CompareAndSwap(false, true) {
		return nil, clamm.ErrReentrant
	}
	return func() { m.inProgress.Store(false) }, nil
}

func (m *Manager) lookup(key clamm.PoolKey) (*poolEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.pools[key.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", clamm.ErrPoolNotInitialized, key.ID().Hex())
	}
	return e, nil
}

func (m *Manager) publish(key clamm.PoolKey, state *pool.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[key.ID()] = &poolEntry{key: key, state: state}
	m.metrics.poolsTotal.Set(float64(len(m.pools)))
}

// restore puts prev back in place. A nil state removes the pool.
func (m *Manager) restore(key clamm.PoolKey, prev *pool.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev == nil {
		delete(m.pools, key.ID())
	} else {
		m.pools[key.ID()] = &poolEntry{key: key, state: prev}
	}
	m.metrics.poolsTotal.Set(float64(len(m.pools)))
}

// commit publishes next so that after checkpoints observe it, folds the hook's
// delta into the caller's and settles both sides. Any failure restores prev.
func (m *Manager) commit(
	ctx context.Context,
	sender common.Address,
	prev *poolEntry,
	next *pool.State,
	delta clamm.BalanceDelta,
	after func() (clamm.BalanceDelta, error),
) (clamm.BalanceDelta, error) {
	m.publish(prev.key, next)

	extra, err := after()
	if err != nil {
		m.restore(prev.key, prev.state)
		return clamm.BalanceDelta{}, err
	}

	total := delta.Add(extra)
	transfers := deltaTransfers(sender, prev.key, total)
	transfers = append(transfers, deltaTransfers(prev.key.Hooks, prev.key, extra.Neg())...)
	if len(transfers) > 0 {
		if err := m.settler.Settle(ctx, transfers); err != nil {
			m.restore(prev.key, prev.state)
			return clamm.BalanceDelta{}, fmt.Errorf("%w: %w", clamm.ErrSettlementFailed, err)
		}
	}
	return total, nil
}

// snapshot hands the committed view to the snapshotter. Failures are logged only.
func (m *Manager) snapshot(ctx context.Context, key clamm.PoolKey, state *pool.State) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.SavePool(ctx, state.View(key)); err != nil {
		m.logger.Warn("failed to save pool snapshot", "pool", key.ID().Hex(), "error", err)
	}
}

// Slot0 returns the header of a pool.
func (m *Manager) Slot0(key clamm.PoolKey) (clamm.Slot0, error) {
	e, err := m.lookup(key)
	if err != nil {
		return clamm.Slot0{}, err
	}
	return e.state.Slot0(), nil
}

// Liquidity returns the active liquidity of a pool.
func (m *Manager) Liquidity(key clamm.PoolKey) (*big.Int, error) {
	e, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	return e.state.Liquidity().Big(), nil
}

// FeeGrowthGlobals returns the two global fee growth accumulators of a pool.
func (m *Manager) FeeGrowthGlobals(key clamm.PoolKey) (feeGrowthGlobal0X128, feeGrowthGlobal1X128 *big.Int, err error) {
	e, err := m.lookup(key)
	if err != nil {
		return nil, nil, err
	}
	fg0, fg1 := e.state.FeeGrowthGlobals()
	return fg0.ToBig(), fg1.ToBig(), nil
}

// SpotPrice returns the marginal price of one whole input unit, scaled by the output decimals.
func (m *Manager) SpotPrice(key clamm.PoolKey, zeroForOne bool, decimals0, decimals1 uint8) (*big.Int, error) {
	e, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	return e.state.SpotPrice(zeroForOne, decimals0, decimals1)
}

// TickInfo returns an initialized tick of a pool.
func (m *Manager) TickInfo(key clamm.PoolKey, tick int32) (clamm.TickView, bool, error) {
	e, err := m.lookup(key)
	if err != nil {
		return clamm.TickView{}, false, err
	}
	t, ok := e.state.Tick(tick)
	return t, ok, nil
}

// Position returns a position of a pool.
func (m *Manager) Position(key clamm.PoolKey, owner common.Address, tickLower, tickUpper int32, salt [32]byte) (clamm.PositionView, bool, error) {
	e, err := m.lookup(key)
	if err != nil {
		return clamm.PositionView{}, false, err
	}
	p, ok := e.state.Position(position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper, Salt: salt})
	return p, ok, nil
}

// Positions returns every position of a pool.
func (m *Manager) Positions(key clamm.PoolKey) ([]clamm.PositionView, error) {
	e, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	return e.state.Positions(), nil
}

// PoolView returns a snapshot of one pool.
func (m *Manager) PoolView(key clamm.PoolKey) (clamm.PoolView, error) {
	e, err := m.lookup(key)
	if err != nil {
		return clamm.PoolView{}, err
	}
	return e.state.View(e.key), nil
}

// Pools returns a snapshot of every pool, ordered by id.
func (m *Manager) Pools() []clamm.PoolView {
	m.mu.RLock()
	entries := make([]*poolEntry, 0, len(m.pools))
	for _, e := range m.pools {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	views := make([]clamm.PoolView, len(entries))
	for i, e := range entries {
		views[i] = e.state.View(e.key)
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].ID.Cmp(views[j].ID) < 0
	})
	return views
}
