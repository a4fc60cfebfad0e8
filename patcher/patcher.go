package patcher

import (
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/clamm-engine-go/differ"
	"github.com/defistate/clamm-engine-go/engine"
	"github.com/defistate/clamm-engine-go/protocols/clamm"
)

// PoolsPatcherFunc applies a pool diff to a previous set of views.
//
// CONTRACT: implementations MUST NOT mutate prevState.
type PoolsPatcherFunc func(prevState []clamm.PoolView, diff clamm.PoolSystemDiff) ([]clamm.PoolView, error)

type StatePatcherConfig struct {
	// Pools defaults to clamm.Patcher.
	Pools PoolsPatcherFunc
}

// StatePatcher applies state diffs in commit order.
type StatePatcher struct {
	pools PoolsPatcherFunc
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if cfg == nil {
		return nil, errors.New("patcher: config cannot be nil")
	}
	pools := cfg.Pools
	if pools == nil {
		pools = clamm.Patcher
	}
	return &StatePatcher{pools: pools}, nil
}

// Patch creates a new State by applying diff to oldState. oldState is not modified.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.Seq != diff.FromSeq {
		return nil, fmt.Errorf("patcher: mismatch fromSeq (state=%d, diff=%d)", oldState.Seq, diff.FromSeq)
	}
	if diff.ToSeq <= diff.FromSeq {
		return nil, fmt.Errorf("patcher: diff goes backwards (from=%d, to=%d)", diff.FromSeq, diff.ToSeq)
	}

	pools, err := p.pools(oldState.Pools, diff.Pools)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch pools: %w", err)
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].ID.Cmp(pools[j].ID) < 0
	})

	return &engine.State{
		Seq:       diff.ToSeq,
		Timestamp: diff.Timestamp,
		Pools:     pools,
	}, nil
}
