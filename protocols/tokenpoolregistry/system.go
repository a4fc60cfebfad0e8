package tokenpoolregistry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
)

// DefaultMaxHops bounds Route when the caller passes zero.
const DefaultMaxHops = 3

// TokenPoolSystem is the concurrency-safe layer over a TokenPoolRegistry. Writes
// take the mutex; View reads a cached snapshot without locking.
type TokenPoolSystem struct {
	mu         sync.RWMutex
	registry   *TokenPoolRegistry
	cachedView atomic.Pointer[TokenPoolRegistryView]
}

func NewTokenPoolSystem() *TokenPoolSystem {
	s := &TokenPoolSystem{
		registry: NewTokenPoolRegistry(),
	}
	s.cachedView.Store(s.registry.view())
	return s
}

// updateCachedView MUST be called with s.mu held for writing.
func (s *TokenPoolSystem) updateCachedView() {
	s.cachedView.Store(s.registry.view())
}

// AddPool links the currencies of key.
func (s *TokenPoolSystem) AddPool(key clamm.PoolKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry.hasPool(key.ID()) {
		return
	}
	s.registry.add(key)
	s.updateCachedView()
}

// AddPools links many pools and refreshes the cached view once.
func (s *TokenPoolSystem) AddPools(keys []clamm.PoolKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	for _, key := range keys {
		if s.registry.hasPool(key.ID()) {
			continue
		}
		s.registry.add(key)
		added = true
	}
	if added {
		s.updateCachedView()
	}
}

// SavePool indexes the pool of a committed view. Pools are never removed from
// the engine, so only the first view of a pool changes the graph.
func (s *TokenPoolSystem) SavePool(_ context.Context, view clamm.PoolView) error {
	s.AddPool(view.Key)
	return nil
}

func (s *TokenPoolSystem) PoolsForToken(c clamm.Currency) []clamm.PoolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForToken(c)
}

func (s *TokenPoolSystem) PoolsBetween(a, b clamm.Currency) []clamm.PoolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsBetween(a, b)
}

// Route returns the shortest chain of hops from one currency to another, or nil
// when none exists within maxHops. Zero maxHops means DefaultMaxHops.
func (s *TokenPoolSystem) Route(from, to clamm.Currency, maxHops int) []Hop {
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.route(from, to, maxHops)
}

// View returns a deep copy of the cached snapshot.
func (s *TokenPoolSystem) View() *TokenPoolRegistryView {
	cached := s.cachedView.Load()
	if cached == nil {
		return &TokenPoolRegistryView{}
	}

	tokensCopy := make([]clamm.Currency, len(cached.Tokens))
	copy(tokensCopy, cached.Tokens)

	poolsCopy := make([]clamm.PoolID, len(cached.Pools))
	copy(poolsCopy, cached.Pools)

	adjacencyCopy := make([][]int, len(cached.Adjacency))
	for i, adj := range cached.Adjacency {
		adjCopy := make([]int, len(adj))
		copy(adjCopy, adj)
		adjacencyCopy[i] = adjCopy
	}

	edgeTargetsCopy := make([]int, len(cached.EdgeTargets))
	copy(edgeTargetsCopy, cached.EdgeTargets)

	edgePoolsCopy := make([][]int, len(cached.EdgePools))
	for i, poolList := range cached.EdgePools {
		listCopy := make([]int, len(poolList))
		copy(listCopy, poolList)
		edgePoolsCopy[i] = listCopy
	}

	return &TokenPoolRegistryView{
		Tokens:      tokensCopy,
		Pools:       poolsCopy,
		Adjacency:   adjacencyCopy,
		EdgeTargets: edgeTargetsCopy,
		EdgePools:   edgePoolsCopy,
	}
}
