package tokenpoolregistry

import (
	"github.com/defistate/clamm-engine-go/protocols/clamm"
)

// TokenPoolRegistryView is a snapshot of the currency graph. Adjacency[i] holds
// the edge indices leaving Tokens[i]; every edge points at EdgeTargets[e] through
// the pools listed in EdgePools[e].
type TokenPoolRegistryView struct {
	Tokens      []clamm.Currency `json:"tokens"`
	Pools       []clamm.PoolID   `json:"pools"`
	Adjacency   [][]int          `json:"adjacency"`
	EdgeTargets []int            `json:"edgeTargets"`
	EdgePools   [][]int          `json:"edgePools"`
}

// TokenPoolRegistry links currencies through the pools that pair them. It is
// not safe for concurrent use.
type TokenPoolRegistry struct {
	tokenToIndex map[clamm.Currency]int
	poolToIndex  map[clamm.PoolID]int

	tokens      []clamm.Currency
	pools       []clamm.PoolID
	adjacency   [][]int
	edgeTargets []int
	edgePools   [][]int
}

func NewTokenPoolRegistry() *TokenPoolRegistry {
	return &TokenPoolRegistry{
		tokenToIndex: make(map[clamm.Currency]int),
		poolToIndex:  make(map[clamm.PoolID]int),
	}
}

func (r *TokenPoolRegistry) tokenIndex(c clamm.Currency) int {
	i, ok := r.tokenToIndex[c]
	if !ok {
		i = len(r.tokens)
		r.tokens = append(r.tokens, c)
		r.tokenToIndex[c] = i
		r.adjacency = append(r.adjacency, nil)
	}
	return i
}

// addEdge creates or extends the directed edge from -> to with pool.
func (r *TokenPoolRegistry) addEdge(from, to clamm.Currency, pool clamm.PoolID) {
	fromIndex := r.tokenIndex(from)
	toIndex := r.tokenIndex(to)
	poolIndex, exists := r.poolToIndex[pool]
	if !exists {
		poolIndex = len(r.pools)
		r.pools = append(r.pools, pool)
		r.poolToIndex[pool] = poolIndex
	}

	for _, edgeIndex := range r.adjacency[fromIndex] {
		if r.edgeTargets[edgeIndex] != toIndex {
			continue
		}
		for _, existing := range r.edgePools[edgeIndex] {
			if existing == poolIndex {
				return
			}
		}
		r.edgePools[edgeIndex] = append(r.edgePools[edgeIndex], poolIndex)
		return
	}

	newEdgeIndex := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, toIndex)
	r.edgePools = append(r.edgePools, []int{poolIndex})
	r.adjacency[fromIndex] = append(r.adjacency[fromIndex], newEdgeIndex)
}

// add links both currencies of key in both directions.
func (r *TokenPoolRegistry) add(key clamm.PoolKey) {
	id := key.ID()
	r.addEdge(key.Currency0, key.Currency1, id)
	r.addEdge(key.Currency1, key.Currency0, id)
}

func (r *TokenPoolRegistry) hasPool(id clamm.PoolID) bool {
	_, ok := r.poolToIndex[id]
	return ok
}

// poolsForToken returns every pool holding c, in insertion order.
func (r *TokenPoolRegistry) poolsForToken(c clamm.Currency) []clamm.PoolID {
	tokenIndex, exists := r.tokenToIndex[c]
	if !exists {
		return nil
	}
	seen := make(map[int]struct{})
	var out []clamm.PoolID
	for _, edgeIndex := range r.adjacency[tokenIndex] {
		for _, poolIndex := range r.edgePools[edgeIndex] {
			if _, dup := seen[poolIndex]; dup {
				continue
			}
			seen[poolIndex] = struct{}{}
			out = append(out, r.pools[poolIndex])
		}
	}
	return out
}

// poolsBetween returns the pools pairing a with b.
func (r *TokenPoolRegistry) poolsBetween(a, b clamm.Currency) []clamm.PoolID {
	aIndex, okA := r.tokenToIndex[a]
	bIndex, okB := r.tokenToIndex[b]
	if !okA || !okB {
		return nil
	}
	for _, edgeIndex := range r.adjacency[aIndex] {
		if r.edgeTargets[edgeIndex] != bIndex {
			continue
		}
		out := make([]clamm.PoolID, 0, len(r.edgePools[edgeIndex]))
		for _, poolIndex := range r.edgePools[edgeIndex] {
			out = append(out, r.pools[poolIndex])
		}
		return out
	}
	return nil
}

// Hop is one leg of a route.
type Hop struct {
	From clamm.Currency `json:"from"`
	To   clamm.Currency `json:"to"`
	// Pools pairing From and To; any of them can carry the leg.
	Pools []clamm.PoolID `json:"pools"`
}

// route finds a path with the fewest hops from one currency to another using a
// breadth-first search. Paths longer than maxHops are not considered.
func (r *TokenPoolRegistry) route(from, to clamm.Currency, maxHops int) []Hop {
	src, okSrc := r.tokenToIndex[from]
	dst, okDst := r.tokenToIndex[to]
	if !okSrc || !okDst || src == dst || maxHops < 1 {
		return nil
	}

	// token i was first reached from parent[i] over edge via[i]
	via := make([]int, len(r.tokens))
	parent := make([]int, len(r.tokens))
	depth := make([]int, len(r.tokens))
	queue := []int{src}
	visited := map[int]bool{src: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == dst {
			break
		}
		if depth[cur] == maxHops {
			continue
		}
		for _, edgeIndex := range r.adjacency[cur] {
			next := r.edgeTargets[edgeIndex]
			if visited[next] {
				continue
			}
			visited[next] = true
			via[next] = edgeIndex
			parent[next] = cur
			depth[next] = depth[cur] + 1
			queue = append(queue, next)
		}
	}
	if !visited[dst] {
		return nil
	}

	hops := make([]Hop, depth[dst])
	for cur, i := dst, depth[dst]-1; cur != src; i-- {
		edgeIndex := via[cur]
		prev := parent[cur]
		pools := make([]clamm.PoolID, 0, len(r.edgePools[edgeIndex]))
		for _, poolIndex := range r.edgePools[edgeIndex] {
			pools = append(pools, r.pools[poolIndex])
		}
		hops[i] = Hop{From: r.tokens[prev], To: r.tokens[cur], Pools: pools}
		cur = prev
	}
	return hops
}

// view returns a deep copy of the graph.
func (r *TokenPoolRegistry) view() *TokenPoolRegistryView {
	tokensCopy := make([]clamm.Currency, len(r.tokens))
	copy(tokensCopy, r.tokens)

	poolsCopy := make([]clamm.PoolID, len(r.pools))
	copy(poolsCopy, r.pools)

	adjacencyCopy := make([][]int, len(r.adjacency))
	for i, adj := range r.adjacency {
		adjCopy := make([]int, len(adj))
		copy(adjCopy, adj)
		adjacencyCopy[i] = adjCopy
	}

	edgeTargetsCopy := make([]int, len(r.edgeTargets))
	copy(edgeTargetsCopy, r.edgeTargets)

	edgePoolsCopy := make([][]int, len(r.edgePools))
	for i, poolList := range r.edgePools {
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
