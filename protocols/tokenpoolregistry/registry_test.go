package tokenpoolregistry

import (
	"testing"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = common.HexToAddress("0x1000")
	weth = common.HexToAddress("0x2000")
	dai  = common.HexToAddress("0x3000")
	wbtc = common.HexToAddress("0x4000")
	link = common.HexToAddress("0x5000")
)

func key(a, b clamm.Currency, fee uint32) clamm.PoolKey {
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	return clamm.PoolKey{Currency0: a, Currency1: b, Fee: fee, TickSpacing: 60}
}

// poolsFromView resolves the pools of a currency using only the view.
func poolsFromView(view *TokenPoolRegistryView, c clamm.Currency) []clamm.PoolID {
	for i, token := range view.Tokens {
		if token != c {
			continue
		}
		seen := map[clamm.PoolID]bool{}
		var out []clamm.PoolID
		for _, edgeIndex := range view.Adjacency[i] {
			for _, poolIndex := range view.EdgePools[edgeIndex] {
				id := view.Pools[poolIndex]
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
		return out
	}
	return nil
}

func TestTokenPoolRegistry(t *testing.T) {
	r := NewTokenPoolRegistry()
	usdcWeth := key(usdc, weth, 500)
	usdcWeth30 := key(usdc, weth, 3000)
	wethDai := key(weth, dai, 3000)

	r.add(usdcWeth)
	r.add(usdcWeth30)
	r.add(wethDai)
	// re-adding is a no-op on the edges
	r.add(usdcWeth)

	assert.ElementsMatch(t, []clamm.PoolID{usdcWeth.ID(), usdcWeth30.ID(), wethDai.ID()}, r.poolsForToken(weth))
	assert.ElementsMatch(t, []clamm.PoolID{usdcWeth.ID(), usdcWeth30.ID()}, r.poolsForToken(usdc))
	assert.Nil(t, r.poolsForToken(wbtc))

	assert.Equal(t, []clamm.PoolID{usdcWeth.ID(), usdcWeth30.ID()}, r.poolsBetween(usdc, weth))
	assert.Equal(t, []clamm.PoolID{usdcWeth.ID(), usdcWeth30.ID()}, r.poolsBetween(weth, usdc))
	assert.Nil(t, r.poolsBetween(usdc, dai))

	view := r.view()
	require.Len(t, view.Tokens, 3)
	require.Len(t, view.Pools, 3)
	// two directed edges per currency pair
	assert.Len(t, view.EdgeTargets, 4)
	assert.ElementsMatch(t, r.poolsForToken(weth), poolsFromView(view, weth))
}

func TestTokenPoolRegistry_Route(t *testing.T) {
	r := NewTokenPoolRegistry()
	// usdc - weth - dai - wbtc, plus a direct usdc - dai pool; link is isolated
	r.add(key(usdc, weth, 500))
	r.add(key(weth, dai, 500))
	r.add(key(dai, wbtc, 500))
	r.add(key(usdc, dai, 100))
	r.add(key(link, link, 500))

	hops := r.route(usdc, wbtc, 3)
	require.Len(t, hops, 2)
	assert.Equal(t, usdc, hops[0].From)
	assert.Equal(t, dai, hops[0].To)
	assert.Equal(t, []clamm.PoolID{key(usdc, dai, 100).ID()}, hops[0].Pools)
	assert.Equal(t, dai, hops[1].From)
	assert.Equal(t, wbtc, hops[1].To)

	hops = r.route(wbtc, weth, 3)
	require.Len(t, hops, 2)
	assert.Equal(t, weth, hops[1].To)

	assert.Nil(t, r.route(usdc, wbtc, 1), "no direct pool")
	assert.Nil(t, r.route(usdc, link, 5), "disconnected")
	assert.Nil(t, r.route(usdc, usdc, 3))
	assert.Nil(t, r.route(usdc, common.HexToAddress("0xdead"), 3))
}
