package tickmath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// MIN_TICK is the lowest tick whose price can be represented.
	MIN_TICK int32 = -887272
	// MAX_TICK is the highest tick whose price can be represented.
	MAX_TICK int32 = 887272
)

var (
	// MIN_SQRT_RATIO is GetSqrtRatioAtTick(MIN_TICK).
	MIN_SQRT_RATIO, _ = new(big.Int).SetString("4295128739", 10)
	// MAX_SQRT_RATIO is GetSqrtRatioAtTick(MAX_TICK). Prices must stay strictly below it.
	MAX_SQRT_RATIO, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	ErrTickOutOfBounds      = errors.New("tick out of bounds")
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")

	one        = uint256.NewInt(1)
	maxUint256 = new(uint256.Int).Not(new(uint256.Int))

	// ratios[0] seeds odd ticks, ratios[1] is 1.0 in Q128.128 and seeds even ticks.
	// ratios[i] for i >= 2 is 1/sqrt(1.0001^(2^(i-1))) in Q128.128.
	ratios = [21]*uint256.Int{
		hexConst("0xfffcb933bd6fad37aa2d162d1a594001"),
		hexConst("0x100000000000000000000000000000000"),
		hexConst("0xfff97272373d413259a46990580e213a"),
		hexConst("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		hexConst("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		hexConst("0xffcb9843d60f6159c9db58835c926644"),
		hexConst("0xff973b41fa98c081472e6896dfb254c0"),
		hexConst("0xff2ea16466c96a3843ec78b326b52861"),
		hexConst("0xfe5dee046a99a2a811c461f1969c3053"),
		hexConst("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		hexConst("0xf987a7253ac413176f2b074cf7815e54"),
		hexConst("0xf3392b0822b70005940c7a398e4b70f3"),
		hexConst("0xe7159475a2c29b7443b29c7fa6e889d9"),
		hexConst("0xd097f3bdfd2022b8845ad8f792aa5825"),
		hexConst("0xa9f746462d870fdf8a65dc1f90e061e5"),
		hexConst("0x70d869a156d2a1b890bb3df62baf32f7"),
		hexConst("0x31be135f97d08fd981231505542fcfa6"),
		hexConst("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		hexConst("0x5d6af8dedb81196699c329225ee604"),
		hexConst("0x2216e584f5fa1ea926041bedfe98"),
		hexConst("0x48a170391f7dc42444e8fa2"),
	}

	// low32 masks the bits dropped when converting Q128.128 to Q64.96.
	low32 = uint256.NewInt(0xffffffff)
)

// scratch holds the per-call working values.
type scratch struct {
	ratio *uint256.Int
	rem   *uint256.Int
	probe *big.Int
}

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{
			ratio: new(uint256.Int),
			rem:   new(uint256.Int),
			probe: new(big.Int),
		}
	},
}

// GetSqrtRatioAtTick writes sqrt(1.0001^tick) as a Q64.96 value into dest.
// The result is rounded up so that GetTickAtSqrtRatio(result) == tick.
func GetSqrtRatioAtTick(dest *big.Int, tick int32) error {
	if tick < MIN_TICK || tick > MAX_TICK {
		return ErrTickOutOfBounds
	}

	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	s.sqrtRatio(tick)
	s.ratio.IntoBig(&dest)
	return nil
}

func (s *scratch) sqrtRatio(tick int32) {
	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	if absTick&0x1 != 0 {
		s.ratio.Set(ratios[0])
	} else {
		s.ratio.Set(ratios[1])
	}
	for i := 2; i < len(ratios); i++ {
		if absTick&(1<<(i-1)) != 0 {
			s.ratio.Mul(s.ratio, ratios[i]).Rsh(s.ratio, 128)
		}
	}

	if tick > 0 {
		s.ratio.Div(maxUint256, s.ratio)
	}

	s.rem.And(s.ratio, low32)
	s.ratio.Rsh(s.ratio, 32)
	if !s.rem.IsZero() {
		s.ratio.Add(s.ratio, one)
	}
}

// GetTickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
// Valid prices lie in [MIN_SQRT_RATIO, MAX_SQRT_RATIO).
func GetTickAtSqrtRatio(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MIN_SQRT_RATIO) < 0 || sqrtPriceX96.Cmp(MAX_SQRT_RATIO) >= 0 {
		return 0, ErrSqrtPriceOutOfBounds
	}

	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	low, high := MIN_TICK, MAX_TICK
	tick := MIN_TICK
	for low <= high {
		mid := low + (high-low)/2
		s.sqrtRatio(mid)
		s.ratio.IntoBig(&s.probe)

		if s.probe.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	return tick, nil
}

// CheckTick reports whether tick lies inside [MIN_TICK, MAX_TICK].
func CheckTick(tick int32) error {
	if tick < MIN_TICK || tick > MAX_TICK {
		return ErrTickOutOfBounds
	}
	return nil
}

// CheckSqrtPrice reports whether sqrtPriceX96 lies inside [MIN_SQRT_RATIO, MAX_SQRT_RATIO).
func CheckSqrtPrice(sqrtPriceX96 *big.Int) error {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MIN_SQRT_RATIO) < 0 || sqrtPriceX96.Cmp(MAX_SQRT_RATIO) >= 0 {
		return ErrSqrtPriceOutOfBounds
	}
	return nil
}

func hexConst(s string) *uint256.Int {
	return uint256.MustFromHex(s)
}
