// Package hooks defines the checkpoints a pool can delegate to external code
// and the registry that resolves a pool's hooks address to an implementation.
package hooks

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/defistate/clamm-engine-go/protocols/clamm/pool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Flags is the set of checkpoints a hooks implementation takes part in.
// The same bits are encoded in the first two bytes of its address.
type Flags uint16

const (
	BeforeInitialize Flags = 1 << iota
	AfterInitialize
	BeforeModifyLiquidity
	AfterModifyLiquidity
	BeforeSwap
	AfterSwap
	BeforeDonate
	AfterDonate

	// AllFlags is every defined checkpoint.
	AllFlags = BeforeInitialize | AfterInitialize | BeforeModifyLiquidity | AfterModifyLiquidity |
		BeforeSwap | AfterSwap | BeforeDonate | AfterDonate
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{BeforeInitialize, "beforeInitialize"},
	{AfterInitialize, "afterInitialize"},
	{BeforeModifyLiquidity, "beforeModifyLiquidity"},
	{AfterModifyLiquidity, "afterModifyLiquidity"},
	{BeforeSwap, "beforeSwap"},
	{AfterSwap, "afterSwap"},
	{BeforeDonate, "beforeDonate"},
	{AfterDonate, "afterDonate"},
}

// Has reports whether every bit of flag is set in f.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	if rest := f &^ AllFlags; rest != 0 {
		names = append(names, fmt.Sprintf("0x%04x", uint16(rest)))
	}
	return strings.Join(names, "|")
}

var (
	ErrFlagsMismatch     = errors.New("address flags do not match hook permissions")
	ErrUnknownFlags      = errors.New("unknown hook flags")
	ErrMissingCheckpoint = errors.New("hook declares a checkpoint it does not implement")
	ErrNotRegistered     = errors.New("hooks address not registered")
)

// Hooks is implemented by every hooks contract. Permissions must match the
// flags encoded in the address the implementation is registered under.
type Hooks interface {
	Permissions() Flags
}

type BeforeInitializeHook interface {
	BeforeInitialize(ctx context.Context, sender common.Address, key clamm.PoolKey, sqrtPriceX96 *big.Int) error
}

type AfterInitializeHook interface {
	AfterInitialize(ctx context.Context, sender common.Address, key clamm.PoolKey, sqrtPriceX96 *big.Int, tick int32) error
}

type BeforeModifyLiquidityHook interface {
	BeforeModifyLiquidity(ctx context.Context, sender common.Address, key clamm.PoolKey, params pool.ModifyLiquidityParams) error
}

// AfterModifyLiquidityHook may return a delta that is added to the caller's.
type AfterModifyLiquidityHook interface {
	AfterModifyLiquidity(
		ctx context.Context,
		sender common.Address,
		key clamm.PoolKey,
		params pool.ModifyLiquidityParams,
		delta, feesAccrued clamm.BalanceDelta,
	) (clamm.BalanceDelta, error)
}

type BeforeSwapHook interface {
	BeforeSwap(ctx context.Context, sender common.Address, key clamm.PoolKey, params pool.SwapParams) error
}

// AfterSwapHook may return a delta that is added to the caller's.
type AfterSwapHook interface {
	AfterSwap(ctx context.Context, sender common.Address, key clamm.PoolKey, params pool.SwapParams, delta clamm.BalanceDelta) (clamm.BalanceDelta, error)
}

type BeforeDonateHook interface {
	BeforeDonate(ctx context.Context, sender common.Address, key clamm.PoolKey, amount0, amount1 *big.Int) error
}

// AfterDonateHook may return a delta that is added to the caller's.
type AfterDonateHook interface {
	AfterDonate(ctx context.Context, sender common.Address, key clamm.PoolKey, amount0, amount1 *big.Int) (clamm.BalanceDelta, error)
}

// AddressFlags returns the checkpoint flags encoded in addr.
func AddressFlags(addr common.Address) Flags {
	return Flags(binary.BigEndian.Uint16(addr[:2]))
}

// AddressFor derives an address that carries flags, the remaining bytes taken
// from the Keccak-256 hash of salt.
func AddressFor(flags Flags, salt []byte) common.Address {
	var addr common.Address
	copy(addr[:], crypto.Keccak256(salt)[12:])
	binary.BigEndian.PutUint16(addr[:2], uint16(flags))
	return addr
}

// Validate checks that h may be registered at addr: the address must encode
// exactly the declared permissions, and every declared checkpoint must be implemented.
func Validate(addr common.Address, h Hooks) error {
	perms := h.Permissions()
	if perms&^AllFlags != 0 {
		return fmt.Errorf("%w: %s", ErrUnknownFlags, perms)
	}
	if got := AddressFlags(addr); got != perms {
		return fmt.Errorf("%w: address %s encodes %s, hooks declare %s", ErrFlagsMismatch, addr.Hex(), got, perms)
	}
	for _, fn := range flagNames {
		if perms.Has(fn.flag) && !implements(h, fn.flag) {
			return fmt.Errorf("%w: %s", ErrMissingCheckpoint, fn.name)
		}
	}
	return nil
}

func implements(h Hooks, flag Flags) bool {
	var ok bool
	switch flag {
	case BeforeInitialize:
		_, ok = h.(BeforeInitializeHook)
	case AfterInitialize:
		_, ok = h.(AfterInitializeHook)
	case BeforeModifyLiquidity:
		_, ok = h.(BeforeModifyLiquidityHook)
	case AfterModifyLiquidity:
		_, ok = h.(AfterModifyLiquidityHook)
	case BeforeSwap:
		_, ok = h.(BeforeSwapHook)
	case AfterSwap:
		_, ok = h.(AfterSwapHook)
	case BeforeDonate:
		_, ok = h.(BeforeDonateHook)
	case AfterDonate:
		_, ok = h.(AfterDonateHook)
	}
	return ok
}
