package clamm

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Currency identifies a pooled asset. The zero address is the chain-native asset.
type Currency = common.Address

// NativeCurrency is the chain-native asset.
var NativeCurrency = Currency{}

// IsNative reports whether c is the chain-native asset.
func IsNative(c Currency) bool {
	return c == NativeCurrency
}

const (
	// MaxLPFee is a 100% LP fee in pips.
	MaxLPFee uint32 = 1_000_000
	// DynamicFeeFlag marks a pool whose LP fee is set by its hooks.
	DynamicFeeFlag uint32 = 0x800000

	MinTickSpacing int32 = 1
	MaxTickSpacing int32 = 32767
)

// IsDynamicFee reports whether fee carries the dynamic marker.
func IsDynamicFee(fee uint32) bool {
	return fee == DynamicFeeFlag
}

// PoolID is the hash of a PoolKey and addresses all per-pool state.
type PoolID = common.Hash

// PoolKey is the immutable identity of a pool.
type PoolKey struct {
	Currency0   Currency       `json:"currency0"`
	Currency1   Currency       `json:"currency1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tickSpacing"`
	Hooks       common.Address `json:"hooks"`
}

// ID hashes the ABI word encoding of the key with Keccak-256.
func (k PoolKey) ID() PoolID {
	var buf [5 * 32]byte
	copy(buf[12:32], k.Currency0.Bytes())
	copy(buf[44:64], k.Currency1.Bytes())
	new(big.Int).SetUint64(uint64(k.Fee)).FillBytes(buf[64:96])
	putInt32Word(buf[96:128], k.TickSpacing)
	copy(buf[140:160], k.Hooks.Bytes())
	return crypto.Keccak256Hash(buf[:])
}

// putInt32Word writes v sign-extended into a 32-byte big-endian word.
func putInt32Word(word []byte, v int32) {
	fill := byte(0)
	if v < 0 {
		fill = 0xff
	}
	for i := range word {
		word[i] = fill
	}
	u := uint32(v)
	word[28], word[29], word[30], word[31] = byte(u>>24), byte(u>>16), byte(u>>8), byte(u)
}

// Validate checks the static invariants of a key. Hook permissions are checked by the manager.
func (k PoolKey) Validate() error {
	if bytes.Compare(k.Currency0.Bytes(), k.Currency1.Bytes()) >= 0 {
		return fmt.Errorf("%w: %s >= %s", ErrCurrenciesOutOfOrder, k.Currency0.Hex(), k.Currency1.Hex())
	}
	if k.TickSpacing < MinTickSpacing {
		return fmt.Errorf("%w: %d", ErrTickSpacingTooSmall, k.TickSpacing)
	}
	if k.TickSpacing > MaxTickSpacing {
		return fmt.Errorf("%w: %d", ErrTickSpacingTooLarge, k.TickSpacing)
	}
	if !IsDynamicFee(k.Fee) && k.Fee > MaxLPFee {
		return fmt.Errorf("%w: %d", ErrInvalidFee, k.Fee)
	}
	return nil
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s fee=%d spacing=%d hooks=%s",
		k.Currency0.Hex(), k.Currency1.Hex(), k.Fee, k.TickSpacing, k.Hooks.Hex())
}

// Slot0 is the mutable header of an initialized pool.
type Slot0 struct {
	SqrtPriceX96 *big.Int    `json:"sqrtPriceX96"`
	Tick         int32       `json:"tick"`
	ProtocolFee  ProtocolFee `json:"protocolFee"`
	LPFee        uint32      `json:"lpFee"`
}

// Clone returns a copy that shares no memory with s.
func (s Slot0) Clone() Slot0 {
	c := s
	if s.SqrtPriceX96 != nil {
		c.SqrtPriceX96 = new(big.Int).Set(s.SqrtPriceX96)
	}
	return c
}

// BalanceDelta is the net flow of both currencies relative to the pool.
// Positive amounts are received by the pool, negative amounts are paid out.
type BalanceDelta struct {
	Amount0 *big.Int `json:"amount0"`
	Amount1 *big.Int `json:"amount1"`
}

// ZeroDelta returns a delta with both amounts set to zero.
func ZeroDelta() BalanceDelta {
	return BalanceDelta{Amount0: new(big.Int), Amount1: new(big.Int)}
}

// NewBalanceDelta copies the two amounts into a new delta.
func NewBalanceDelta(amount0, amount1 *big.Int) BalanceDelta {
	return BalanceDelta{Amount0: new(big.Int).Set(amount0), Amount1: new(big.Int).Set(amount1)}
}

// Add returns d + o.
func (d BalanceDelta) Add(o BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Add(orZero(d.Amount0), orZero(o.Amount0)),
		Amount1: new(big.Int).Add(orZero(d.Amount1), orZero(o.Amount1)),
	}
}

// Sub returns d - o.
func (d BalanceDelta) Sub(o BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Sub(orZero(d.Amount0), orZero(o.Amount0)),
		Amount1: new(big.Int).Sub(orZero(d.Amount1), orZero(o.Amount1)),
	}
}

// Neg returns -d.
func (d BalanceDelta) Neg() BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Neg(orZero(d.Amount0)),
		Amount1: new(big.Int).Neg(orZero(d.Amount1)),
	}
}

// IsZero reports whether both amounts are zero.
func (d BalanceDelta) IsZero() bool {
	return orZero(d.Amount0).Sign() == 0 && orZero(d.Amount1).Sign() == 0
}

func (d BalanceDelta) String() string {
	return fmt.Sprintf("(%s, %s)", orZero(d.Amount0), orZero(d.Amount1))
}

var zero = new(big.Int)

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return zero
	}
	return x
}
