package clamm

import "fmt"

// MaxProtocolFee caps each direction of the protocol fee at 0.1%, in pips.
const MaxProtocolFee uint16 = 1000

// ProtocolFee holds the protocol's share of swap input for each direction, in pips.
// A zero rate disables skimming for that direction.
//
// Storage layout when packed into one word: bits 0-15 carry ZeroForOne and
// bits 16-31 carry OneForZero.
type ProtocolFee struct {
	ZeroForOne uint16 `json:"zeroForOne"`
	OneForZero uint16 `json:"oneForZero"`
}

// UnpackProtocolFee splits a packed word into its two directions.
func UnpackProtocolFee(packed uint32) ProtocolFee {
	return ProtocolFee{ZeroForOne: uint16(packed), OneForZero: uint16(packed >> 16)}
}

// Pack returns the single-word storage form.
func (p ProtocolFee) Pack() uint32 {
	return uint32(p.ZeroForOne) | uint32(p.OneForZero)<<16
}

// For returns the rate applied to a swap in the given direction.
func (p ProtocolFee) For(zeroForOne bool) uint16 {
	if zeroForOne {
		return p.ZeroForOne
	}
	return p.OneForZero
}

// IsZero reports whether both directions are disabled.
func (p ProtocolFee) IsZero() bool {
	return p.ZeroForOne == 0 && p.OneForZero == 0
}

// Validate rejects rates above MaxProtocolFee.
func (p ProtocolFee) Validate() error {
	if p.ZeroForOne > MaxProtocolFee || p.OneForZero > MaxProtocolFee {
		return fmt.Errorf("%w: %d/%d", ErrProtocolFeeTooLarge, p.ZeroForOne, p.OneForZero)
	}
	return nil
}

// SwapFee combines a protocol rate and an LP rate into the total fee charged on input.
// The LP fee applies to what remains after the protocol's cut.
func SwapFee(protocolFee uint16, lpFee uint32) uint32 {
	if protocolFee == 0 {
		return lpFee
	}
	p := uint64(protocolFee)
	l := uint64(lpFee)
	return uint32(p + l - p*l/uint64(MaxLPFee))
}
