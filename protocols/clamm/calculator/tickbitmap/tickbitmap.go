package tickbitmap

import (
	"errors"
	"fmt"

	"github.com/defistate/clamm-engine-go/protocols/clamm/calculator/bitmath"
	"github.com/holiman/uint256"
)

var ErrTickMisaligned = errors.New("tick not aligned to tick spacing")

// Bitmap packs one initialized flag per compressed tick (tick / spacing)
// into 256-bit words keyed by the compressed tick's high bits.
type Bitmap struct {
	words map[int16]*uint256.Int
}

// New returns an empty bitmap.
func New() *Bitmap {
	return &Bitmap{words: make(map[int16]*uint256.Int)}
}

// position splits a compressed tick into its word index and bit index.
func position(compressed int32) (wordPos int16, bitPos uint8) {
	return int16(compressed >> 8), uint8(compressed & 0xff)
}

// compress divides by spacing rounding toward negative infinity.
func compress(tick, tickSpacing int32) int32 {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}
	return compressed
}

// Flip toggles the initialized state of tick.
func (b *Bitmap) Flip(tick, tickSpacing int32) error {
	if tick%tickSpacing != 0 {
		return fmt.Errorf("%w: tick %d spacing %d", ErrTickMisaligned, tick, tickSpacing)
	}
	wordPos, bitPos := position(tick / tickSpacing)

	word, ok := b.words[wordPos]
	if !ok {
		word = new(uint256.Int)
		b.words[wordPos] = word
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	word.Xor(word, mask)

	if word.IsZero() {
		delete(b.words, wordPos)
	}
	return nil
}

// IsInitialized reports whether the bit for tick is set.
func (b *Bitmap) IsInitialized(tick, tickSpacing int32) bool {
	if tick%tickSpacing != 0 {
		return false
	}
	wordPos, bitPos := position(tick / tickSpacing)
	word, ok := b.words[wordPos]
	if !ok {
		return false
	}
	return new(uint256.Int).Rsh(word, uint(bitPos)).Uint64()&1 == 1
}

// NextInitializedTickWithinOneWord returns the next initialized tick contained
// in the same word as tick, or the word boundary when none is set.
//
// With lte the search covers tick and everything to its left. Without lte it
// covers everything strictly to the right of tick.
func (b *Bitmap) NextInitializedTickWithinOneWord(tick, tickSpacing int32, lte bool) (next int32, initialized bool) {
	compressed := compress(tick, tickSpacing)
	one := uint256.NewInt(1)

	if lte {
		wordPos, bitPos := position(compressed)
		// all bits at or below bitPos
		bit := new(uint256.Int).Lsh(one, uint(bitPos))
		mask := new(uint256.Int).Sub(bit, one)
		mask.Add(mask, bit)

		masked := mask.And(mask, b.word(wordPos))
		if masked.IsZero() {
			return (compressed - int32(bitPos)) * tickSpacing, false
		}
		msb, _ := bitmath.MostSignificantBit(masked)
		return (compressed - int32(bitPos-msb)) * tickSpacing, true
	}

	wordPos, bitPos := position(compressed + 1)
	// all bits at or above bitPos
	mask := new(uint256.Int).Lsh(one, uint(bitPos))
	mask.Sub(mask, one).Not(mask)

	masked := mask.And(mask, b.word(wordPos))
	if masked.IsZero() {
		return (compressed + 1 + int32(255-bitPos)) * tickSpacing, false
	}
	lsb, _ := bitmath.LeastSignificantBit(masked)
	return (compressed + 1 + int32(lsb-bitPos)) * tickSpacing, true
}

func (b *Bitmap) word(wordPos int16) *uint256.Int {
	if w, ok := b.words[wordPos]; ok {
		return w
	}
	return new(uint256.Int)
}

// Len returns the number of non-empty words.
func (b *Bitmap) Len() int {
	return len(b.words)
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	words := make(map[int16]*uint256.Int, len(b.words))
	for pos, w := range b.words {
		words[pos] = w.Clone()
	}
	return &Bitmap{words: words}
}
