package attention

import "math"

// MaskFunc returns the additive attention bias for query position s (within
// the current call) against cached key position t, for batch item b.
// math.Inf(-1) fully masks a position.
type MaskFunc func(b, s, t int) float32

// NoMask allows every position.
func NoMask(b, s, t int) float32 { return 0 }

// CausalMask returns a MaskFunc that allows key position t only when
// t <= pastSeqLen+s, matching a strictly-upper-triangular -inf mask over
// the full [0,pastSeqLen+S) key range.
func CausalMask(pastSeqLen int) MaskFunc {
	return func(b, s, t int) float32 {
		if t > pastSeqLen+s {
			return float32(math.Inf(-1))
		}
		return 0
	}
}
