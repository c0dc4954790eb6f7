package kernels

import "math"

// Expf is the float32 exponential used by flash attention's incremental
// online-softmax update. A plain math.Exp round-trip through float64
// rather than a hand-rolled float32 polynomial.
func Expf(x float32) float32 {
	return float32(math.Exp(float64(x)))
}
