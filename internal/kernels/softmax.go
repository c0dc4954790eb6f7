package kernels

import "math"

var softmaxInPlaceImpl = softmaxInPlaceGeneric

// RowMax returns the maximum value in scores, or -Inf for an empty row.
// Every softmax call site subtracts this before exponentiating, so that a
// row of large logits never overflows through exp.
func RowMax(scores []float32) float32 {
	if len(scores) == 0 {
		return float32(math.Inf(-1))
	}
	m := scores[0]
	for _, v := range scores[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// SoftmaxInPlace exponentiates scores-maxScore in place and returns the sum
// of the (unnormalized) weights; the caller divides by the sum. Kept
// unnormalized-on-return so a head-sharded online-softmax merge can rescale
// partial sums before dividing.
func SoftmaxInPlace(scores []float32, maxScore float32) float32 {
	return softmaxInPlaceImpl(scores, maxScore)
}

func softmaxInPlaceGeneric(scores []float32, maxScore float32) float32 {
	var sum float32
	for i := range scores {
		w := float32(math.Exp(float64(scores[i] - maxScore)))
		scores[i] = w
		sum += w
	}
	return sum
}

// NormalizeInPlace divides every element by sum, a no-op for sum == 0
// (a fully-masked row).
func NormalizeInPlace(scores []float32, sum float32) {
	if sum == 0 {
		return
	}
	inv := 1 / sum
	for i := range scores {
		scores[i] *= inv
	}
}
