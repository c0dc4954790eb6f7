package kernels

import "math"

func softmaxInPlaceOpt(scores []float32, maxScore float32) float32 {
	n := len(scores)
	var sum0, sum1, sum2, sum3 float32
	i := 0
	for ; i+3 < n; i += 4 {
		d0 := scores[i] - maxScore
		d1 := scores[i+1] - maxScore
		d2 := scores[i+2] - maxScore
		d3 := scores[i+3] - maxScore
		w0 := float32(math.Exp(float64(d0)))
		w1 := float32(math.Exp(float64(d1)))
		w2 := float32(math.Exp(float64(d2)))
		w3 := float32(math.Exp(float64(d3)))
		scores[i] = w0
		scores[i+1] = w1
		scores[i+2] = w2
		scores[i+3] = w3
		sum0 += w0
		sum1 += w1
		sum2 += w2
		sum3 += w3
	}
	sum := sum0 + sum1 + sum2 + sum3
	for ; i < n; i++ {
		w := float32(math.Exp(float64(scores[i] - maxScore)))
		scores[i] = w
		sum += w
	}
	return sum
}
