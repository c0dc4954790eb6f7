package kernels

import "math"

// silu is the SiLU/Swish activation x * sigmoid(x), the only activation
// this core supports; an unrecognized activation name is a configuration
// error the caller should treat as fatal.
func silu(x float32) float32 {
	return x / (1 + float32(math.Exp(float64(-x))))
}

// SiLU applies silu elementwise into dst.
func SiLU(dst, src []float32) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] = silu(src[i])
	}
}
