// Package norm implements the two normalization kernels a decoder layer
// may need ahead of attention: RMSNorm and full LayerNorm, behind one
// interface so the layer driver need not care which its model family uses.
// The MLP block always uses the standalone RMSNorm free function, never
// LayerNorm.
package norm

import (
	"math"

	"decoderlayer/internal/kernels"
)

// Norm normalizes rows of a matrix into an output buffer given a weight
// (and, for LayerNorm, a bias).
type Norm interface {
	// SetWeight installs the per-column scale (gamma) and, for LayerNorm,
	// shift (beta). beta is nil for RMSNorm.
	SetWeight(gamma, beta []float32, hidden int)
	// Forward normalizes rows rows of in (stride inStride) into out
	// (stride outStride). eps defaults to 1e-6 when 0.
	Forward(out, in []float32, rows, inStride, outStride int, eps float32)
}

// RMS implements root-mean-square normalization: no mean subtraction, no
// bias.
type RMS struct {
	gamma []float32
}

func NewRMS() *RMS { return &RMS{} }

func (r *RMS) SetWeight(gamma, beta []float32, hidden int) {
	r.gamma = gamma
}

func (r *RMS) Forward(out, in []float32, rows, inStride, outStride int, eps float32) {
	if eps == 0 {
		eps = 1e-6
	}
	cols := len(r.gamma)
	for row := 0; row < rows; row++ {
		src := in[row*inStride : row*inStride+cols]
		dst := out[row*outStride : row*outStride+cols]
		kernels.RMSNormInto(dst, src, r.gamma, eps)
	}
}

// RMSNorm applies RMSNorm to rows rows without requiring a Norm value,
// mirroring the standalone rmsNorm(out, in, gamma, rows, cols, inStride,
// outStride, eps) helper the MLP block calls directly.
func RMSNorm(out, in, gamma []float32, rows, cols, inStride, outStride int, eps float32) {
	if eps == 0 {
		eps = 1e-6
	}
	for row := 0; row < rows; row++ {
		src := in[row*inStride : row*inStride+cols]
		dst := out[row*outStride : row*outStride+cols]
		kernels.RMSNormInto(dst, src, gamma, eps)
	}
}

// LayerNorm implements the classic mean/variance normalization with an
// affine gamma/beta.
type LayerNorm struct {
	gamma, beta []float32
}

func NewLayerNorm() *LayerNorm { return &LayerNorm{} }

func (l *LayerNorm) SetWeight(gamma, beta []float32, hidden int) {
	l.gamma = gamma
	l.beta = beta
}

func (l *LayerNorm) Forward(out, in []float32, rows, inStride, outStride int, eps float32) {
	if eps == 0 {
		eps = 1e-6
	}
	cols := len(l.gamma)
	for row := 0; row < rows; row++ {
		src := in[row*inStride : row*inStride+cols]
		dst := out[row*outStride : row*outStride+cols]

		var mean float64
		for _, v := range src {
			mean += float64(v)
		}
		mean /= float64(cols)

		var variance float64
		for _, v := range src {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(cols)

		inv := float32(1.0 / math.Sqrt(variance+float64(eps)))
		m := float32(mean)
		for i := 0; i < cols; i++ {
			normalized := (src[i] - m) * inv * l.gamma[i]
			if l.beta != nil {
				normalized += l.beta[i]
			}
			dst[i] = normalized
		}
	}
}
