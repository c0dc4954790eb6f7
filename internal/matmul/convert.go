package matmul

import (
	"math"

	"decoderlayer/internal/logging"
	"decoderlayer/internal/numeric/bf16"
	"decoderlayer/internal/numeric/fp16"
	"decoderlayer/weights"
)

// ConvertWeight quantizes (or simply reshapes) a raw K*N float32 weight
// into the target DType. raw is read column-major (element (r,c) at
// r+K*c) when transposed is false, and row-major (element (r,c) at c+N*r)
// when transposed is true — the layout setWeights receives its source
// matrices in before this core's column-major convention applies.
func ConvertWeight(dtype weights.DType, K, N int, raw []float32, transposed bool) (weights.Matrix, weights.Vector, weights.Vector, weights.Vector) {
	get := func(r, c int) float32 {
		if transposed {
			return raw[c+N*r]
		}
		return raw[r+K*c]
	}

	switch dtype {
	case weights.Float32:
		f32 := make([]float32, K*N)
		for c := 0; c < N; c++ {
			for r := 0; r < K; r++ {
				f32[weights.PackedIndex(K, r, c)] = get(r, c)
			}
		}
		return weights.Matrix{DType: weights.Float32, Rows: K, Cols: N, F32: f32}, weights.Vector{}, weights.Vector{}, weights.Vector{}

	case weights.BF16:
		packed := make([]byte, 2*K*N)
		for c := 0; c < N; c++ {
			for r := 0; r < K; r++ {
				idx := weights.PackedIndex(K, r, c)
				bits := bf16.FromFloat32(get(r, c))
				packed[2*idx] = byte(bits)
				packed[2*idx+1] = byte(bits >> 8)
			}
		}
		return weights.Matrix{DType: weights.BF16, Rows: K, Cols: N, Packed: packed}, weights.Vector{}, weights.Vector{}, weights.Vector{}

	case weights.FP16:
		packed := make([]byte, 2*K*N)
		for c := 0; c < N; c++ {
			for r := 0; r < K; r++ {
				idx := weights.PackedIndex(K, r, c)
				bits := fp16.FromFloat32(get(r, c))
				packed[2*idx] = byte(bits)
				packed[2*idx+1] = byte(bits >> 8)
			}
		}
		return weights.Matrix{DType: weights.FP16, Rows: K, Cols: N, Packed: packed}, weights.Vector{}, weights.Vector{}, weights.Vector{}

	case weights.Int8:
		packed := make([]byte, K*N)
		scale := make([]float32, N)
		zero := make([]float32, N)
		sum := make([]float32, N)
		for c := 0; c < N; c++ {
			maxAbs := float32(0)
			for r := 0; r < K; r++ {
				v := get(r, c)
				if v < 0 {
					v = -v
				}
				if v > maxAbs {
					maxAbs = v
				}
			}
			s := maxAbs / 127.0
			if s < 1e-12 {
				s = 1
			}
			scale[c] = s
			var colSum float32
			for r := 0; r < K; r++ {
				q := math.RoundToEven(float64(get(r, c) / s))
				if q > 127 {
					q = 127
				} else if q < -128 {
					q = -128
				}
				packed[weights.PackedIndex(K, r, c)] = byte(int8(q))
				colSum += float32(int8(q))
			}
			sum[c] = colSum
		}
		return weights.Matrix{DType: weights.Int8, Rows: K, Cols: N, Packed: packed}, weights.Vector{Data: scale}, weights.Vector{Data: zero}, weights.Vector{Data: sum}

	case weights.Nibble:
		packed := make([]byte, (K*N+1)/2)
		scale := make([]float32, N)
		zero := make([]float32, N)
		for c := 0; c < N; c++ {
			maxAbs := float32(0)
			for r := 0; r < K; r++ {
				v := get(r, c)
				if v < 0 {
					v = -v
				}
				if v > maxAbs {
					maxAbs = v
				}
			}
			s := maxAbs / 7.0
			if s < 1e-12 {
				s = 1
			}
			scale[c] = s
			for r := 0; r < K; r++ {
				q := math.RoundToEven(float64(get(r, c) / s))
				if q > 7 {
					q = 7
				} else if q < -8 {
					q = -8
				}
				nib := byte(int8(q)) & 0x0f
				idx := weights.PackedIndex(K, r, c)
				if idx%2 == 0 {
					packed[idx/2] = (packed[idx/2] &^ 0x0f) | nib
				} else {
					packed[idx/2] = (packed[idx/2] &^ 0xf0) | (nib << 4)
				}
			}
		}
		return weights.Matrix{DType: weights.Nibble, Rows: K, Cols: N, Packed: packed}, weights.Vector{Data: scale}, weights.Vector{Data: zero}, weights.Vector{}

	case weights.NF4:
		packed := make([]byte, (K*N+1)/2)
		scale := make([]float32, N)
		for c := 0; c < N; c++ {
			maxAbs := float32(0)
			for r := 0; r < K; r++ {
				v := get(r, c)
				if v < 0 {
					v = -v
				}
				if v > maxAbs {
					maxAbs = v
				}
			}
			if maxAbs < 1e-12 {
				maxAbs = 1
			}
			scale[c] = maxAbs
			for r := 0; r < K; r++ {
				normalized := get(r, c) / maxAbs
				level := nearestNF4Level(normalized)
				idx := weights.PackedIndex(K, r, c)
				if idx%2 == 0 {
					packed[idx/2] = (packed[idx/2] &^ 0x0f) | level
				} else {
					packed[idx/2] = (packed[idx/2] &^ 0xf0) | (level << 4)
				}
			}
		}
		return weights.Matrix{DType: weights.NF4, Rows: K, Cols: N, Packed: packed}, weights.Vector{Data: scale}, weights.Vector{}, weights.Vector{}
	}

	logging.Fatal("matmul.ConvertWeight", "unsupported weight dtype", map[string]any{"dtype": dtype})
	return weights.Matrix{}, weights.Vector{}, weights.Vector{}, weights.Vector{}
}

func nearestNF4Level(v float32) byte {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for i, c := range nf4Codebook {
		d := v - c
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return byte(best)
}

// PackWeight arranges an already-converted weights.Matrix into this core's
// tiling — the column-major GGML convention every kernel assumes — which
// ConvertWeight already produces directly, so PackWeight is the identity.
// It exists as a distinct step because a microkernel-tiled backend would
// insert a genuine re-blocking pass here.
func PackWeight(m weights.Matrix) weights.Matrix { return m }
