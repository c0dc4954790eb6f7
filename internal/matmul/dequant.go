package matmul

import (
	"decoderlayer/internal/numeric/bf16"
	"decoderlayer/internal/numeric/fp16"
	"decoderlayer/weights"
)

// nf4Codebook is the standard 16-level NF4 non-uniform quantization
// codebook (values normalized to [-1, 1]); a column's real values are
// codebook[level] * scale[col].
var nf4Codebook = [16]float32{
	-1.0, -0.6961928009986877, -0.5250730514526367, -0.39491748809814453,
	-0.28444138169288635, -0.18477343022823334, -0.09105003625154495, 0.0,
	0.07958029955625534, 0.16093020141124725, 0.24611230194568634, 0.33791524171829224,
	0.44070982933044434, 0.5626170039176941, 0.7229568362236023, 1.0,
}

// dequantizeColMajor decodes m (Rows=K, Cols=N) into a K*N float32 buffer
// in the same column-major layout (element (r,c) at r + K*c), applying
// per-column scale/zero when the dtype needs it. Float32 matrices are
// copied verbatim (callers on the fast path should skip this and use
// m.F32 directly instead).
func dequantizeColMajor(dst []float32, m weights.Matrix, scale, zero weights.Vector) {
	rows, cols := m.Rows, m.Cols
	switch m.DType {
	case weights.Float32:
		copy(dst, m.F32)

	case weights.BF16:
		var bits [1]uint16
		for i := 0; i < rows*cols; i++ {
			bits[0] = uint16(m.Packed[2*i]) | uint16(m.Packed[2*i+1])<<8
			dst[i] = bf16.ToFloat32(bits[0])
		}

	case weights.FP16:
		for i := 0; i < rows*cols; i++ {
			bits := uint16(m.Packed[2*i]) | uint16(m.Packed[2*i+1])<<8
			dst[i] = fp16.ToFloat32(bits)
		}

	case weights.Int8:
		for c := 0; c < cols; c++ {
			s := colScale(scale, c)
			z := colZero(zero, c)
			for r := 0; r < rows; r++ {
				idx := weights.PackedIndex(rows, r, c)
				q := int8(m.Packed[idx])
				dst[idx] = (float32(q) - z) * s
			}
		}

	case weights.Nibble:
		for c := 0; c < cols; c++ {
			s := colScale(scale, c)
			z := colZero(zero, c)
			for r := 0; r < rows; r++ {
				idx := weights.PackedIndex(rows, r, c)
				b := m.Packed[idx/2]
				var nib byte
				if idx%2 == 0 {
					nib = b & 0x0f
				} else {
					nib = b >> 4
				}
				signed := int8(nib)
				if signed > 7 {
					signed -= 16
				}
				dst[idx] = (float32(signed) - z) * s
			}
		}

	case weights.NF4:
		for c := 0; c < cols; c++ {
			s := colScale(scale, c)
			for r := 0; r < rows; r++ {
				idx := weights.PackedIndex(rows, r, c)
				b := m.Packed[idx/2]
				var nib byte
				if idx%2 == 0 {
					nib = b & 0x0f
				} else {
					nib = b >> 4
				}
				dst[idx] = nf4Codebook[nib] * s
			}
		}
	}
}

func colScale(v weights.Vector, c int) float32 {
	if v.Empty() {
		return 1
	}
	return v.Data[c]
}

func colZero(v weights.Vector, c int) float32 {
	if v.Empty() {
		return 0
	}
	return v.Data[c]
}
