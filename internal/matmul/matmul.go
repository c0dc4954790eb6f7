// Package matmul is the "mm" projection primitive: plain GEMM plus the
// fused epilogue variants (bias, SiLU, elementwise-mul, residential-add,
// scaled-residential-add) the attention and MLP blocks issue every
// projection through, plus weight conversion and packing.
package matmul

import (
	"decoderlayer/internal/kernels"
	"decoderlayer/internal/pool"
	"decoderlayer/weights"
)

// Args describes one GEMM: C[M,N] = A[M,K] * B[K,N], A and C row-major with
// their own leading dimensions, B a weights.Matrix in the column-major
// convention every kernel in this module assumes. Scratch, if non-nil,
// supplies the buffer (named ScratchKey) that a non-Float32 B is
// dequantized into, so repeated calls reuse one allocation; B is still
// decoded once per call.
type Args struct {
	M, N, K int
	A       []float32
	LDA     int
	B       weights.Matrix
	Scale   weights.Vector
	Zero    weights.Vector
	C       []float32
	LDC     int

	Scratch    *pool.Pool
	ScratchKey string
}

// bFloat32 returns B as a flat K*N float32 buffer in column-major layout,
// decoding through Scratch when B is not already Float32.
func (a Args) bFloat32() []float32 {
	if a.B.DType == weights.Float32 {
		return a.B.F32
	}
	n := a.K * a.N
	var buf []float32
	if a.Scratch != nil {
		key := a.ScratchKey
		if key == "" {
			key = "matmul_dequant"
		}
		buf = a.Scratch.GetBuffer(key, n)
	} else {
		buf = make([]float32, n)
	}
	dequantizeColMajor(buf, a.B, a.Scale, a.Zero)
	return buf
}

// Compute performs plain C = A*B.
func Compute(a Args) {
	b := a.bFloat32()
	for m := 0; m < a.M; m++ {
		aRow := a.A[m*a.LDA : m*a.LDA+a.K]
		cRow := a.C[m*a.LDC : m*a.LDC+a.N]
		kernels.MatVecTDispatch(cRow, b, a.K, a.N, aRow)
	}
}

// ComputeBias performs C = A*B + bias, bias broadcast across rows.
func ComputeBias(a Args, bias []float32) {
	Compute(a)
	if bias == nil {
		return
	}
	for m := 0; m < a.M; m++ {
		cRow := a.C[m*a.LDC : m*a.LDC+a.N]
		for n := 0; n < a.N; n++ {
			cRow[n] += bias[n]
		}
	}
}

// ComputeSiLU performs C = SiLU(A*B), the gate-projection epilogue.
func ComputeSiLU(a Args) {
	Compute(a)
	for m := 0; m < a.M; m++ {
		cRow := a.C[m*a.LDC : m*a.LDC+a.N]
		kernels.SiLU(cRow, cRow)
	}
}

// ComputeResMul performs C = C ⊙ (A*B): the existing contents of C (e.g.
// the SiLU-activated gate projection) are multiplied elementwise by the
// freshly computed A*B, the fused epilogue the up-projection uses.
func ComputeResMul(a Args) {
	b := a.bFloat32()
	var tmp []float32
	if a.Scratch != nil {
		tmp = a.Scratch.GetBuffer("matmul_resmul_tmp", a.N)
	} else {
		tmp = make([]float32, a.N)
	}
	for m := 0; m < a.M; m++ {
		aRow := a.A[m*a.LDA : m*a.LDA+a.K]
		cRow := a.C[m*a.LDC : m*a.LDC+a.N]
		kernels.MatVecTDispatch(tmp, b, a.K, a.N, aRow)
		for n := 0; n < a.N; n++ {
			cRow[n] *= tmp[n]
		}
	}
}

// ComputeResidential performs C = A*B + R [+ bias], the master-rank
// residual-add epilogue used by both attention output and MLP down
// projections.
func ComputeResidential(a Args, r []float32, ldr int, bias []float32) {
	b := a.bFloat32()
	for m := 0; m < a.M; m++ {
		aRow := a.A[m*a.LDA : m*a.LDA+a.K]
		cRow := a.C[m*a.LDC : m*a.LDC+a.N]
		rRow := r[m*ldr : m*ldr+a.N]
		kernels.MatVecTDispatch(cRow, b, a.K, a.N, aRow)
		for n := 0; n < a.N; n++ {
			cRow[n] += rRow[n]
		}
		if bias != nil {
			for n := 0; n < a.N; n++ {
				cRow[n] += bias[n]
			}
		}
	}
}

// ComputeResExt performs C = A*B + gamma*R [+ bias], the scaled-residual
// variant used when the layer driver blends the residual instead of adding
// it directly.
func ComputeResExt(a Args, r []float32, ldr int, gamma float32, bias []float32) {
	b := a.bFloat32()
	for m := 0; m < a.M; m++ {
		aRow := a.A[m*a.LDA : m*a.LDA+a.K]
		cRow := a.C[m*a.LDC : m*a.LDC+a.N]
		rRow := r[m*ldr : m*ldr+a.N]
		kernels.MatVecTDispatch(cRow, b, a.K, a.N, aRow)
		for n := 0; n < a.N; n++ {
			cRow[n] += gamma * rRow[n]
		}
		if bias != nil {
			for n := 0; n < a.N; n++ {
				cRow[n] += bias[n]
			}
		}
	}
}
