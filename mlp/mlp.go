// Package mlp implements the decoder layer's feed-forward block: RMSNorm
// into a gate/up projection pair (or their CATMLP-fused concatenation),
// SiLU-gated elementwise fold, and a down projection with an optional
// master-rank residual.
package mlp

import (
	"fmt"

	decoder "decoderlayer"
	"decoderlayer/internal/kernels"
	"decoderlayer/internal/logging"
	"decoderlayer/internal/matmul"
	"decoderlayer/internal/norm"
	"decoderlayer/weights"
)

// Weights holds one MLP block's packed projections for this rank's slice
// of the intermediate dimension.
type Weights struct {
	Gate, Up, Down weights.Bundle
	CatGateUp      *weights.Bundle // non-nil when CATMLP is enabled
	Gamma          []float32
	RespCols       int // intermediate columns this rank owns
}

// SetWeights slices gate/up vertically and down horizontally on the
// intermediate dimension for ctx.SplitIdx of ctx.NumSplit ranks, then
// quantizes each slice to dtype. gateRaw and upRaw are
// hiddenSize x intermediateSize; downRaw is intermediateSize x hiddenSize;
// all row-major. When enableCATMLP is true the quantized gate and up
// slices are concatenated into a single wider matrix so Forward can issue
// one GEMM instead of two.
func SetWeights(ctx *decoder.Context, gateRaw, upRaw, downRaw, gamma []float32, dtype weights.DType, enableCATMLP bool) (*Weights, error) {
	if ctx.ActType != decoder.SiLU {
		logging.Fatal("mlp.SetWeights", "unsupported activation, only SiLU is implemented", map[string]any{"activation": ctx.ActType})
	}

	hidden := ctx.HiddenSize
	inter := ctx.IntermediateSize
	if len(gateRaw) != hidden*inter || len(upRaw) != hidden*inter || len(downRaw) != inter*hidden {
		return nil, fmt.Errorf("mlp: weight size mismatch (hidden=%d intermediate=%d)", hidden, inter)
	}

	start, end := splitRange(inter, ctx.NumSplit, ctx.SplitIdx)
	respCols := end - start

	gateSlice := sliceCols(gateRaw, hidden, inter, start, end)
	upSlice := sliceCols(upRaw, hidden, inter, start, end)
	downSlice := sliceRows(downRaw, inter, hidden, start, end)

	gm, gs, gz, gsum := matmul.ConvertWeight(dtype, hidden, respCols, gateSlice, true)
	um, us, uz, usum := matmul.ConvertWeight(dtype, hidden, respCols, upSlice, true)
	dm, ds, dz, dsum := matmul.ConvertWeight(dtype, respCols, hidden, downSlice, true)

	w := &Weights{
		Gate:     weights.Bundle{Weight: gm, Scale: gs, Zero: gz, Sum: gsum},
		Up:       weights.Bundle{Weight: um, Scale: us, Zero: uz, Sum: usum},
		Down:     weights.Bundle{Weight: dm, Scale: ds, Zero: dz, Sum: dsum},
		Gamma:    gamma,
		RespCols: respCols,
	}

	if enableCATMLP {
		cat, err := weights.ConcatCols(w.Gate, w.Up)
		if err != nil {
			return nil, fmt.Errorf("mlp: CATMLP concat: %w", err)
		}
		w.CatGateUp = &cat
	}

	return w, nil
}

// splitRange divides n columns across numSplit ranks, front-loading the
// remainder onto the low-index ranks, matching internal/headrange's split.
func splitRange(n, numSplit, splitIdx int) (start, end int) {
	base := n / numSplit
	rem := n % numSplit
	start = splitIdx * base
	if splitIdx < rem {
		start += splitIdx
	} else {
		start += rem
	}
	count := base
	if splitIdx < rem {
		count++
	}
	return start, start + count
}

func sliceCols(m []float32, rows, cols, start, end int) []float32 {
	respCols := end - start
	out := make([]float32, rows*respCols)
	for r := 0; r < rows; r++ {
		copy(out[r*respCols:(r+1)*respCols], m[r*cols+start:r*cols+end])
	}
	return out
}

func sliceRows(m []float32, rows, cols, start, end int) []float32 {
	respRows := end - start
	out := make([]float32, respRows*cols)
	copy(out, m[start*cols:end*cols])
	return out
}

// Forward computes the MLP block for M = rows input rows. x has stride
// xStride, out has stride oStride, residual (used only on the master rank)
// has stride rStride. When doLnBefore is true, RMSNorm(x) feeds the
// projections; otherwise x itself does.
func Forward(ctx *decoder.Context, w *Weights, x []float32, xStride int, out []float32, oStride int, residual []float32, rStride int, doLnBefore bool) {
	m := ctx.BatchSize * ctx.InputSeqLen
	hidden := ctx.HiddenSize
	respCols := w.RespCols

	normed := x
	normStride := xStride
	if doLnBefore {
		buf := ctx.Pool().GetBuffer("mlp_norm", m*hidden)
		norm.RMSNorm(buf, x, w.Gamma, m, hidden, xStride, hidden, ctx.Epsilon)
		normed = buf
		normStride = hidden
	}

	im := ctx.Pool().GetBuffer("mlp_intermediate", m*respCols)

	if w.CatGateUp != nil {
		fused := ctx.Pool().GetBuffer("mlp_cat_fused", m*2*respCols)
		matmul.Compute(matmul.Args{
			M: m, N: 2 * respCols, K: hidden,
			A: normed, LDA: normStride,
			B:     w.CatGateUp.Weight,
			Scale: w.CatGateUp.Scale, Zero: w.CatGateUp.Zero,
			C: fused, LDC: 2 * respCols,
			Scratch: ctx.Pool(), ScratchKey: "mlp_cat_dequant",
		})
		for row := 0; row < m; row++ {
			f := fused[row*2*respCols : (row+1)*2*respCols]
			dst := im[row*respCols : (row+1)*respCols]
			gate := f[:respCols]
			up := f[respCols:]
			kernels.SiLUMulInto(dst, gate, up)
		}
	} else {
		matmul.ComputeSiLU(matmul.Args{
			M: m, N: respCols, K: hidden,
			A: normed, LDA: normStride,
			B:     w.Gate.Weight,
			Scale: w.Gate.Scale, Zero: w.Gate.Zero,
			C: im, LDC: respCols,
			Scratch: ctx.Pool(), ScratchKey: "mlp_gate_dequant",
		})
		matmul.ComputeResMul(matmul.Args{
			M: m, N: respCols, K: hidden,
			A: normed, LDA: normStride,
			B:     w.Up.Weight,
			Scale: w.Up.Scale, Zero: w.Up.Zero,
			C: im, LDC: respCols,
			Scratch: ctx.Pool(), ScratchKey: "mlp_up_dequant",
		})
	}

	downArgs := matmul.Args{
		M: m, N: hidden, K: respCols,
		A: im, LDA: respCols,
		B:     w.Down.Weight,
		Scale: w.Down.Scale, Zero: w.Down.Zero,
		C: out, LDC: oStride,
		Scratch: ctx.Pool(), ScratchKey: "mlp_down_dequant",
	}
	if ctx.IsMasterRank() && residual != nil {
		matmul.ComputeResidential(downArgs, residual, rStride, nil)
	} else {
		matmul.Compute(downArgs)
	}
}
