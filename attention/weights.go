// Package attention implements the decoder layer's attention block: QKV
// projection, rotary position post-op, the fused attention kernel family
// (slim/cross-shard/BF16/flash), and the output projection with its
// master-rank residual.
package attention

import (
	"fmt"

	decoder "decoderlayer"
	"decoderlayer/internal/headrange"
	"decoderlayer/internal/matmul"
	"decoderlayer/internal/norm"
	"decoderlayer/internal/rope"
	"decoderlayer/weights"
)

// Weights holds one rank's slice of one attention layer's packed
// projections. Once SetWeights returns, a Weights value is immutable for
// the lifetime of the layer.
type Weights struct {
	QKV weights.Bundle // Rows=hiddenSize, Cols=RespQCols+2*RespKVCols
	Out weights.Bundle // Rows=RespQCols, Cols=hiddenSize

	QKVBias []float32 // nil if the model has no QKV bias
	OutBias []float32 // nil, or zeroed on non-master ranks

	Norm  norm.Norm
	Range headrange.Range

	RespQCols  int
	RespKVCols int
	HeadSize   int

	RopeParams rope.Params
}

// SetWeightsArgs bundles the raw, unsplit tensors SetWeights slices per
// rank. When Transposed is false, QRaw/KRaw/VRaw are hiddenSize x
// (heads*headSize) row-major and OutRaw is (attHeadNum*headSize) x
// hiddenSize row-major — both already in the shape their respective GEMM
// wants, so head selection is a contiguous or per-row-strided copy. When
// Transposed is true the sources are in their natural (e.g. PyTorch
// nn.Linear.weight) orientation instead: QRaw/KRaw/VRaw are
// (heads*headSize) x hiddenSize row-major and OutRaw is hiddenSize x
// (attHeadNum*headSize) row-major, so head selection additionally
// transposes the gathered slice back into the GEMM-ready shape. Bias
// slices are nil when the model has no attention bias.
type SetWeightsArgs struct {
	QRaw, KRaw, VRaw []float32
	OutRaw           []float32
	QBias, KBias, VBias []float32
	OutBias             []float32
	Gamma, Beta         []float32
	UseLayerNorm        bool
	DType               weights.DType
	Transposed          bool
	RopeParams          rope.Params
}

// SetWeights slices Q/K/V heads and the output projection for
// ctx.SplitIdx of ctx.NumSplit ranks and quantizes each slice to
// args.DType. attHeadNum not being a multiple of kvHeadNum is a
// configuration error and terminates the process from within
// headrange.Compute.
func SetWeights(ctx *decoder.Context, args SetWeightsArgs) (*Weights, error) {
	rng, err := headrange.Compute(ctx.AttHeadNum, ctx.KVHeadNum, ctx.NumSplit, ctx.SplitIdx)
	if err != nil {
		return nil, fmt.Errorf("attention: %w", err)
	}

	headSize := ctx.AttHeadSize
	hidden := ctx.HiddenSize
	respQHeads := rng.QHeads()
	respKVHeads := rng.KVHeads()
	respQCols := respQHeads * headSize
	respKVCols := respKVHeads * headSize

	var qSlice, kSlice, vSlice []float32
	if args.Transposed {
		qSlice = sliceHeadColsTransposed(args.QRaw, hidden, headSize, rng.StartQHead, rng.EndQHead)
		kSlice = sliceHeadColsTransposed(args.KRaw, hidden, headSize, rng.StartKVHead, rng.EndKVHead)
		vSlice = sliceHeadColsTransposed(args.VRaw, hidden, headSize, rng.StartKVHead, rng.EndKVHead)
	} else {
		qSlice = sliceHeadCols(args.QRaw, hidden, headSize, rng.StartQHead, rng.EndQHead)
		kSlice = sliceHeadCols(args.KRaw, hidden, headSize, rng.StartKVHead, rng.EndKVHead)
		vSlice = sliceHeadCols(args.VRaw, hidden, headSize, rng.StartKVHead, rng.EndKVHead)
	}

	qkvRaw := make([]float32, hidden*(respQCols+2*respKVCols))
	respTotal := respQCols + 2*respKVCols
	for r := 0; r < hidden; r++ {
		dst := qkvRaw[r*respTotal : (r+1)*respTotal]
		copy(dst[:respQCols], qSlice[r*respQCols:(r+1)*respQCols])
		copy(dst[respQCols:respQCols+respKVCols], kSlice[r*respKVCols:(r+1)*respKVCols])
		copy(dst[respQCols+respKVCols:], vSlice[r*respKVCols:(r+1)*respKVCols])
	}

	qkvM, qkvS, qkvZ, qkvSum := matmul.ConvertWeight(args.DType, hidden, respTotal, qkvRaw, true)

	var outSlice []float32
	if args.Transposed {
		outSlice = sliceColsTransposed(args.OutRaw, hidden, ctx.AttHeadNum*headSize, rng.StartQHead*headSize, rng.EndQHead*headSize)
	} else {
		outSlice = sliceRowsAt(args.OutRaw, ctx.AttHeadNum*headSize, hidden, rng.StartQHead*headSize, rng.EndQHead*headSize)
	}
	outM, outS, outZ, outSum := matmul.ConvertWeight(args.DType, respQCols, hidden, outSlice, true)

	w := &Weights{
		QKV:        weights.Bundle{Weight: qkvM, Scale: qkvS, Zero: qkvZ, Sum: qkvSum},
		Out:        weights.Bundle{Weight: outM, Scale: outS, Zero: outZ, Sum: outSum},
		Range:      rng,
		RespQCols:  respQCols,
		RespKVCols: respKVCols,
		HeadSize:   headSize,
		RopeParams: args.RopeParams,
	}

	if args.UseLayerNorm {
		ln := norm.NewLayerNorm()
		ln.SetWeight(args.Gamma, args.Beta, hidden)
		w.Norm = ln
	} else {
		rms := norm.NewRMS()
		rms.SetWeight(args.Gamma, nil, hidden)
		w.Norm = rms
	}

	if args.QBias != nil && args.KBias != nil && args.VBias != nil {
		qb := args.QBias[rng.StartQHead*headSize : rng.EndQHead*headSize]
		kb := args.KBias[rng.StartKVHead*headSize : rng.EndKVHead*headSize]
		vb := args.VBias[rng.StartKVHead*headSize : rng.EndKVHead*headSize]
		bias := make([]float32, respTotal)
		copy(bias[:respQCols], qb)
		copy(bias[respQCols:respQCols+respKVCols], kb)
		copy(bias[respQCols+respKVCols:], vb)
		w.QKVBias = bias
	}

	if args.OutBias != nil {
		if ctx.IsMasterRank() {
			w.OutBias = append([]float32{}, args.OutBias...)
		} else {
			w.OutBias = make([]float32, len(args.OutBias))
		}
	}

	return w, nil
}

// sliceHeadCols extracts head columns [startHead,endHead) from a
// rows x (allHeads*headSize) row-major matrix; the row stride is inferred
// from raw's total length since the caller does not carry the head count
// separately.
func sliceHeadCols(raw []float32, rows, headSize, startHead, endHead int) []float32 {
	cols := endHead - startHead
	out := make([]float32, rows*cols*headSize)
	stride := len(raw) / rows
	start := startHead * headSize
	end := endHead * headSize
	for r := 0; r < rows; r++ {
		copy(out[r*cols*headSize:(r+1)*cols*headSize], raw[r*stride+start:r*stride+end])
	}
	return out
}

func sliceRowsAt(raw []float32, rows, cols, start, end int) []float32 {
	respRows := end - start
	out := make([]float32, respRows*cols)
	copy(out, raw[start*cols:end*cols])
	return out
}

// sliceHeadColsTransposed extracts head rows [startHead,endHead) from an
// (allHeads*headSize) x hidden row-major matrix — the natural
// (e.g. PyTorch nn.Linear.weight) orientation of Q/K/V weights — and
// returns a hidden x respCols row-major matrix, the same shape sliceHeadCols
// produces for the non-transposed source.
func sliceHeadColsTransposed(raw []float32, hidden, headSize, startHead, endHead int) []float32 {
	cols := (endHead - startHead) * headSize
	out := make([]float32, hidden*cols)
	base := startHead * headSize
	for c := 0; c < cols; c++ {
		src := raw[(base+c)*hidden : (base+c+1)*hidden]
		for r := 0; r < hidden; r++ {
			out[r*cols+c] = src[r]
		}
	}
	return out
}

// sliceColsTransposed extracts columns [start,end) from a rows x totalCols
// row-major matrix — the natural orientation of the output weight when
// Transposed is set — and returns a (end-start) x rows row-major matrix,
// the same shape sliceRowsAt produces for the non-transposed source.
func sliceColsTransposed(raw []float32, rows, totalCols, start, end int) []float32 {
	cols := end - start
	out := make([]float32, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = raw[r*totalCols+start+c]
		}
	}
	return out
}
