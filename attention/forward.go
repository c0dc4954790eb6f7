package attention

import (
	decoder "decoderlayer"
	"decoderlayer/internal/kvcache"
	"decoderlayer/internal/matmul"
	"decoderlayer/internal/rope"
	"decoderlayer/internal/tunables"
)

// ForwardArgs is one attention block invocation.
type ForwardArgs struct {
	X       []float32 // input tile, M x hiddenSize, stride XStride
	XStride int
	Out     []float32 // output tile, M x hiddenSize, stride OutStride
	OutStride int

	Residual  []float32 // used only on the master rank; stride ResidualStride
	ResidualStride int
	ResidualGamma  float32 // 0 means "add residual directly" (scale 1)

	KCache, VCache *kvcache.Cache
	PastSeqLen     int
	PositionIDs    []int

	Mask MaskFunc

	DoLnBefore bool
	// UseBF16Path requests the BF16 self-attention kernel when the shape
	// is eligible (prefill, MHA); it has no effect during decode or GQA.
	UseBF16Path bool
}

// Forward runs one attention block: norm, QKV projection, rotary post-op,
// attention-kernel dispatch, and the output projection with its
// master-rank residual.
func Forward(ctx *decoder.Context, w *Weights, args ForwardArgs) {
	m := ctx.BatchSize * ctx.InputSeqLen
	hidden := ctx.HiddenSize
	qkvCols := w.RespQCols + 2*w.RespKVCols
	S := ctx.InputSeqLen
	T := args.PastSeqLen + S

	src := args.X
	srcStride := args.XStride
	if args.DoLnBefore {
		normed := ctx.Pool().GetBuffer("attn_norm", m*hidden)
		w.Norm.Forward(normed, args.X, m, args.XStride, hidden, ctx.Epsilon)
		src = normed
		srcStride = hidden
	}

	qkv := ctx.Pool().GetBuffer("attn_qkv", m*qkvCols)
	matmul.ComputeBias(matmul.Args{
		M: m, N: qkvCols, K: hidden,
		A: src, LDA: srcStride,
		B:     w.QKV.Weight,
		Scale: w.QKV.Scale, Zero: w.QKV.Zero,
		C: qkv, LDC: qkvCols,
		Scratch: ctx.Pool(), ScratchKey: "attn_qkv_dequant",
	}, w.QKVBias)

	qView := qkv
	kView := qkv[w.RespQCols:]
	rope.Forward(qView, kView, qkvCols, qkvCols, rope.Shape{
		Batch: ctx.BatchSize, SeqLen: S,
		QHeads: w.Range.QHeads(), HeadSize: w.HeadSize, KVHeads: w.Range.KVHeads(),
		MaxSeqLength: ctx.MaxSeqLength, PastSeqLen: args.PastSeqLen,
	}, w.RopeParams, args.PositionIDs)

	imOut := ctx.Pool().GetBuffer("attn_im", m*w.RespQCols)
	for i := range imOut {
		imOut[i] = 0
	}

	respQHeads := w.Range.QHeads()
	respKVHeads := w.Range.KVHeads()

	switch {
	case args.PastSeqLen == 0 && S > tunables.FlashThresh():
		_ = flashAttention(ctx, args.KCache, args.VCache, qkv, imOut, ctx.BatchSize, S, T, args.Mask, ctx.AttFactor, respQHeads, respKVHeads, w.HeadSize, qkvCols, w.RespQCols, w.RespKVCols)
	case args.PastSeqLen == 0 && args.UseBF16Path && selfAttentionBF16Eligible(args.PastSeqLen, S, respQHeads, respKVHeads):
		_ = selfAttentionBF16(ctx, args.KCache, args.VCache, qkv, imOut, ctx.BatchSize, S, args.Mask, ctx.AttFactor, respQHeads, w.HeadSize, qkvCols, w.RespQCols, w.RespKVCols)
	default:
		_ = fusedAttention(ctx, w, args.KCache, args.VCache, qkv, imOut, ctx.BatchSize, S, T, args.PastSeqLen, args.Mask, ctx.AttFactor)
	}

	outArgs := matmul.Args{
		M: m, N: hidden, K: w.RespQCols,
		A: imOut, LDA: w.RespQCols,
		B:     w.Out.Weight,
		Scale: w.Out.Scale, Zero: w.Out.Zero,
		C: args.Out, LDC: args.OutStride,
		Scratch: ctx.Pool(), ScratchKey: "attn_out_dequant",
	}
	switch {
	case ctx.IsMasterRank() && args.Residual != nil && args.ResidualGamma != 0:
		matmul.ComputeResExt(outArgs, args.Residual, args.ResidualStride, args.ResidualGamma, w.OutBias)
	case ctx.IsMasterRank() && args.Residual != nil:
		matmul.ComputeResidential(outArgs, args.Residual, args.ResidualStride, w.OutBias)
	default:
		matmul.Compute(outArgs)
	}

	if !args.DoLnBefore {
		postNormed := ctx.Pool().GetBuffer("attn_post_norm", m*hidden)
		w.Norm.Forward(postNormed, args.Out, m, args.OutStride, args.OutStride, ctx.Epsilon)
		copy(args.Out[:m*args.OutStride], postNormed)
	}
}
