package attention_test

import (
	"testing"

	decoder "decoderlayer"
	"decoderlayer/attention"
	"decoderlayer/internal/kvcache"
	"decoderlayer/internal/rope"
	"decoderlayer/weights"
)

func smallRaw(rows, cols int, scale float32) []float32 {
	out := make([]float32, rows*cols)
	seed := float32(1)
	for i := range out {
		seed = seed*1.37 - float32(int(seed))
		out[i] = (seed - 0.5) * scale
	}
	return out
}

func TestSetWeightsAndForwardMHA(t *testing.T) {
	const (
		hidden    = 8
		heads     = 2
		kvHeads   = 2
		headSize  = 4
		batchSize = 1
		seqLen    = 2
	)

	ctx := &decoder.Context{
		HiddenSize:  hidden,
		AttHeadNum:  heads,
		KVHeadNum:   kvHeads,
		AttHeadSize: headSize,
		BatchSize:   batchSize,
		InputSeqLen: seqLen,
		Epsilon:     1e-6,
		AttFactor:   0.5,
		NumSplit:    1,
		SplitIdx:    0,
	}

	args := attention.SetWeightsArgs{
		QRaw:       smallRaw(hidden, heads*headSize, 1),
		KRaw:       smallRaw(hidden, kvHeads*headSize, 1),
		VRaw:       smallRaw(hidden, kvHeads*headSize, 1),
		OutRaw:     smallRaw(heads*headSize, hidden, 1),
		Gamma:      make([]float32, hidden),
		DType:      weights.Float32,
		RopeParams: rope.Params{Base: 10000, Scale: 1},
	}
	for i := range args.Gamma {
		args.Gamma[i] = 1
	}

	w, err := attention.SetWeights(ctx, args)
	if err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}
	if w.RespQCols != heads*headSize {
		t.Fatalf("RespQCols = %d, want %d", w.RespQCols, heads*headSize)
	}

	kCache, err := kvcache.New(seqLen, batchSize, kvHeads, headSize)
	if err != nil {
		t.Fatalf("kvcache.New(K) error = %v", err)
	}
	vCache, err := kvcache.New(seqLen, batchSize, kvHeads, headSize)
	if err != nil {
		t.Fatalf("kvcache.New(V) error = %v", err)
	}

	x := smallRaw(batchSize*seqLen, hidden, 1)
	out := make([]float32, batchSize*seqLen*hidden)

	attention.Forward(ctx, w, attention.ForwardArgs{
		X: x, XStride: hidden,
		Out: out, OutStride: hidden,
		KCache: kCache, VCache: vCache,
		Mask:       attention.CausalMask(0),
		DoLnBefore: true,
	})

	for i, v := range out {
		if v != v { // NaN check
			t.Fatalf("out[%d] is NaN", i)
		}
	}
}

func transposeRowMajor(src []float32, rows, cols int) []float32 {
	out := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = src[r*cols+c]
		}
	}
	return out
}

func TestSetWeightsTransposedMatchesNonTransposedSource(t *testing.T) {
	const (
		hidden   = 8
		heads    = 2
		kvHeads  = 2
		headSize = 4
	)
	ctx := &decoder.Context{
		HiddenSize: hidden, AttHeadNum: heads, KVHeadNum: kvHeads, AttHeadSize: headSize,
		NumSplit: 1, SplitIdx: 0,
	}

	qRaw := smallRaw(hidden, heads*headSize, 1)
	kRaw := smallRaw(hidden, kvHeads*headSize, 1)
	vRaw := smallRaw(hidden, kvHeads*headSize, 1)
	outRaw := smallRaw(heads*headSize, hidden, 1)
	gamma := make([]float32, hidden)
	for i := range gamma {
		gamma[i] = 1
	}

	base := attention.SetWeightsArgs{
		QRaw: qRaw, KRaw: kRaw, VRaw: vRaw, OutRaw: outRaw,
		Gamma: gamma, DType: weights.Float32,
	}
	wBase, err := attention.SetWeights(ctx, base)
	if err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}

	trans := attention.SetWeightsArgs{
		QRaw:       transposeRowMajor(qRaw, hidden, heads*headSize),
		KRaw:       transposeRowMajor(kRaw, hidden, kvHeads*headSize),
		VRaw:       transposeRowMajor(vRaw, hidden, kvHeads*headSize),
		OutRaw:     transposeRowMajor(outRaw, heads*headSize, hidden),
		Gamma:      gamma,
		DType:      weights.Float32,
		Transposed: true,
	}
	wTrans, err := attention.SetWeights(ctx, trans)
	if err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}

	for i := range wBase.QKV.Weight.F32 {
		if wBase.QKV.Weight.F32[i] != wTrans.QKV.Weight.F32[i] {
			t.Fatalf("QKV.F32[%d] = %v, want %v (base)", i, wTrans.QKV.Weight.F32[i], wBase.QKV.Weight.F32[i])
		}
	}
	for i := range wBase.Out.Weight.F32 {
		if wBase.Out.Weight.F32[i] != wTrans.Out.Weight.F32[i] {
			t.Fatalf("Out.F32[%d] = %v, want %v (base)", i, wTrans.Out.Weight.F32[i], wBase.Out.Weight.F32[i])
		}
	}
}

func TestSetWeightsDeterministic(t *testing.T) {
	const (
		hidden   = 4
		heads    = 1
		kvHeads  = 1
		headSize = 4
	)
	ctx := &decoder.Context{
		HiddenSize: hidden, AttHeadNum: heads, KVHeadNum: kvHeads, AttHeadSize: headSize,
		NumSplit: 1, SplitIdx: 0,
	}
	args := attention.SetWeightsArgs{
		QRaw: smallRaw(hidden, headSize, 1), KRaw: smallRaw(hidden, headSize, 1),
		VRaw: smallRaw(hidden, headSize, 1), OutRaw: smallRaw(headSize, hidden, 1),
		Gamma: []float32{1, 1, 1, 1}, DType: weights.Float32,
	}
	w1, err := attention.SetWeights(ctx, args)
	if err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}
	w2, err := attention.SetWeights(ctx, args)
	if err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}
	for i := range w1.QKV.Weight.F32 {
		if w1.QKV.Weight.F32[i] != w2.QKV.Weight.F32[i] {
			t.Fatalf("SetWeights not deterministic at index %d", i)
		}
	}
}

// attHeadNum not a multiple of kvHeadNum terminates the process via
// headrange.Compute's logging.Fatal call and so is not exercised here.
