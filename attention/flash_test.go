package attention

import (
	"math"
	"testing"

	decoder "decoderlayer"
	"decoderlayer/internal/kvcache"
)

func TestFlashAttentionMatchesNaiveReferenceUnderCausalMask(t *testing.T) {
	const (
		batchSize   = 1
		S           = 5
		T           = 5
		headSize    = 8
		heads       = 2
		kvHeads     = 2
		qkvCols     = heads*headSize + 2*kvHeads*headSize
		respQCols   = heads * headSize
		respKVCols  = kvHeads * headSize
	)

	qkv := make([]float32, batchSize*S*qkvCols)
	seed := float32(5)
	for i := range qkv {
		seed = seed*1.27 - float32(int(seed))
		qkv[i] = seed - 0.5
	}

	kCache, err := kvcache.New(T, batchSize, kvHeads, headSize)
	if err != nil {
		t.Fatalf("kvcache.New(K) error = %v", err)
	}
	vCache, err := kvcache.New(T, batchSize, kvHeads, headSize)
	if err != nil {
		t.Fatalf("kvcache.New(V) error = %v", err)
	}

	ctx := &decoder.Context{}
	attFactor := float32(1.0 / math.Sqrt(float64(headSize)))
	mask := CausalMask(0)

	imOut := make([]float32, batchSize*S*respQCols)
	if err := flashAttention(ctx, kCache, vCache, qkv, imOut, batchSize, S, T, mask, attFactor, heads, kvHeads, headSize, qkvCols, respQCols, respKVCols); err != nil {
		t.Fatalf("flashAttention() error = %v", err)
	}

	want := make([]float32, batchSize*S*respQCols)
	naiveMaskedAttention(qkv, want, batchSize, S, T, qkvCols, respQCols, respKVCols, heads, kvHeads, headSize, mask, attFactor)

	for i := range want {
		diff := float64(want[i] - imOut[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-3 {
			t.Fatalf("output[%d] = %v, want %v (diff %v)", i, imOut[i], want[i], diff)
		}
	}
}

func TestFlashAttentionWritesFullKVRange(t *testing.T) {
	const (
		batchSize = 1
		S         = 3
		T         = 3
		headSize  = 4
		heads     = 1
		kvHeads   = 1
		qkvCols   = heads*headSize*3
		respQCols = heads * headSize
		respKVCols = kvHeads * headSize
	)
	qkv := make([]float32, batchSize*S*qkvCols)
	for i := range qkv {
		qkv[i] = float32(i)
	}
	kCache, _ := kvcache.New(T, batchSize, kvHeads, headSize)
	vCache, _ := kvcache.New(T, batchSize, kvHeads, headSize)

	ctx := &decoder.Context{}
	imOut := make([]float32, batchSize*S*respQCols)
	if err := flashAttention(ctx, kCache, vCache, qkv, imOut, batchSize, S, T, NoMask, 1, heads, kvHeads, headSize, qkvCols, respQCols, respKVCols); err != nil {
		t.Fatalf("flashAttention() error = %v", err)
	}

	for s := 0; s < S; s++ {
		wantK := qkv[s*qkvCols+respQCols : s*qkvCols+respQCols+headSize]
		gotK := kCache.GetSequence(s, 0, 0)
		for d := 0; d < headSize; d++ {
			if gotK[d] != wantK[d] {
				t.Fatalf("kCache[%d][%d] = %v, want %v", s, d, gotK[d], wantK[d])
			}
		}
	}
}

func naiveMaskedAttention(qkv, out []float32, batchSize, S, T, qkvCols, respQCols, respKVCols, heads, kvHeads, headSize int, mask MaskFunc, attFactor float32) {
	for b := 0; b < batchSize; b++ {
		for head := 0; head < heads; head++ {
			kvHead := head * kvHeads / heads
			for s := 0; s < S; s++ {
				row := b*S + s
				qRow := qkv[row*qkvCols+head*headSize : row*qkvCols+(head+1)*headSize]
				scores := make([]float32, T)
				maxScore := float32(math.Inf(-1))
				for tpos := 0; tpos < T; tpos++ {
					tRow := b*S + tpos
					kRow := qkv[tRow*qkvCols+respQCols+kvHead*headSize : tRow*qkvCols+respQCols+(kvHead+1)*headSize]
					var dot float32
					for d := 0; d < headSize; d++ {
						dot += qRow[d] * kRow[d]
					}
					sc := dot*attFactor + mask(b, s, tpos)
					scores[tpos] = sc
					if sc > maxScore {
						maxScore = sc
					}
				}
				var sum float32
				for tpos := range scores {
					w := float32(math.Exp(float64(scores[tpos] - maxScore)))
					scores[tpos] = w
					sum += w
				}
				dst := out[row*respQCols+head*headSize : row*respQCols+(head+1)*headSize]
				if sum == 0 {
					continue
				}
				for tpos := 0; tpos < T; tpos++ {
					tRow := b*S + tpos
					vRow := qkv[tRow*qkvCols+respQCols+respKVCols+kvHead*headSize : tRow*qkvCols+respQCols+respKVCols+(kvHead+1)*headSize]
					wgt := scores[tpos] / sum
					for d := 0; d < headSize; d++ {
						dst[d] += wgt * vRow[d]
					}
				}
			}
		}
	}
}
