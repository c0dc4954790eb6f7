package attention

import (
	decoder "decoderlayer"
	"decoderlayer/internal/kernels"
	"decoderlayer/internal/kvcache"
	"decoderlayer/internal/numeric/bf16"

	"golang.org/x/sync/errgroup"
)

// selfAttentionBF16Eligible reports whether the BF16 self-attention path
// applies: prefill (pastSeqLen==0, S>0), and multi-head (not grouped-query)
// attention for this rank.
func selfAttentionBF16Eligible(pastSeqLen, S, respQHeads, respKVHeads int) bool {
	return pastSeqLen == 0 && S > 0 && respQHeads == respKVHeads
}

// selfAttentionBF16 computes full (non-tiled) multi-head attention with Q,
// K and V round-tripped through BF16 before the score and value GEMMs,
// simulating the precision of an all-BF16 activation path. After it
// returns, K and V for every position are written into the cache.
func selfAttentionBF16(ctx *decoder.Context, kCache, vCache *kvcache.Cache, qkv []float32, imOut []float32, batchSize, S int, mask MaskFunc, attFactor float32, heads, headSize, qkvCols, respQCols, respKVCols int) error {
	var g errgroup.Group
	for b := 0; b < batchSize; b++ {
		b := b
		for head := 0; head < heads; head++ {
			head := head
			g.Go(func() error {
				qBF := make([]float32, headSize)
				kBF := make([]float32, headSize)
				vBF := make([]float32, headSize)
				scores := make([]float32, S)

				for s := 0; s < S; s++ {
					row := b*S + s
					qRow := qkv[row*qkvCols+head*headSize : row*qkvCols+(head+1)*headSize]
					roundTripBF16(qBF, qRow)

					for t := 0; t < S; t++ {
						tRow := b*S + t
						kRow := qkv[tRow*qkvCols+respQCols+head*headSize : tRow*qkvCols+respQCols+(head+1)*headSize]
						roundTripBF16(kBF, kRow)
						scores[t] = kernels.Dot(qBF, kBF)*attFactor + mask(b, s, t)
					}
					maxScore := kernels.RowMax(scores)
					sum := kernels.SoftmaxInPlace(scores, maxScore)
					kernels.NormalizeInPlace(scores, sum)

					dst := imOut[row*respQCols+head*headSize : row*respQCols+(head+1)*headSize]
					for t := 0; t < S; t++ {
						tRow := b*S + t
						vRow := qkv[tRow*qkvCols+respQCols+respKVCols+head*headSize : tRow*qkvCols+respQCols+respKVCols+(head+1)*headSize]
						roundTripBF16(vBF, vRow)
						kernels.AddScaled(dst, vBF, scores[t])
					}
				}

				for t := 0; t < S; t++ {
					tRow := b*S + t
					kRow := qkv[tRow*qkvCols+respQCols+head*headSize : tRow*qkvCols+respQCols+(head+1)*headSize]
					vRow := qkv[tRow*qkvCols+respQCols+respKVCols+head*headSize : tRow*qkvCols+respQCols+respKVCols+(head+1)*headSize]
					copy(kCache.GetSequence(t, b, head), kRow)
					copy(vCache.GetSequence(t, b, head), vRow)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func roundTripBF16(dst, src []float32) {
	for i := range src {
		dst[i] = bf16.ToFloat32(bf16.FromFloat32(src[i]))
	}
}
