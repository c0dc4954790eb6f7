package attention

import (
	decoder "decoderlayer"
	"decoderlayer/internal/kernels"
	"decoderlayer/internal/kvcache"

	"golang.org/x/sync/errgroup"
)

// flashTileSizes computes the source (query) and target (key/value) block
// widths flashAttention tiles over.
func flashTileSizes(S, T int) (srcBlk, tgtBlk int) {
	srcBlk = 256
	if half := S / 2; half > 0 {
		p := 1
		for p*2 <= half {
			p *= 2
		}
		if p < srcBlk {
			srcBlk = p
		}
	}
	if srcBlk < 1 {
		srcBlk = 1
	}
	tgtBlk = 512
	if T < tgtBlk {
		tgtBlk = T
	}
	if tgtBlk < 1 {
		tgtBlk = 1
	}
	return srcBlk, tgtBlk
}

// flashAttention runs the tiled, streaming online-softmax kernel used for
// long prefill sequences (S > flashThresh). It is parallelized over
// (batch, Q head, source block); each block streams over target blocks via
// incrementalTileAttention. After the last target block, output is
// normalized by the running sum. K and V for the full [0,T) range are
// written into the cache once attention completes.
func flashAttention(ctx *decoder.Context, kCache, vCache *kvcache.Cache, qkv []float32, imOut []float32, batchSize, S, T int, mask MaskFunc, attFactor float32, heads, kvHeads, headSize, qkvCols, respQCols, respKVCols int) error {
	srcBlk, tgtBlk := flashTileSizes(S, T)

	var g errgroup.Group
	for b := 0; b < batchSize; b++ {
		b := b
		for head := 0; head < heads; head++ {
			head := head
			kvHead := head * kvHeads / heads
			for srcStart := 0; srcStart < S; srcStart += srcBlk {
				srcStart := srcStart
				srcLen := srcBlk
				if srcStart+srcLen > S {
					srcLen = S - srcStart
				}
				g.Go(func() error {
					preSum := make([]float32, srcLen)
					preMax := make([]float32, srcLen)
					for i := range preMax {
						preMax[i] = negInf
					}
					out := make([][]float32, srcLen)
					for i := range out {
						out[i] = make([]float32, headSize)
					}

					qArr := make([]float32, srcLen*headSize)
					for i := 0; i < srcLen; i++ {
						row := b*S + srcStart + i
						copy(qArr[i*headSize:(i+1)*headSize], qkv[row*qkvCols+head*headSize:row*qkvCols+(head+1)*headSize])
					}

					for tgtStart := 0; tgtStart < T; tgtStart += tgtBlk {
						tgtLen := tgtBlk
						if tgtStart+tgtLen > T {
							tgtLen = T - tgtStart
						}
						incrementalTileAttention(qkv, qArr, kvHead, headSize, qkvCols, respQCols, respKVCols, b, S,
							srcStart, srcLen, tgtStart, tgtLen, mask, attFactor, preMax, preSum, out)
					}

					for i := 0; i < srcLen; i++ {
						row := b*S + srcStart + i
						dst := imOut[row*respQCols+head*headSize : row*respQCols+(head+1)*headSize]
						if preSum[i] == 0 {
							continue
						}
						inv := 1 / preSum[i]
						for j := 0; j < headSize; j++ {
							dst[j] = out[i][j] * inv
						}
					}
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return copyKV(kCache, vCache, qkv, qkvCols, respQCols, respKVCols, headSize, batchSize, S, 0, kvHeads)
}

const negInf = float32(-1e30)

// incrementalTileAttention folds one target block into the running
// (max, sum, output) triple for each of the srcLen query rows using the
// streaming log-sum-exp update: newMax = max(prevMax, blockMax);
// alpha = exp(prevMax-newMax) rescales the running state; beta =
// exp(blockMax-newMax) rescales the new block's contribution before it is
// folded in.
func incrementalTileAttention(qkv, qArr []float32, kvHead, headSize, qkvCols, respQCols, respKVCols, b, S, srcStart, srcLen, tgtStart, tgtLen int, mask MaskFunc, attFactor float32, preMax, preSum []float32, out [][]float32) {
	qkArr := make([]float32, tgtLen)
	expArr := make([]float32, tgtLen)

	for i := 0; i < srcLen; i++ {
		qRow := qArr[i*headSize : (i+1)*headSize]
		blockMax := negInf
		for t := 0; t < tgtLen; t++ {
			tRow := b*S + tgtStart + t
			kRow := qkv[tRow*qkvCols+respQCols+kvHead*headSize : tRow*qkvCols+respQCols+(kvHead+1)*headSize]
			s := kernels.Dot(qRow, kRow)*attFactor + mask(b, srcStart+i, tgtStart+t)
			qkArr[t] = s
			if s > blockMax {
				blockMax = s
			}
		}

		newMax := preMax[i]
		if blockMax > newMax {
			newMax = blockMax
		}
		alpha := expf(preMax[i] - newMax)
		beta := expf(blockMax - newMax)

		var blockSum float32
		for t := 0; t < tgtLen; t++ {
			w := expf(qkArr[t] - blockMax)
			expArr[t] = w
			blockSum += w
		}

		preSum[i] = alpha*preSum[i] + beta*blockSum
		for j := 0; j < headSize; j++ {
			out[i][j] *= alpha
		}
		for t := 0; t < tgtLen; t++ {
			w := beta * expArr[t]
			if w == 0 {
				continue
			}
			tRow := b*S + tgtStart + t
			vRow := qkv[tRow*qkvCols+respQCols+respKVCols+kvHead*headSize : tRow*qkvCols+respQCols+respKVCols+(kvHead+1)*headSize]
			kernels.AddScaled(out[i], vRow, w)
		}
		preMax[i] = newMax
	}
}

func expf(x float32) float32 {
	if x <= negInf/2 {
		return 0
	}
	return kernels.Expf(x)
}
