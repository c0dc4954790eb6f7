package attention

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"decoderlayer/internal/kernels"
	"decoderlayer/internal/kvcache"
	"decoderlayer/internal/logging"

	"golang.org/x/sync/errgroup"
)

// splitInfo is one shard's contribution to the head-sharded online-softmax
// reduction, cacheline-padded so producer and reducer threads never share
// a line. The producer writes Max and Sum then publishes Flag with a
// store-release; the reducer spin-waits on a load-acquire.
type splitInfo struct {
	max  float32
	sum  float32
	flag int32
	_    [52]byte // pad to 64 bytes
}

// crossShardEligible reports whether the head-shard kernel applies: query
// length 1 and more threads available than per-head parallelism can use.
func crossShardEligible(numThreads, batchSize, respQHeads, S int) (splits int, ok bool) {
	if S != 1 {
		return 0, false
	}
	perHead := batchSize * respQHeads
	if perHead == 0 || numThreads < 2*perHead {
		return 0, false
	}
	return numThreads / perHead, true
}

// crossAttnShardHead splits the T key columns for a single-token query into
// splits shards, computes a local softmax per shard, and reduces with a
// log-sum-exp merge. Requires headSize % 16 == 0; a violation is a
// configuration error and terminates the process.
func crossAttnShardHead(kCache, vCache *kvcache.Cache, qkv []float32, imOut []float32, batchSize, T int, mask MaskFunc, attFactor float32, respQHeads, respKVHeads, headSize, qkvCols, respQCols int, splits int) error {
	if headSize%16 != 0 {
		logging.Fatal("attention.crossAttnShardHead", "headSize must be a multiple of 16 for head-sharded attention", map[string]any{"headSize": headSize})
		return fmt.Errorf("attention: headSize=%d not a multiple of 16", headSize)
	}
	nb := (T + splits - 1) / splits

	var g errgroup.Group
	for b := 0; b < batchSize; b++ {
		b := b
		for head := 0; head < respQHeads; head++ {
			head := head
			kvHead := head * respKVHeads / respQHeads
			g.Go(func() error {
				kHead, ldk := kCache.GetHead(b, kvHead)
				vHead, ldv := vCache.GetHead(b, kvHead)

				infos := make([]splitInfo, splits)
				partials := make([][]float32, splits)

				var wg errgroup.Group
				for s := 0; s < splits; s++ {
					s := s
					wg.Go(func() error {
						lo := s * nb
						hi := lo + nb
						if hi > T {
							hi = T
						}
						if lo >= hi {
							infos[s].max = float32(math.Inf(-1))
							atomic.StoreInt32(&infos[s].flag, 1)
							partials[s] = make([]float32, headSize)
							return nil
						}
						row := b // S==1, so the row index is just b
						qRow := qkv[row*qkvCols+head*headSize : row*qkvCols+(head+1)*headSize]

						scoreShard := make([]float32, hi-lo)
						for t := lo; t < hi; t++ {
							kRow := kHead[t*ldk : t*ldk+headSize]
							scoreShard[t-lo] = kernels.Dot(qRow, kRow)*attFactor + mask(b, 0, t)
						}
						shardMax := kernels.RowMax(scoreShard)
						shardSum := kernels.SoftmaxInPlace(scoreShard, shardMax)

						partial := make([]float32, headSize)
						for t := lo; t < hi; t++ {
							vRow := vHead[t*ldv : t*ldv+headSize]
							kernels.AddScaled(partial, vRow, scoreShard[t-lo])
						}
						partials[s] = partial

						infos[s].max = shardMax
						infos[s].sum = shardSum
						atomic.StoreInt32(&infos[s].flag, 1)
						return nil
					})
				}
				if err := wg.Wait(); err != nil {
					return err
				}

				for s := 0; s < splits; s++ {
					for atomic.LoadInt32(&infos[s].flag) == 0 {
						runtime.Gosched()
					}
				}

				realMax := float32(math.Inf(-1))
				for s := 0; s < splits; s++ {
					if infos[s].max > realMax {
						realMax = infos[s].max
					}
				}
				var realSum float32
				revFactor := make([]float32, splits)
				for s := 0; s < splits; s++ {
					revFactor[s] = float32(math.Exp(float64(infos[s].max - realMax)))
					realSum += infos[s].sum * revFactor[s]
				}

				dst := imOut[b*respQCols+head*headSize : b*respQCols+(head+1)*headSize]
				if realSum == 0 {
					return nil
				}
				invSum := 1 / realSum
				for s := 0; s < splits; s++ {
					w := revFactor[s] * invSum
					if w == 0 {
						continue
					}
					kernels.AddScaled(dst, partials[s], w)
				}
				return nil
			})
		}
	}
	return g.Wait()
}
