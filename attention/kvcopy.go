package attention

import (
	"decoderlayer/internal/kvcache"

	"golang.org/x/sync/errgroup"
)

// copyKV writes this call's S new K/V rows for every batch item and every
// KV head this rank owns into kCache/vCache at cache positions
// [pastSeqLen, pastSeqLen+S). qkv is the M x qkvCols concatenated QKV
// buffer (M = batchSize*S); K occupies columns [respQCols,
// respQCols+respKVCols), V the next respKVCols columns.
//
// fusedAttention calls this eagerly before every dispatch, whatever the
// grouping, M-block split or head-sharding; no kernel tile copies its own
// head lazily. Each (seq, batch, head) cell is written exactly once.
func copyKV(kCache, vCache *kvcache.Cache, qkv []float32, qkvCols, respQCols, respKVCols, headSize int, batchSize, seqLen, pastSeqLen, respKVHeads int) error {
	var g errgroup.Group
	for b := 0; b < batchSize; b++ {
		b := b
		for h := 0; h < respKVHeads; h++ {
			h := h
			g.Go(func() error {
				for s := 0; s < seqLen; s++ {
					row := b*seqLen + s
					base := row*qkvCols + respQCols
					kSrc := qkv[base+h*headSize : base+(h+1)*headSize]
					vBase := base + respKVCols
					vSrc := qkv[vBase+h*headSize : vBase+(h+1)*headSize]
					copy(kCache.GetSequence(pastSeqLen+s, b, h), kSrc)
					copy(vCache.GetSequence(pastSeqLen+s, b, h), vSrc)
				}
				return nil
			})
		}
	}
	return g.Wait()
}
