package attention

import (
	decoder "decoderlayer"
	"decoderlayer/internal/kvcache"
)

// fusedAttention selects between slimAttention and crossAttnShardHead.
//
// The shared KV-copy rule (§4.4.5) distinguishes an eager whole-head copy
// before parallel work starts from each tile lazily copying only its own
// head; this implementation always copies eagerly since the copy is
// idempotent at disjoint (seq, batch, head) cells regardless of when it
// runs, and unifies the codepath instead of duplicating slimAttention's
// tile loop for the rarer non-split, non-grouped, non-sharded case.
func fusedAttention(ctx *decoder.Context, w *Weights, kCache, vCache *kvcache.Cache, qkv, imOut []float32, batchSize, S, T, pastSeqLen int, mask MaskFunc, attFactor float32) error {
	respQHeads := w.Range.QHeads()
	respKVHeads := w.Range.KVHeads()
	headSize := w.HeadSize
	qkvCols := w.RespQCols + 2*w.RespKVCols

	if err := copyKV(kCache, vCache, qkv, qkvCols, w.RespQCols, w.RespKVCols, headSize, batchSize, S, pastSeqLen, respKVHeads); err != nil {
		return err
	}

	if splits, ok := crossShardEligible(ctx.NumThreads, batchSize, respQHeads, S); ok {
		return crossAttnShardHead(kCache, vCache, qkv, imOut, batchSize, T, mask, attFactor, respQHeads, respKVHeads, headSize, qkvCols, w.RespQCols, splits)
	}
	return slimAttention(ctx, kCache, vCache, qkv, imOut, batchSize, S, T, pastSeqLen, mask, attFactor, respQHeads, respKVHeads, headSize, qkvCols, w.RespQCols, w.RespKVCols)
}
