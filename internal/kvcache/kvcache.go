// Package kvcache implements the per-layer key/value cache the attention
// kernels write into during prefill and decode, and read back from on every
// subsequent step.
package kvcache

import "fmt"

// Cache stores one tensor (K or V) for every cached position, batch item
// and KV head in a single [pos][batch][kvHead][headDim] row-major buffer.
// Both K and V use the same layout; a layer owns one Cache per tensor.
type Cache struct {
	data     []float32
	batch    int
	kvHeads  int
	headDim  int
	capacity int // max cached positions
}

// New allocates a Cache able to hold capacity positions for batch items,
// each with kvHeads heads of headDim elements.
func New(capacity, batch, kvHeads, headDim int) (*Cache, error) {
	if capacity <= 0 || batch <= 0 || kvHeads <= 0 || headDim <= 0 {
		return nil, fmt.Errorf("kvcache: invalid dimensions capacity=%d batch=%d kvHeads=%d headDim=%d", capacity, batch, kvHeads, headDim)
	}
	return &Cache{
		data:     make([]float32, capacity*batch*kvHeads*headDim),
		batch:    batch,
		kvHeads:  kvHeads,
		headDim:  headDim,
		capacity: capacity,
	}, nil
}

// leadingDim is the stride, in elements, between consecutive cached
// positions for a fixed (batch, head) — i.e. the row stride GetHead
// reports.
func (c *Cache) leadingDim() int { return c.batch * c.kvHeads * c.headDim }

func (c *Cache) offset(pos, batchIdx, headIdx int) int {
	return pos*c.leadingDim() + batchIdx*c.kvHeads*c.headDim + headIdx*c.headDim
}

// GetSequence returns the headDim-length row for one cached position, one
// batch item and one KV head. Written by the attention kernel during
// prefill/decode; read by later steps.
func (c *Cache) GetSequence(pos, batchIdx, headIdx int) []float32 {
	off := c.offset(pos, batchIdx, headIdx)
	return c.data[off : off+c.headDim]
}

// GetHead returns a contiguous-by-position view of every cached row for one
// batch item and KV head, plus the leading dimension (element stride)
// between consecutive positions. The returned slice spans from position 0
// through the last valid position at ld*(numCached-1)+headDim.
func (c *Cache) GetHead(batchIdx, headIdx int) (data []float32, ld int) {
	ld = c.leadingDim()
	off := batchIdx*c.kvHeads*c.headDim + headIdx*c.headDim
	return c.data[off:], ld
}

// Capacity returns the maximum number of positions this cache can hold.
func (c *Cache) Capacity() int { return c.capacity }

// HeadDim returns the per-head element width.
func (c *Cache) HeadDim() int { return c.headDim }
