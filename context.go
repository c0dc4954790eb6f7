// Package decoder implements the CPU-side core of one transformer decoder
// layer: the attention block (internal/../attention) and the MLP block
// (internal/../mlp) that share the Context defined here.
package decoder

import "decoderlayer/internal/pool"

// ActivationType names the MLP activation. SiLU is the only supported
// value; any other value is a configuration error the caller must not
// attempt to feed into a forward pass.
type ActivationType int

const (
	SiLU ActivationType = iota
)

// Context carries per-layer hyperparameters, parallelism descriptors and
// scratch buffers shared between the norm, projection and attention steps
// of one decoder layer's forward pass.
type Context struct {
	HiddenSize       int
	IntermediateSize int
	AttHeadNum       int // Q heads, global (pre-split)
	KVHeadNum        int // KV heads, global (pre-split)
	AttHeadSize      int
	BatchSize        int
	InputSeqLen      int
	MaxSeqLength     int
	MaxPosEmbed      int
	Epsilon          float32
	AttFactor        float32 // softmax scale, typically 1/sqrt(headSize)
	ActType          ActivationType

	NumSplit int // tensor-parallel world size
	SplitIdx int // this rank

	NumThreads int
	PPSize     int
	Layers     int

	// Reserved1 caches the per-layer M-block size chosen by slimAttention;
	// written once by the first layer of a prefill pipeline stage and read
	// by subsequent layers.
	Reserved1 int

	NormBuf   []float32
	ImOut     []float32
	QKVMatMul []float32
	QKScores  []float32

	Scratch *pool.Pool
}

// IsMasterRank reports whether this context's rank performs the residual
// addition (rank 0 by convention).
func (c *Context) IsMasterRank() bool { return c.SplitIdx == 0 }

// Pool returns the scratch pool, allocating one lazily if the caller did
// not supply one.
func (c *Context) Pool() *pool.Pool {
	if c.Scratch == nil {
		c.Scratch = pool.New()
	}
	return c.Scratch
}
