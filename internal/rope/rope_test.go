package rope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForwardPositionZeroIsIdentity(t *testing.T) {
	q := []float32{1, 2, 3, 4}
	k := []float32{5, 6, 7, 8}
	shape := Shape{Batch: 1, SeqLen: 1, QHeads: 1, HeadSize: 4, KVHeads: 1, MaxSeqLength: 16}
	p := Params{Base: 10000, Scale: 1}

	Forward(q, k, 4, 4, shape, p, []int{0})

	assert.InDelta(t, 1, q[0], 1e-5)
	assert.InDelta(t, 2, q[1], 1e-5)
	assert.InDelta(t, 3, q[2], 1e-5)
	assert.InDelta(t, 4, q[3], 1e-5)
	assert.InDelta(t, 5, k[0], 1e-5)
}

func TestForwardPreservesPerHeadNormNonNeoX(t *testing.T) {
	q := []float32{1, 2, 3, 4}
	k := make([]float32, 0)
	shape := Shape{Batch: 1, SeqLen: 1, QHeads: 1, HeadSize: 4, KVHeads: 0, MaxSeqLength: 16}
	p := Params{Base: 10000, Scale: 1, NeoX: false}

	before := l2(q)
	Forward(q, k, 4, 0, shape, p, []int{7})
	after := l2(q)

	assert.InDelta(t, before, after, 1e-3, "rotation must preserve vector norm")
}

func TestForwardPreservesPerHeadNormNeoX(t *testing.T) {
	q := []float32{1, 2, 3, 4}
	k := make([]float32, 0)
	shape := Shape{Batch: 1, SeqLen: 1, QHeads: 1, HeadSize: 4, KVHeads: 0, MaxSeqLength: 16}
	p := Params{Base: 10000, Scale: 1, NeoX: true}

	before := l2(q)
	Forward(q, k, 4, 0, shape, p, []int{3})
	after := l2(q)

	assert.InDelta(t, before, after, 1e-3, "NeoX rotation must preserve vector norm")
}

func TestForwardNoopWithoutPositionsOrMaxSeqLen(t *testing.T) {
	q := []float32{1, 2, 3, 4}
	k := []float32{5, 6, 7, 8}
	shape := Shape{Batch: 1, SeqLen: 1, QHeads: 1, HeadSize: 4, KVHeads: 1}
	p := Params{Base: 10000, Scale: 1}

	Forward(q, k, 4, 4, shape, p, nil)

	assert.Equal(t, float32(1), q[0])
	assert.Equal(t, float32(5), k[0])
}

func TestForwardDefaultsPositionToPastSeqLenPlusIndex(t *testing.T) {
	shape := Shape{Batch: 1, SeqLen: 2, QHeads: 1, HeadSize: 4, KVHeads: 1, MaxSeqLength: 16, PastSeqLen: 5}
	p := Params{Base: 10000, Scale: 1}

	qA := []float32{1, 2, 3, 4, 1, 2, 3, 4}
	kA := make([]float32, 8)
	Forward(qA, kA, 4, 4, shape, p, nil)

	qB := []float32{1, 2, 3, 4, 1, 2, 3, 4}
	kB := make([]float32, 8)
	Forward(qB, kB, 4, 4, shape, p, []int{5, 6})

	for i := range qA {
		assert.InDelta(t, qB[i], qA[i], 1e-5, "element %d", i)
	}
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
