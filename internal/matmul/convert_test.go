package matmul

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"decoderlayer/weights"
)

func TestConvertWeightFloat32RoundTrip(t *testing.T) {
	raw := []float32{1, 2, 3, 4}
	m, scale, zero, sum := ConvertWeight(weights.Float32, 2, 2, raw, false)
	assert.True(t, scale.Empty())
	assert.True(t, zero.Empty())
	assert.True(t, sum.Empty())
	for i, v := range raw {
		assert.Equal(t, v, m.F32[i])
	}
}

func TestConvertWeightBF16RoundTripWithinTolerance(t *testing.T) {
	raw := []float32{1, -2, 0.5, 3.25}
	m, _, _, _ := ConvertWeight(weights.BF16, 2, 2, raw, false)
	dst := make([]float32, 4)
	dequantizeColMajor(dst, m, weights.Vector{}, weights.Vector{})
	for i, v := range raw {
		assert.InDelta(t, v, dst[i], 0.05, "element %d", i)
	}
}

func TestConvertWeightFP16RoundTripWithinTolerance(t *testing.T) {
	raw := []float32{1, -2, 0.5, 3.25}
	m, _, _, _ := ConvertWeight(weights.FP16, 2, 2, raw, false)
	dst := make([]float32, 4)
	dequantizeColMajor(dst, m, weights.Vector{}, weights.Vector{})
	for i, v := range raw {
		assert.InDelta(t, v, dst[i], 1e-3, "element %d", i)
	}
}

func TestConvertWeightInt8QuantizeDequantizeRoundTrip(t *testing.T) {
	raw := []float32{10, -20, 30, -40}
	m, scale, zero, sum := ConvertWeight(weights.Int8, 2, 2, raw, false)
	assert.Equal(t, 2, len(scale.Data))
	assert.Equal(t, 2, len(sum.Data))
	dst := make([]float32, 4)
	dequantizeColMajor(dst, m, scale, zero)
	for i, v := range raw {
		assert.InDelta(t, v, dst[i], 0.5, "element %d", i)
	}
}

func TestConvertWeightNibbleQuantizeDequantizeRoundTrip(t *testing.T) {
	raw := []float32{7, -7, 3.5, -3.5}
	m, scale, zero, _ := ConvertWeight(weights.Nibble, 2, 2, raw, false)
	dst := make([]float32, 4)
	dequantizeColMajor(dst, m, scale, zero)
	for i, v := range raw {
		assert.InDelta(t, v, dst[i], 1.0, "element %d", i)
	}
}

func TestConvertWeightNF4QuantizeDequantizeRoundTrip(t *testing.T) {
	raw := []float32{1, -1, 0, 0.5}
	m, scale, _, _ := ConvertWeight(weights.NF4, 2, 2, raw, false)
	dst := make([]float32, 4)
	dequantizeColMajor(dst, m, scale, weights.Vector{})
	for i, v := range raw {
		assert.InDelta(t, v, dst[i], 0.1, "element %d", i)
	}
}

func TestConvertWeightTransposedLayoutMatchesColumnMajor(t *testing.T) {
	// row-major 2x2: [[1,2],[3,4]] read with transposed=true takes (r,c)
	// from raw[c+N*r] and stores it at its column-major packed index.
	raw := []float32{1, 2, 3, 4}
	m, _, _, _ := ConvertWeight(weights.Float32, 2, 2, raw, true)
	// (r=0,c=0)=1, (r=0,c=1)=2, (r=1,c=0)=3, (r=1,c=1)=4
	assert.Equal(t, float32(1), m.F32[weights.PackedIndex(2, 0, 0)])
	assert.Equal(t, float32(2), m.F32[weights.PackedIndex(2, 0, 1)])
	assert.Equal(t, float32(3), m.F32[weights.PackedIndex(2, 1, 0)])
	assert.Equal(t, float32(4), m.F32[weights.PackedIndex(2, 1, 1)])
}

func TestNearestNF4LevelPicksClosestCodebookEntry(t *testing.T) {
	if got := nearestNF4Level(1.0); got != 15 {
		t.Fatalf("nearestNF4Level(1.0) = %d, want 15", got)
	}
	if got := nearestNF4Level(-1.0); got != 0 {
		t.Fatalf("nearestNF4Level(-1.0) = %d, want 0", got)
	}
	if got := nearestNF4Level(0.0); got != 7 {
		t.Fatalf("nearestNF4Level(0.0) = %d, want 7", got)
	}
}

func TestPackWeightIsIdentity(t *testing.T) {
	m := weights.Matrix{DType: weights.Int8, Rows: 2, Cols: 2, Packed: []byte{1, 2, 3, 4}}
	got := PackWeight(m)
	assert.Equal(t, m, got)
}
