// Package rope implements the rotary position embedding post-op applied to
// Q and K immediately after the QKV projection.
package rope

import "math"

// Shape carries the seven dimensions the rotary post-op needs, mirroring
// the external post-op interface: batch, sequence length, Q head count,
// head size, KV head count, max sequence length and past sequence length.
type Shape struct {
	Batch        int
	SeqLen       int
	QHeads       int
	HeadSize     int
	KVHeads      int
	MaxSeqLength int
	PastSeqLen   int
}

// Params configures the rotary frequency base, scaling and the optional
// YaRN extension. Base and Scale are required; the YaRN fields are
// zero-value-safe (a zero ExtFactor disables the YaRN ramp and this
// degenerates to plain linear-scaled rope).
type Params struct {
	Base    float32
	Scale   float32 // 1 disables linear scaling
	NeoX    bool    // true: half-split pairing; false: adjacent pairing
	RopeDim int     // 0 means "use full head size"

	YarnBetaFast  float32
	YarnBetaSlow  float32
	YarnOrigCtx   float32
	YarnExtFactor float32
	YarnAttnFactor float32
}

// Forward applies the rotary post-op to q and k in place. positionIds, if
// non-nil, gives one position per sequence index; otherwise positions
// default to pastSeqLen, pastSeqLen+1, ... per sequence index. When
// shape.MaxSeqLength == 0 and positionIds == nil, no post-op is applied —
// callers that require rotary embeddings must supply one or the other.
func Forward(q, k []float32, qStride, kStride int, shape Shape, p Params, positionIds []int) {
	if positionIds == nil && shape.MaxSeqLength == 0 {
		return
	}
	for b := 0; b < shape.Batch; b++ {
		for s := 0; s < shape.SeqLen; s++ {
			pos := shape.PastSeqLen + s
			if positionIds != nil {
				idx := b*shape.SeqLen + s
				if idx < len(positionIds) {
					pos = positionIds[idx]
				}
			}
			row := b*shape.SeqLen + s
			qRow := q[row*qStride : row*qStride+shape.QHeads*shape.HeadSize]
			kRow := k[row*kStride : row*kStride+shape.KVHeads*shape.HeadSize]
			applyInPlace(qRow, pos, shape.QHeads, shape.HeadSize, p)
			applyInPlace(kRow, pos, shape.KVHeads, shape.HeadSize, p)
		}
	}
}

func applyInPlace(v []float32, pos, heads, headDim int, p Params) {
	if heads <= 0 || len(v) == 0 || headDim < 2 || p.Base <= 0 {
		return
	}
	ropeDim := p.RopeDim
	if ropeDim <= 0 || ropeDim > headDim {
		ropeDim = headDim
	}
	half := ropeDim / 2
	if half == 0 {
		return
	}
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	posf := float64(pos)
	if scale != 1 {
		posf /= float64(scale)
	}
	thetaScale := math.Pow(float64(p.Base), -2.0/float64(ropeDim))
	yarn := p.YarnExtFactor != 0 || p.YarnBetaFast != 0 || p.YarnBetaSlow != 0

	for h := 0; h < heads; h++ {
		offset := h * headDim
		theta := posf
		if p.NeoX {
			halfDim := ropeDim / 2
			for i := 0; i+1 < ropeDim; i += 2 {
				var cosT, sinT float32
				if yarn {
					cosT, sinT = yarnCosSin(float32(theta*float64(scale)), scale, p.YarnBetaFast, p.YarnBetaSlow, p.YarnExtFactor, p.YarnAttnFactor, i)
				} else {
					s, c := math.Sincos(theta)
					cosT, sinT = float32(c), float32(s)
				}
				pair := i / 2
				x0 := v[offset+pair]
				x1 := v[offset+pair+halfDim]
				v[offset+pair] = x0*cosT - x1*sinT
				v[offset+pair+halfDim] = x0*sinT + x1*cosT
				theta *= thetaScale
			}
			continue
		}
		for i := 0; i+1 < ropeDim; i += 2 {
			var cosT, sinT float32
			if yarn {
				cosT, sinT = yarnCosSin(float32(theta*float64(scale)), scale, p.YarnBetaFast, p.YarnBetaSlow, p.YarnExtFactor, p.YarnAttnFactor, i)
			} else {
				s, c := math.Sincos(theta)
				cosT, sinT = float32(c), float32(s)
			}
			x0 := v[offset+i]
			x1 := v[offset+i+1]
			v[offset+i] = x0*cosT - x1*sinT
			v[offset+i+1] = x0*sinT + x1*cosT
			theta *= thetaScale
		}
	}
}

func yarnCosSin(thetaExtrap, scale, betaFast, betaSlow, extFactor, attnFactor float32, i0 int) (float32, float32) {
	freqScale := float32(1.0)
	if scale != 0 {
		freqScale = 1 / scale
	}
	corrLow, corrHigh := yarnCorrDims(betaFast, betaSlow)
	thetaInterp := freqScale * thetaExtrap
	theta := thetaInterp
	mscale := attnFactor
	if mscale == 0 {
		mscale = 1
	}
	if extFactor != 0 {
		rampMix := yarnRamp(corrLow, corrHigh, i0) * extFactor
		theta = thetaInterp*(1-rampMix) + thetaExtrap*rampMix
		mscale *= 1.0 + 0.1*float32(math.Log(float64(1.0/freqScale)))
	}
	sinT, cosT := math.Sincos(float64(theta))
	return float32(cosT) * mscale, float32(sinT) * mscale
}

func yarnRamp(low, high float32, i0 int) float32 {
	denom := high - low
	if denom < 0.001 {
		denom = 0.001
	}
	y := (float32(i0)/2 - low) / denom
	if y < 0 {
		y = 0
	} else if y > 1 {
		y = 1
	}
	return 1 - y
}

func yarnCorrDims(betaFast, betaSlow float32) (float32, float32) {
	low := betaSlow
	high := betaFast
	if low < 0 {
		low = 0
	}
	if high < low {
		high = low
	}
	return low, high
}
