// Package bf16 adapts github.com/d4l3k/go-bfloat16 to the raw uint16-bits
// representation the core's BF16 weight storage uses, so BF16 weight
// conversion and the BF16 self-attention round-trip never hand-roll bit
// shuffling. flashAttention works on float32 throughout and does not use it.
package bf16

import "github.com/d4l3k/go-bfloat16"

// ToFloat32 widens a single BF16 value (stored as its raw bit pattern) to
// float32.
func ToFloat32(bits uint16) float32 {
	return bfloat16.ToFloat32(bfloat16.BF16(bits))
}

// FromFloat32 truncates a float32 to its BF16 bit pattern.
func FromFloat32(f float32) uint16 {
	return uint16(bfloat16.FromFloat32(f))
}

// SliceToFloat32 widens a BF16 buffer (raw bits) into dst, which must be at
// least as long as src.
func SliceToFloat32(dst []float32, src []uint16) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = ToFloat32(src[i])
	}
}

// SliceFromFloat32 narrows a float32 buffer into BF16 raw bits.
func SliceFromFloat32(dst []uint16, src []float32) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = FromFloat32(src[i])
	}
}
