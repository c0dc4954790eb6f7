// Package fp16 adapts github.com/x448/float16 to the raw uint16-bits
// representation used for the FP16 weight-storage dtype, one of the six
// weight element types this core dequantizes on the fly.
package fp16

import "github.com/x448/float16"

// ToFloat32 widens a single FP16 value (raw bit pattern) to float32.
func ToFloat32(bits uint16) float32 {
	return float16.Float16(bits).Float32()
}

// FromFloat32 narrows a float32 to its FP16 bit pattern.
func FromFloat32(f float32) uint16 {
	return uint16(float16.Fromfloat32(f))
}

// SliceToFloat32 widens an FP16 buffer (raw bits) into dst.
func SliceToFloat32(dst []float32, src []uint16) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = ToFloat32(src[i])
	}
}

// SliceFromFloat32 narrows a float32 buffer into FP16 raw bits.
func SliceFromFloat32(dst []uint16, src []float32) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = FromFloat32(src[i])
	}
}
