package kernels

import "testing"

func BenchmarkDot(b *testing.B) {
	sizes := []int{256, 1024, 4096}
	for _, n := range sizes {
		b.Run("n="+itoa(n), func(b *testing.B) {
			a := make([]float32, n)
			c := make([]float32, n)
			for i := 0; i < n; i++ {
				a[i] = float32(i%97) * 0.01
				c[i] = float32(i%31) * 0.02
			}
			b.ReportAllocs()
			b.SetBytes(int64(n * 4 * 2))
			b.ResetTimer()
			var sink float32
			for i := 0; i < b.N; i++ {
				sink = Dot(a, c)
			}
			_ = sink
		})
	}
}

func BenchmarkAddScaled(b *testing.B) {
	sizes := []int{256, 1024, 4096}
	for _, n := range sizes {
		b.Run("n="+itoa(n), func(b *testing.B) {
			dst := make([]float32, n)
			src := make([]float32, n)
			for i := 0; i < n; i++ {
				dst[i] = float32(i%17) * 0.03
				src[i] = float32(i%29) * 0.04
			}
			b.ReportAllocs()
			b.SetBytes(int64(n * 4 * 2))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				AddScaled(dst, src, 0.5)
			}
		})
	}
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
