package kernels

var siluMulImpl = siluMulGeneric

// SiLUMulInto computes dst[i] = silu(gate[i]) * up[i], the elementwise fold
// between the gate and up projections of an MLP block.
func SiLUMulInto(dst, gate, up []float32) {
	siluMulImpl(dst, gate, up)
}

func siluMulGeneric(dst, gate, up []float32) {
	n := len(dst)
	if len(gate) < n {
		n = len(gate)
	}
	if len(up) < n {
		n = len(up)
	}
	for i := 0; i < n; i++ {
		dst[i] = silu(gate[i]) * up[i]
	}
}
