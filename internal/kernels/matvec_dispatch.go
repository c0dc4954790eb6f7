package kernels

var matVecTImpl = MatVecT

// MatVecTDispatch computes dst = transpose(mat) * vec through the
// arch-selected implementation.
func MatVecTDispatch(dst, mat []float32, rows, cols int, vec []float32) {
	matVecTImpl(dst, mat, rows, cols, vec)
}
