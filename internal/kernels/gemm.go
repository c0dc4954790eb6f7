package kernels

// MatMulABt computes dst[m,n] = dot(a[m,:], b[n,:]) for m in [0,M), n in
// [0,N), both operands read as K-length rows. This is the shape the
// attention score GEMM needs (Q rows dotted against cached K rows); a and b
// may have independent leading dimensions (lda, ldb) so K's cache-provided
// stride does not need to equal K itself.
func MatMulABt(dst []float32, ldc int, a []float32, lda int, m0 int, b []float32, ldb int, n0 int, M, N, K int) {
	for m := 0; m < M; m++ {
		arow := a[(m0+m)*lda : (m0+m)*lda+K]
		drow := dst[m*ldc : m*ldc+N]
		for n := 0; n < N; n++ {
			brow := b[(n0+n)*ldb : (n0+n)*ldb+K]
			drow[n] = Dot(arow, brow)
		}
	}
}

// MatMulAccumAB accumulates dst[m,d] += sum_t a[m,t] * b[t,d] for m in
// [0,M), d in [0,D). b is read through (ptr, ldb) so it can be a KV-cache
// head view (softmax weights contracted against cached V) without requiring
// contiguous storage between positions.
func MatMulAccumAB(dst []float32, ldc int, a []float32, lda int, M, T int, b []float32, ldb int, D int) {
	for m := 0; m < M; m++ {
		arow := a[m*lda : m*lda+T]
		drow := dst[m*ldc : m*ldc+D]
		for t := 0; t < T; t++ {
			w := arow[t]
			if w == 0 {
				continue
			}
			brow := b[t*ldb : t*ldb+D]
			AddScaled(drow, brow, w)
		}
	}
}
