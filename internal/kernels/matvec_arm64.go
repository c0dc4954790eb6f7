//go:build arm64

package kernels

func init() {
	if parityStrict() {
		return
	}
	matVecTImpl = matVecTOpt
	siluMulImpl = siluMulOpt
	rmsNormImpl = rmsNormOpt
	softmaxInPlaceImpl = softmaxInPlaceOpt
}
