//go:build amd64

package kernels

func init() {
	matVecTImpl = matVecTOpt
	siluMulImpl = siluMulOpt
	rmsNormImpl = rmsNormOpt
	softmaxInPlaceImpl = softmaxInPlaceOpt
}
