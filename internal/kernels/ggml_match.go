package kernels

import "os"

var matchGGMLFlag = os.Getenv("DECODER_MATCH_GGML") == "1" || os.Getenv("DECODER_PARITY_STRICT") == "1"
var parityStrictFlag = os.Getenv("DECODER_PARITY_STRICT") == "1"

func matchGGML() bool {
	return matchGGMLFlag
}

func parityStrict() bool {
	return parityStrictFlag
}
