// Package tunables holds the small set of environment-overridable constants
// the decoder core needs: thread counts, the flash-attention prefill
// threshold, the GGML-matching toggle, and the L2 capacity assumption used
// by slimAttention's block-size search.
package tunables

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// EnvIntArch checks a GOARCH-specific override (DECODER_ARM64_FOO) before
// the plain DECODER_FOO variable, for kernels whose sweet spot differs
// between amd64 and arm64.
func EnvIntArch(name string, fallback int) int {
	if runtime.GOARCH == "arm64" {
		suffix := strings.TrimPrefix(name, "DECODER_")
		armName := "DECODER_ARM64_" + suffix
		if raw := os.Getenv(armName); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				return v
			}
		}
	}
	return envInt(name, fallback)
}

var (
	numThreads   = envInt("DECODER_NUM_THREADS", runtime.GOMAXPROCS(0))
	flashThresh  = envInt("DECODER_FLASH_THRESH", 1024)
	l2Bytes      = envInt("DECODER_L2_BYTES", probeL2())
	matchGGML    = os.Getenv("DECODER_MATCH_GGML") == "1"
	minSlimBlock = envInt("DECODER_MIN_SLIM_BLOCK", 6)
)

// probeL2 is a coarse startup estimate used only when DECODER_L2_BYTES is
// unset: assume 2 MiB per core cluster, matching typical desktop/server L2
// sizing. A real probe would read /sys/devices/system/cpu/cpu0/cache on
// Linux; see DESIGN.md Open Question O3.
func probeL2() int {
	const defaultL2 = 2 << 20
	return defaultL2
}

// NumThreads returns the ambient worker-pool size.
func NumThreads() int { return numThreads }

// FlashThresh returns the S threshold above which flashAttention is
// selected during prefill.
func FlashThresh() int { return flashThresh }

// L2Bytes returns the assumed L2 cache capacity used by slimAttention's
// mBlockSize search.
func L2Bytes() int { return l2Bytes }

// MatchGGML reports whether kernels should favor bit-for-bit compatibility
// with a GGML reference over the faster unrolled path.
func MatchGGML() bool { return matchGGML }

// MinSlimBlock is the floor clamp for mBlockSize.
func MinSlimBlock() int { return minSlimBlock }
