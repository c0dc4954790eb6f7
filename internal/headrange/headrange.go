// Package headrange computes the per-rank slice of Q and KV attention heads
// under tensor-parallel sharding.
package headrange

import (
	"fmt"

	"decoderlayer/internal/logging"
)

// Range describes one rank's Q and KV head ownership.
type Range struct {
	StartQHead, EndQHead   int
	StartKVHead, EndKVHead int
}

// QHeads returns the number of Q heads this rank owns.
func (r Range) QHeads() int { return r.EndQHead - r.StartQHead }

// KVHeads returns the number of KV heads this rank owns.
func (r Range) KVHeads() int { return r.EndKVHead - r.StartKVHead }

// Compute splits attHeadNum Q heads and kvHeadNum KV heads across numSplit
// ranks, returning the range owned by splitIdx.
//
// attHeadNum must be a multiple of kvHeadNum (grouped-query attention
// requires an integral number of Q heads per KV head).
func Compute(attHeadNum, kvHeadNum, numSplit, splitIdx int) (Range, error) {
	if attHeadNum <= 0 || kvHeadNum <= 0 || numSplit <= 0 {
		return Range{}, fmt.Errorf("headrange: attHeadNum=%d kvHeadNum=%d numSplit=%d must be positive", attHeadNum, kvHeadNum, numSplit)
	}
	if attHeadNum%kvHeadNum != 0 {
		logging.Fatal("headrange.Compute", "attHeadNum must be a multiple of kvHeadNum", map[string]any{"attHeadNum": attHeadNum, "kvHeadNum": kvHeadNum})
		return Range{}, fmt.Errorf("headrange: attHeadNum=%d not a multiple of kvHeadNum=%d", attHeadNum, kvHeadNum)
	}
	if splitIdx < 0 || splitIdx >= numSplit {
		return Range{}, fmt.Errorf("headrange: splitIdx=%d out of range [0,%d)", splitIdx, numSplit)
	}

	base := attHeadNum / numSplit
	rem := attHeadNum % numSplit
	start := splitIdx * base
	if splitIdx < rem {
		start += splitIdx
	} else {
		start += rem
	}
	count := base
	if splitIdx < rem {
		count++
	}
	end := start + count

	startKV := start * kvHeadNum / attHeadNum
	endKV := ((end - 1) * kvHeadNum / attHeadNum) + 1

	return Range{
		StartQHead:  start,
		EndQHead:    end,
		StartKVHead: startKV,
		EndKVHead:   endKV,
	}, nil
}
