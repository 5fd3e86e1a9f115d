// Package maintenance implements the stateless parts of the per-tick
// cadence (component C): the decay factor, the prune-target formula, and
// seeded prune-candidate selection. See spec.md §4.C. Decay application
// and eviction itself stay in internal/voidmem since they need direct
// access to the trace store and territory counts.
package maintenance

import (
	"math"
	"math/rand"
	"sort"
)

// DecayFactor returns the per-tick geometric heat-decay multiplier for a
// given half-life: 0.5^(1/decayHalfLife).
func DecayFactor(decayHalfLife int) float64 {
	return math.Pow(0.5, 1.0/float64(decayHalfLife))
}

// InhibitionDecay is the fixed per-tick inhibition decay factor (spec.md
// §4.C step 2).
const InhibitionDecay = 0.98

// PruneTarget computes spec.md §4.C step 3's target removal count.
func PruneTarget(memSize, capacity int, pruneTargetRatio float64) int {
	if memSize <= capacity {
		return 0
	}
	byRatio := int(math.Floor(math.Max(1, float64(memSize)*pruneTargetRatio-float64(capacity))))
	upper := memSize - capacity
	target := byRatio
	if target > upper {
		target = upper
	}
	if target < 1 {
		target = 1
	}
	return target
}

// SelectPruneVictims seeded-shuffles ids, takes up to pruneSample of them,
// sorts that sample by ascending score, and returns the lowest `target`
// ids to remove.
func SelectPruneVictims(ids []string, scores map[string]float64, rng *rand.Rand, pruneSample, target int) []string {
	shuffled := append([]string(nil), ids...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	sample := shuffled
	if len(sample) > pruneSample {
		sample = sample[:pruneSample]
	}

	sort.SliceStable(sample, func(i, j int) bool { return scores[sample[i]] < scores[sample[j]] })

	if target > len(sample) {
		target = len(sample)
	}
	return sample[:target]
}
