package envelope

import (
	"math/rand"
	"sort"
)

// SplitAmounts pre-generates the claim vector for a red envelope by the
// random-cut method: one shard is reserved per recipient, the remaining pool
// is divided by count-1 uniform cut points, floored, and the rounding
// remainder is spread over random indices. The result is shuffled so claim
// order carries no information.
//
// Invariants: len == count, every amount >= 1, sum == total.
func SplitAmounts(total int64, count int, rng *rand.Rand) []int64 {
	if count <= 0 || total < int64(count) {
		return nil
	}
	if count == 1 {
		return []int64{total}
	}

	pool := total - int64(count)
	amounts := make([]int64, count)

	if pool > 0 {
		cuts := make([]float64, count-1)
		for i := range cuts {
			cuts[i] = rng.Float64()
		}
		sort.Float64s(cuts)

		prev := 0.0
		var assigned int64
		for i := 0; i < count; i++ {
			next := 1.0
			if i < count-1 {
				next = cuts[i]
			}
			share := int64(float64(pool) * (next - prev))
			amounts[i] = share
			assigned += share
			prev = next
		}

		for remainder := pool - assigned; remainder > 0; remainder-- {
			amounts[rng.Intn(count)]++
		}
	}

	for i := range amounts {
		amounts[i]++
	}

	rng.Shuffle(count, func(i, j int) {
		amounts[i], amounts[j] = amounts[j], amounts[i]
	})
	return amounts
}
