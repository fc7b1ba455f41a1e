package utils

import (
	"math"
	"math/rand"
)

// DailyBonusAmount draws the check-in reward: a Gaussian around 5.5 clamped
// to [1, 10].
func DailyBonusAmount(rng *rand.Rand) int64 {
	v := math.Round(rng.NormFloat64()*DailyBonusStdDev + DailyBonusMean)
	if v < DailyBonusMin {
		v = DailyBonusMin
	}
	if v > DailyBonusMax {
		v = DailyBonusMax
	}
	return int64(v)
}
