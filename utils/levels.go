package utils

import "math"

// UpgradeCost returns the shard cost of buying the next star from the given
// level. The curve is linear early, polynomial through mid levels, and
// compounds 5% per level past 60.
func UpgradeCost(level int) int64 {
	switch {
	case level <= 20:
		return int64(3 + level)
	case level <= 60:
		return int64(25 + math.Pow(float64(level-20), 1.3))
	default:
		return int64(150 * math.Pow(1.05, float64(level-60)))
	}
}
