package state

import (
	"cmp"
	"math"
	"slices"
	"strconv"
)

func SortById[V any](entries []Pair[NodeId, V]) {
	slices.SortFunc(entries, func(a, b Pair[NodeId, V]) int {
		return cmp.Compare(a.V1, b.V1)
	})
}

func SortIds(ids []NodeId) {
	slices.Sort(ids)
}

// ClampScore limits a score to [0, 1] and snaps it to 1/TrustScale, so repeated
// 0.1 steps land exactly on the thresholds.
func ClampScore(score float64) float64 {
	score = math.Round(score*TrustScale) / TrustScale
	return min(max(score, 0.0), 1.0)
}

// FormatScore renders a score the shortest way that round-trips, e.g. 1, 0.8, 0.29.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'g', -1, 64)
}

// FormatSeconds renders a simulation time in seconds the same way.
func FormatSeconds(secs float64) string {
	return strconv.FormatFloat(secs, 'g', -1, 64)
}
