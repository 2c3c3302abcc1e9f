package models

import (
	"sort"
	"strings"
)

// Distance metric names, spelled the way Qdrant reports them.
const (
	DistanceCosine    = "Cosine"
	DistanceDot       = "Dot"
	DistanceEuclid    = "Euclid"
	DistanceManhattan = "Manhattan"
)

// HigherIsBetter reports whether a larger score means a closer match for the metric.
func HigherIsBetter(distance string) bool {
	switch strings.ToLower(distance) {
	case "euclid", "euclidean", "l2", "manhattan", "l1":
		return false
	}
	return true
}

// SortHits orders hits best first for the given metric. The sort is stable.
func SortHits(hits []Hit, distance string) {
	desc := HigherIsBetter(distance)
	sort.SliceStable(hits, func(i, j int) bool {
		if desc {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Score < hits[j].Score
	})
}
