package branchstats

// Merge combines the history of the same (direction, var) pair from two runs.
// Branch counts, inferences and cutoffs are counters and add up; pseudocost,
// activity and conflict length are averaged weighted by branch count. When
// neither side has branched the scores are averaged unweighted. Merge is
// commutative.
func Merge(a, b VarStats) VarStats {
	n := a.Branchings + b.Branchings
	return VarStats{
		Branchings:     n,
		Pseudocost:     weighted(a.Pseudocost, a.Branchings, b.Pseudocost, b.Branchings, n),
		Activity:       weighted(a.Activity, a.Branchings, b.Activity, b.Branchings, n),
		ConflictLength: weighted(a.ConflictLength, a.Branchings, b.ConflictLength, b.Branchings, n),
		Inferences:     a.Inferences + b.Inferences,
		Cutoffs:        a.Cutoffs + b.Cutoffs,
	}
}

func weighted(x float64, nx int64, y float64, ny int64, n int64) float64 {
	if n == 0 {
		return (x + y) / 2
	}
	return (x*float64(nx) + y*float64(ny)) / float64(n)
}
