package branchstats

import (
	roaring "github.com/RoaringBitmap/roaring"
)

// VarSet returns the set of variables with statistics for dir.
func (r *Record) VarSet(dir Direction) *roaring.Bitmap {
	bm := roaring.New()
	for _, e := range r.Table(dir).entries {
		bm.Add(uint32(e.Var))
	}
	return bm
}

// BranchedBothWays returns the variables that have statistics in both
// directions.
func (r *Record) BranchedBothWays() *roaring.Bitmap {
	return roaring.And(r.VarSet(Down), r.VarSet(Up))
}

// BranchedAny returns every variable with statistics in at least one direction.
func (r *Record) BranchedAny() *roaring.Bitmap {
	return roaring.Or(r.VarSet(Down), r.VarSet(Up))
}
