// Package capture builds a branchstats.Record from a live solver.
package capture

import (
	"fmt"

	roaring "github.com/RoaringBitmap/roaring"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/solver"
)

// Capture reads the branching history of s into a fresh record. The record's
// total depth equals its depth since it has absorbed nothing yet. A var
// reported twice for one direction, a negative var index, a negative branch
// count or a negative depth fail with *branchstats.CaptureError and no record.
// s is only read.
func Capture(s solver.Instance) (*branchstats.Record, error) {
	depth := s.CurrentMaxDepth()
	if err := branchstats.CheckDepth(int64(depth)); err != nil {
		return nil, &branchstats.CaptureError{Op: "depth", Err: err}
	}

	rec := branchstats.New()
	rec.MaxDepth = depth
	rec.MaxTotalDepth = depth

	for _, dir := range branchstats.Directions {
		reports := s.QueryBranchingHistory(dir)
		tbl := rec.Table(dir)
		seen := roaring.New()
		for _, rep := range reports {
			if rep.Var < 0 {
				return nil, branchstats.NewCaptureError("history", dir, -1, fmt.Errorf("%w: %d", branchstats.ErrInvalidVar, rep.Var))
			}
			if rep.Branchings < 0 {
				return nil, branchstats.NewCaptureError("history", dir, rep.Var, fmt.Errorf("%w: %d", branchstats.ErrInvalidCount, rep.Branchings))
			}
			if !seen.CheckedAdd(uint32(rep.Var)) {
				return nil, branchstats.NewCaptureError("history", dir, rep.Var, branchstats.ErrDuplicateVar)
			}
			tbl.Put(rep.Var, rep.VarStats)
		}
	}
	return rec, nil
}
