package solver

import (
	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
)

// Instance is the view a live solver exposes over its branching history.
// It is owned by one worker; callers must not share it across workers.
type Instance interface {
	// Backend names the solver implementation, e.g. "memory" or "scip".
	Backend() string

	// CurrentMaxDepth is the deepest node of the current run, probing excluded.
	CurrentMaxDepth() int

	// MaxTotalDepth is the deepest node over every run absorbed so far.
	MaxTotalDepth() int

	// QueryBranchingHistory reports every variable branched at least once in
	// dir together with its statistics.
	QueryBranchingHistory(dir branchstats.Direction) []branchstats.Report

	// ApplyBranchingHistory overwrites the statistics of every (direction, var)
	// present in rec and raises MaxTotalDepth to rec.MaxTotalDepth. Entries
	// absent from rec and the instance's own MaxDepth are left alone. It must
	// apply all of rec or none of it.
	ApplyBranchingHistory(rec *branchstats.Record) error
}

// Transferable is the statistics-transfer capability of one backend.
type Transferable interface {
	Capture(s Instance) (*branchstats.Record, error)
	Clone(rec *branchstats.Record) *branchstats.Record
	AccumulateOnto(target Instance, incoming *branchstats.Record) error
}
