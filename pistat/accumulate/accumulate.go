// Package accumulate folds branching statistics received from other workers
// into a live solver.
package accumulate

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/solver"
)

// AccumulateOnto merges incoming into target's branching history.
//
// For every (direction, var) of incoming the target either adopts the entry
// verbatim, when it has none, or combines both with branchstats.Merge. The
// target's MaxTotalDepth is raised to incoming.MaxTotalDepth when that is
// larger; its MaxDepth is left alone.
//
// The whole update is computed before target is written, and written with a
// single ApplyBranchingHistory call. Any validation error is returned as an
// *branchstats.AccumulationError and leaves target untouched.
func AccumulateOnto(target solver.Instance, incoming *branchstats.Record) error {
	if incoming == nil {
		return &branchstats.AccumulationError{Op: "validate", Err: errors.New("nil record")}
	}
	if err := incoming.Validate(); err != nil {
		return fromInvariant("validate", err)
	}

	update, err := merged(target, incoming)
	if err != nil {
		return err
	}
	if err := target.ApplyBranchingHistory(update); err != nil {
		return &branchstats.AccumulationError{Op: "apply", Err: err}
	}
	return nil
}

// AccumulateColumns checks the parallel-array invariants of c, then
// accumulates it like AccumulateOnto. A column shorter or longer than its
// declared count is rejected before target is read.
func AccumulateColumns(target solver.Instance, c *branchstats.Columnar) error {
	if c == nil {
		return &branchstats.AccumulationError{Op: "columns", Err: errors.New("nil columns")}
	}
	rec, err := branchstats.FromColumns(c)
	if err != nil {
		return fromInvariant("columns", err)
	}
	return AccumulateOnto(target, rec)
}

// merged builds the post-merge entries for every var incoming touches.
func merged(target solver.Instance, incoming *branchstats.Record) (*branchstats.Record, error) {
	update := branchstats.New()
	update.MaxDepth = target.CurrentMaxDepth()
	update.MaxTotalDepth = max(target.MaxTotalDepth(), incoming.MaxTotalDepth)

	for _, dir := range branchstats.Directions {
		in := incoming.Table(dir)
		if in.Len() == 0 {
			continue
		}
		current, err := index(target, dir)
		if err != nil {
			return nil, err
		}
		for _, e := range in.Entries() {
			s := e.VarStats
			if old, ok := current[e.Var]; ok {
				s = branchstats.Merge(old, e.VarStats)
			}
			update.Put(dir, e.Var, s)
		}
	}
	return update, nil
}

// index maps the target's current history for dir by var.
func index(target solver.Instance, dir branchstats.Direction) (map[branchstats.Var]branchstats.VarStats, error) {
	reports := target.QueryBranchingHistory(dir)
	out := make(map[branchstats.Var]branchstats.VarStats, len(reports))
	for _, r := range reports {
		if _, dup := out[r.Var]; dup {
			return nil, branchstats.NewAccumulationError("target", dir, r.Var,
				fmt.Errorf("%w: target history is inconsistent", branchstats.ErrDuplicateVar))
		}
		out[r.Var] = r.VarStats
	}
	return out, nil
}

func fromInvariant(op string, err error) error {
	var inv *branchstats.InvariantError
	if !errors.As(err, &inv) {
		return &branchstats.AccumulationError{Op: op, Err: err}
	}
	if dir, v, ok := inv.Where(); ok {
		return branchstats.NewAccumulationError(op, dir, v, inv.Err)
	}
	return &branchstats.AccumulationError{Op: op, Err: inv.Err}
}
