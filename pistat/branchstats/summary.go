package branchstats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DirSummary condenses one direction table.
type DirSummary struct {
	Vars               int
	Branchings         int64
	MeanPseudocost     float64 // weighted by branch count
	MeanActivity       float64 // weighted by branch count
	MeanConflictLength float64 // weighted by branch count
	MaxActivity        float64
	Inferences         float64
	Cutoffs            float64
}

// Summary condenses a record for logs and the inspect command.
type Summary struct {
	MaxDepth      int
	MaxTotalDepth int
	Dirs          [2]DirSummary
}

// Summarize computes per-direction aggregates of r.
func Summarize(r *Record) Summary {
	s := Summary{MaxDepth: r.MaxDepth, MaxTotalDepth: r.MaxTotalDepth}
	for _, dir := range Directions {
		s.Dirs[dir] = summarizeTable(r.Table(dir))
	}
	return s
}

func summarizeTable(t *Table) DirSummary {
	n := t.Len()
	ds := DirSummary{Vars: n}
	if n == 0 {
		return ds
	}
	pc := make([]float64, n)
	act := make([]float64, n)
	conf := make([]float64, n)
	w := make([]float64, n)
	for i, e := range t.entries {
		pc[i] = e.Pseudocost
		act[i] = e.Activity
		conf[i] = e.ConflictLength
		w[i] = float64(e.Branchings)
		ds.Branchings += e.Branchings
		ds.Inferences += e.Inferences
		ds.Cutoffs += e.Cutoffs
	}
	// all-zero weights would make every weighted mean NaN
	if ds.Branchings == 0 {
		w = nil
	}
	ds.MeanPseudocost = stat.Mean(pc, w)
	ds.MeanActivity = stat.Mean(act, w)
	ds.MeanConflictLength = stat.Mean(conf, w)
	ds.MaxActivity = floats.Max(act)
	return ds
}

func (s Summary) String() string {
	out := fmt.Sprintf("maxDepth=%d maxTotalDepth=%d", s.MaxDepth, s.MaxTotalDepth)
	for _, dir := range Directions {
		d := s.Dirs[dir]
		out += fmt.Sprintf("\n%-4s vars=%d branchings=%d pseudocost=%.6g activity=%.6g (max %.6g) conflictLength=%.6g inferences=%.6g cutoffs=%.6g",
			dir, d.Vars, d.Branchings, d.MeanPseudocost, d.MeanActivity, d.MaxActivity, d.MeanConflictLength, d.Inferences, d.Cutoffs)
	}
	return out
}
