package branchstats

import "fmt"

// Columns is the parallel-array layout of one direction. It is the shape
// foreign backends and the older per-statistic array layout use.
type Columns struct {
	Count int // declared number of variables

	// Core columns (same length as Count, same index correspondence)
	VarIndex       []Var
	BranchCount    []int64
	Pseudocost     []float64
	Activity       []float64
	ConflictLength []float64
	Inferences     []float64
	Cutoffs        []float64
}

// Columnar is a whole record in parallel-array layout.
type Columnar struct {
	MaxDepth      int
	MaxTotalDepth int
	Dirs          [2]Columns // indexed by Direction
}

// Columns converts r into columnar layout. The result shares no memory with r.
func (r *Record) Columns() *Columnar {
	c := &Columnar{MaxDepth: r.MaxDepth, MaxTotalDepth: r.MaxTotalDepth}
	for _, dir := range Directions {
		entries := r.Table(dir).entries
		n := len(entries)
		cols := Columns{
			Count:          n,
			VarIndex:       make([]Var, n),
			BranchCount:    make([]int64, n),
			Pseudocost:     make([]float64, n),
			Activity:       make([]float64, n),
			ConflictLength: make([]float64, n),
			Inferences:     make([]float64, n),
			Cutoffs:        make([]float64, n),
		}
		for i, e := range entries {
			cols.VarIndex[i] = e.Var
			cols.BranchCount[i] = e.Branchings
			cols.Pseudocost[i] = e.Pseudocost
			cols.Activity[i] = e.Activity
			cols.ConflictLength[i] = e.ConflictLength
			cols.Inferences[i] = e.Inferences
			cols.Cutoffs[i] = e.Cutoffs
		}
		c.Dirs[dir] = cols
	}
	return c
}

// Check verifies that every column has exactly Count entries.
func (c *Columns) Check() error {
	lengths := []struct {
		name string
		n    int
	}{
		{"varIndex", len(c.VarIndex)},
		{"branchCount", len(c.BranchCount)},
		{"pseudocost", len(c.Pseudocost)},
		{"activity", len(c.Activity)},
		{"conflictLength", len(c.ConflictLength)},
		{"inferences", len(c.Inferences)},
		{"cutoffs", len(c.Cutoffs)},
	}
	if c.Count < 0 {
		return fmt.Errorf("%w: count %d", ErrLengthMismatch, c.Count)
	}
	for _, l := range lengths {
		if l.n != c.Count {
			return fmt.Errorf("%w: count %d, %s has %d", ErrLengthMismatch, c.Count, l.name, l.n)
		}
	}
	return nil
}

// FromColumns validates c and builds a Record from it. Nothing is built when
// any direction violates the length invariant or repeats a variable; the
// error is an *InvariantError.
func FromColumns(c *Columnar) (*Record, error) {
	if err := checkDepths(c.MaxDepth, c.MaxTotalDepth); err != nil {
		return nil, err
	}
	for _, dir := range Directions {
		if err := c.Dirs[dir].Check(); err != nil {
			return nil, invariant(dir, -1, err)
		}
	}
	r := &Record{MaxDepth: c.MaxDepth, MaxTotalDepth: c.MaxTotalDepth}
	for _, dir := range Directions {
		cols := &c.Dirs[dir]
		t := NewTable(cols.Count)
		for i := 0; i < cols.Count; i++ {
			v := cols.VarIndex[i]
			if v < 0 {
				return nil, invariant(dir, -1, fmt.Errorf("%w: %d", ErrInvalidVar, v))
			}
			if cols.BranchCount[i] < 0 {
				return nil, invariant(dir, v, fmt.Errorf("%w: %d", ErrInvalidCount, cols.BranchCount[i]))
			}
			if !t.Put(v, VarStats{
				Branchings:     cols.BranchCount[i],
				Pseudocost:     cols.Pseudocost[i],
				Activity:       cols.Activity[i],
				ConflictLength: cols.ConflictLength[i],
				Inferences:     cols.Inferences[i],
				Cutoffs:        cols.Cutoffs[i],
			}) {
				return nil, invariant(dir, v, ErrDuplicateVar)
			}
		}
		r.tables[dir] = t
	}
	return r, nil
}
