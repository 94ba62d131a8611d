package branchstats

import (
	"fmt"
	"math"
	"strings"
)

// Table holds the statistics of one branching direction as aligned
// (var, stats) tuples. Entry order is insertion order; it is stable but carries
// no meaning outside the table.
type Table struct {
	entries []Entry
	pos     map[Var]int // var -> index into entries
}

// NewTable returns an empty table with room for n entries.
func NewTable(n int) *Table {
	return &Table{
		entries: make([]Entry, 0, n),
		pos:     make(map[Var]int, n),
	}
}

// Len is the number of variables with recorded statistics.
func (t *Table) Len() int { return len(t.entries) }

// Get returns the statistics recorded for v.
func (t *Table) Get(v Var) (VarStats, bool) {
	i, ok := t.pos[v]
	if !ok {
		return VarStats{}, false
	}
	return t.entries[i].VarStats, true
}

// Has reports whether v has an entry.
func (t *Table) Has(v Var) bool {
	_, ok := t.pos[v]
	return ok
}

// Put records s for v, replacing any existing entry in place.
// It reports whether v was new.
func (t *Table) Put(v Var, s VarStats) bool {
	if i, ok := t.pos[v]; ok {
		t.entries[i].VarStats = s
		return false
	}
	if t.pos == nil {
		t.pos = make(map[Var]int)
	}
	t.pos[v] = len(t.entries)
	t.entries = append(t.entries, Entry{Var: v, VarStats: s})
	return true
}

// Entries exposes the table's tuples. The slice is owned by the table;
// writes through it are visible to the table but must not change Var.
func (t *Table) Entries() []Entry { return t.entries }

// Vars returns the var indices in entry order.
func (t *Table) Vars() []Var {
	out := make([]Var, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Var
	}
	return out
}

func (t *Table) clone() *Table {
	c := &Table{
		entries: make([]Entry, len(t.entries)),
		pos:     make(map[Var]int, len(t.entries)),
	}
	copy(c.entries, t.entries)
	for v, i := range t.pos {
		c.pos[v] = i
	}
	return c
}

// Record is the branching history captured from one solve. It owns both
// direction tables exclusively; use Clone to hand a copy to another owner.
type Record struct {
	MaxDepth      int // deepest node of the current run, probing excluded
	MaxTotalDepth int // deepest node over every run absorbed into this record

	tables [2]*Table
}

// New returns an empty record.
func New() *Record {
	return &Record{tables: [2]*Table{NewTable(0), NewTable(0)}}
}

// Table returns the table for dir. It panics on an invalid direction.
func (r *Record) Table(dir Direction) *Table {
	if !dir.Valid() {
		panic(fmt.Sprintf("branchstats: invalid direction %d", dir))
	}
	if r.tables[dir] == nil {
		r.tables[dir] = NewTable(0)
	}
	return r.tables[dir]
}

// Count is the number of variables with statistics for dir.
func (r *Record) Count(dir Direction) int { return r.Table(dir).Len() }

// Put records s for (dir, v).
func (r *Record) Put(dir Direction, v Var, s VarStats) bool {
	return r.Table(dir).Put(v, s)
}

// Get returns the statistics recorded for (dir, v).
func (r *Record) Get(dir Direction, v Var) (VarStats, bool) {
	return r.Table(dir).Get(v)
}

// GetMaxDepth returns the deepest node reached in the captured run.
func (r *Record) GetMaxDepth() int { return r.MaxDepth }

// IsEmpty reports whether neither direction has statistics.
func (r *Record) IsEmpty() bool {
	return r.Count(Down) == 0 && r.Count(Up) == 0
}

// Clone returns a deep copy sharing no memory with r.
func (r *Record) Clone() *Record {
	c := &Record{MaxDepth: r.MaxDepth, MaxTotalDepth: r.MaxTotalDepth}
	for _, dir := range Directions {
		c.tables[dir] = r.Table(dir).clone()
	}
	return c
}

// Validate checks the record-level invariants: non-negative depths, and per
// direction non-negative var indices and branch counts with every var present
// once. The returned error is an *InvariantError.
func (r *Record) Validate() error {
	if err := checkDepths(r.MaxDepth, r.MaxTotalDepth); err != nil {
		return err
	}
	for _, dir := range Directions {
		t := r.Table(dir)
		if len(t.pos) != len(t.entries) {
			return invariant(dir, -1, fmt.Errorf("%w: %d entries, %d indexed", ErrDuplicateVar, len(t.entries), len(t.pos)))
		}
		for i, e := range t.entries {
			if e.Var < 0 {
				return invariant(dir, -1, fmt.Errorf("%w: %d", ErrInvalidVar, e.Var))
			}
			if e.Branchings < 0 {
				return invariant(dir, e.Var, fmt.Errorf("%w: %d", ErrInvalidCount, e.Branchings))
			}
			if j, ok := t.pos[e.Var]; !ok || j != i {
				return invariant(dir, e.Var, ErrDuplicateVar)
			}
		}
	}
	return nil
}

// Equal reports whether r and o hold the same depths and the same entries in
// the same order. Floats compare bit for bit, so NaN equals an identical NaN.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.MaxDepth != o.MaxDepth || r.MaxTotalDepth != o.MaxTotalDepth {
		return false
	}
	for _, dir := range Directions {
		a, b := r.Table(dir).entries, o.Table(dir).entries
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !sameEntry(a[i], b[i]) {
				return false
			}
		}
	}
	return true
}

func sameEntry(a, b Entry) bool {
	return a.Var == b.Var &&
		a.Branchings == b.Branchings &&
		math.Float64bits(a.Pseudocost) == math.Float64bits(b.Pseudocost) &&
		math.Float64bits(a.Activity) == math.Float64bits(b.Activity) &&
		math.Float64bits(a.ConflictLength) == math.Float64bits(b.ConflictLength) &&
		math.Float64bits(a.Inferences) == math.Float64bits(b.Inferences) &&
		math.Float64bits(a.Cutoffs) == math.Float64bits(b.Cutoffs)
}

// String renders the record for debugging.
func (r *Record) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "record maxDepth=%d maxTotalDepth=%d", r.MaxDepth, r.MaxTotalDepth)
	for _, dir := range Directions {
		t := r.Table(dir)
		fmt.Fprintf(&sb, "\n  %s (%d):", dir, t.Len())
		for _, e := range t.entries {
			fmt.Fprintf(&sb, "\n    x%d n=%d pc=%g act=%g conf=%g inf=%g cut=%g",
				e.Var, e.Branchings, e.Pseudocost, e.Activity, e.ConflictLength, e.Inferences, e.Cutoffs)
		}
	}
	return sb.String()
}
