// Package memsolver is an in-memory solver that keeps the branching history a
// branch-and-bound search would accumulate. It backs the CLI and the tests,
// and doubles as the reference for what a real backend must expose.
package memsolver

import (
	"fmt"
	"sync"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
)

// BackendName identifies this solver in a solver.Registry.
const BackendName = "memory"

// Solver records branching history per direction and variable.
type Solver struct {
	mu sync.RWMutex

	maxDepth      int // current run, probing excluded
	maxTotalDepth int // over every run and every absorbed record
	history       [2]*branchstats.Table

	activityInc   float64 // amount to bump activity with
	activityDecay float64
}

// New returns a solver with no history.
func New() *Solver {
	return &Solver{
		history:       [2]*branchstats.Table{branchstats.NewTable(0), branchstats.NewTable(0)},
		activityInc:   1.0,
		activityDecay: 0.95,
	}
}

// FromRecord returns a solver whose history is exactly rec.
func FromRecord(rec *branchstats.Record) (*Solver, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	s := New()
	s.maxDepth = rec.MaxDepth
	s.maxTotalDepth = rec.MaxTotalDepth
	for _, dir := range branchstats.Directions {
		for _, e := range rec.Table(dir).Entries() {
			s.history[dir].Put(e.Var, e.VarStats)
		}
	}
	return s, nil
}

func (s *Solver) Backend() string { return BackendName }

func (s *Solver) CurrentMaxDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxDepth
}

func (s *Solver) MaxTotalDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxTotalDepth
}

// QueryBranchingHistory reports dir's history in first-branched order.
func (s *Solver) QueryBranchingHistory(dir branchstats.Direction) []branchstats.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[dir].Entries()
	out := make([]branchstats.Report, len(entries))
	copy(out, entries)
	return out
}

// ApplyBranchingHistory overwrites the entries present in rec. rec is
// validated before the lock is taken, so a bad record changes nothing.
func (s *Solver) ApplyBranchingHistory(rec *branchstats.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dir := range branchstats.Directions {
		for _, e := range rec.Table(dir).Entries() {
			s.history[dir].Put(e.Var, e.VarStats)
		}
	}
	if rec.MaxTotalDepth > s.maxTotalDepth {
		s.maxTotalDepth = rec.MaxTotalDepth
	}
	return nil
}

// Snapshot copies the whole state, total depth included, into a record.
func (s *Solver) Snapshot() *branchstats.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := branchstats.New()
	rec.MaxDepth = s.maxDepth
	rec.MaxTotalDepth = s.maxTotalDepth
	for _, dir := range branchstats.Directions {
		for _, e := range s.history[dir].Entries() {
			rec.Put(dir, e.Var, e.VarStats)
		}
	}
	return rec
}

// Stats returns the history of (dir, v).
func (s *Solver) Stats(dir branchstats.Direction, v branchstats.Var) (branchstats.VarStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[dir].Get(v)
}

// Branch records one branching on v in dir at the given node depth. gain is
// the observed objective change per unit, folded into the pseudocost as a
// running average; the activity is bumped VSIDS style.
func (s *Solver) Branch(dir branchstats.Direction, v branchstats.Var, gain float64, depth int) error {
	if !dir.Valid() {
		return fmt.Errorf("invalid direction %d", dir)
	}
	if v < 0 {
		return fmt.Errorf("%w: %d", branchstats.ErrInvalidVar, v)
	}
	if err := branchstats.CheckDepth(int64(depth)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, _ := s.history[dir].Get(v)
	n := float64(st.Branchings)
	st.Pseudocost = (st.Pseudocost*n)/(n+1) + gain/(n+1)
	st.Branchings++
	st.Activity += s.activityInc
	s.history[dir].Put(v, st)
	if st.Activity > 1e100 {
		s.rescale()
	}

	if depth > s.maxDepth {
		s.maxDepth = depth
	}
	if depth > s.maxTotalDepth {
		s.maxTotalDepth = depth
	}
	return nil
}

// Conflict folds a learned conflict of the given length into v's score.
func (s *Solver) Conflict(dir branchstats.Direction, v branchstats.Var, length float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.history[dir].Get(v)
	if !ok || st.Branchings == 0 {
		return
	}
	n := float64(st.Branchings)
	st.ConflictLength = st.ConflictLength + (length-st.ConflictLength)/n
	s.history[dir].Put(v, st)
}

// Infer adds n domain propagations caused by branching v in dir.
func (s *Solver) Infer(dir branchstats.Direction, v branchstats.Var, n float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.history[dir].Get(v)
	if !ok {
		return
	}
	st.Inferences += n
	s.history[dir].Put(v, st)
}

// Cutoff records that branching v in dir cut off a subtree.
func (s *Solver) Cutoff(dir branchstats.Direction, v branchstats.Var) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.history[dir].Get(v)
	if !ok {
		return
	}
	st.Cutoffs++
	s.history[dir].Put(v, st)
}

// DecayActivity ages every activity score by raising the bump increment.
func (s *Solver) DecayActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activityInc *= 1 / s.activityDecay
	if s.activityInc > 1e100 {
		s.rescale()
	}
}

// Restart begins a new run: the current depth resets, the total depth stays.
func (s *Solver) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxDepth = 0
}

// rescale keeps activities finite. Caller holds mu.
func (s *Solver) rescale() {
	for _, dir := range branchstats.Directions {
		entries := s.history[dir].Entries()
		for i := range entries {
			entries[i].Activity *= 1e-100
		}
	}
	s.activityInc *= 1e-100
}
