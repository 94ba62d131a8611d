package capture

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/solver/memsolver"
)

// scriptedSolver hands out fixed reports, including ones a real solver
// should never produce.
type scriptedSolver struct {
	depth   int
	total   int
	reports [2][]branchstats.Report
	queries int
}

func (s *scriptedSolver) Backend() string      { return "scripted" }
func (s *scriptedSolver) CurrentMaxDepth() int { return s.depth }
func (s *scriptedSolver) MaxTotalDepth() int   { return s.total }
func (s *scriptedSolver) QueryBranchingHistory(dir branchstats.Direction) []branchstats.Report {
	s.queries++
	return s.reports[dir]
}
func (s *scriptedSolver) ApplyBranchingHistory(*branchstats.Record) error {
	panic("capture must not write to the solver")
}

func TestCaptureFromMemSolver(t *testing.T) {
	s := memsolver.New()
	require.NoError(t, s.Branch(branchstats.Down, 4, 2.0, 3))
	require.NoError(t, s.Branch(branchstats.Down, 4, 4.0, 5))
	require.NoError(t, s.Branch(branchstats.Down, 1, 1.0, 2))
	require.NoError(t, s.Branch(branchstats.Up, 4, 0.5, 7))
	s.Infer(branchstats.Down, 4, 3)
	s.Cutoff(branchstats.Up, 4)

	rec, err := Capture(s)
	require.NoError(t, err)

	assert.Equal(t, 7, rec.MaxDepth)
	assert.Equal(t, 7, rec.MaxTotalDepth)
	assert.Equal(t, 2, rec.Count(branchstats.Down))
	assert.Equal(t, 1, rec.Count(branchstats.Up))
	assert.Equal(t, []branchstats.Var{4, 1}, rec.Table(branchstats.Down).Vars())

	down4, ok := rec.Get(branchstats.Down, 4)
	require.True(t, ok)
	assert.Equal(t, int64(2), down4.Branchings)
	assert.InDelta(t, 3.0, down4.Pseudocost, 1e-12)
	assert.Equal(t, 3.0, down4.Inferences)

	up4, _ := rec.Get(branchstats.Up, 4)
	assert.Equal(t, 1.0, up4.Cutoffs)
}

func TestCaptureIgnoresPriorTotalDepth(t *testing.T) {
	s := &scriptedSolver{depth: 4, total: 40}
	rec, err := Capture(s)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.MaxTotalDepth)
	assert.True(t, rec.IsEmpty())
	assert.Equal(t, 2, s.queries, "each direction is queried once")
}

func TestCaptureRejects(t *testing.T) {
	tests := []struct {
		name    string
		solver  *scriptedSolver
		wantErr error
		wantDir branchstats.Direction
		wantVar branchstats.Var
	}{
		{
			name: "duplicate down var",
			solver: &scriptedSolver{reports: [2][]branchstats.Report{
				{{Var: 5, VarStats: branchstats.VarStats{Branchings: 1}}, {Var: 5, VarStats: branchstats.VarStats{Branchings: 2}}},
			}},
			wantErr: branchstats.ErrDuplicateVar,
			wantDir: branchstats.Down,
			wantVar: 5,
		},
		{
			name: "duplicate up var",
			solver: &scriptedSolver{reports: [2][]branchstats.Report{
				{{Var: 5, VarStats: branchstats.VarStats{Branchings: 1}}},
				{{Var: 2}, {Var: 3}, {Var: 2}},
			}},
			wantErr: branchstats.ErrDuplicateVar,
			wantDir: branchstats.Up,
			wantVar: 2,
		},
		{
			name: "negative branch count",
			solver: &scriptedSolver{reports: [2][]branchstats.Report{
				nil,
				{{Var: 8, VarStats: branchstats.VarStats{Branchings: -2}}},
			}},
			wantErr: branchstats.ErrInvalidCount,
			wantDir: branchstats.Up,
			wantVar: 8,
		},
		{
			name: "negative var",
			solver: &scriptedSolver{reports: [2][]branchstats.Report{
				{{Var: -1}},
			}},
			wantErr: branchstats.ErrInvalidVar,
			wantDir: branchstats.Down,
			wantVar: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Capture(tt.solver)
			require.Error(t, err)
			assert.Nil(t, rec)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var ce *branchstats.CaptureError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.wantDir, ce.Dir)
			assert.Equal(t, tt.wantVar, ce.Var)
		})
	}
}

func TestCaptureNegativeDepth(t *testing.T) {
	_, err := Capture(&scriptedSolver{depth: -1})
	var ce *branchstats.CaptureError
	require.True(t, errors.As(err, &ce))
	assert.True(t, errors.Is(err, branchstats.ErrInvalidDepth))
}

func TestCaptureDoesNotAliasSolver(t *testing.T) {
	s := memsolver.New()
	require.NoError(t, s.Branch(branchstats.Up, 3, 1.0, 1))

	rec, err := Capture(s)
	require.NoError(t, err)
	rec.Table(branchstats.Up).Entries()[0].Pseudocost = 42

	st, _ := s.Stats(branchstats.Up, 3)
	assert.Equal(t, 1.0, st.Pseudocost)
}

func TestCaptureDepthAboveLimit(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("int cannot hold a depth above the limit")
	}
	_, err := Capture(&scriptedSolver{depth: int(int64(branchstats.MaxDepthLimit) + 1)})
	var ce *branchstats.CaptureError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, branchstats.ErrDepthOutOfRange)
}
