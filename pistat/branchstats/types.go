package branchstats

import "fmt"

// Var is the index of a problem variable inside one solver instance.
// Indices are non-negative and fit in 32 bits, which is also their wire width.
type Var = int32

// Direction is the branching direction a statistic was recorded for.
type Direction uint8

const (
	Down Direction = iota
	Up
)

// Directions lists both directions in wire order.
var Directions = [2]Direction{Down, Up}

func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Valid reports whether d is Down or Up.
func (d Direction) Valid() bool {
	return d == Down || d == Up
}

// VarStats is the branching history of one variable in one direction.
type VarStats struct {
	Branchings     int64   // number of times the var was branched this way
	Pseudocost     float64 // objective gain estimate per unit change
	Activity       float64 // VSIDS-style score
	ConflictLength float64 // conflict length score
	Inferences     float64 // inference counter
	Cutoffs        float64 // cutoff counter
}

// Entry ties a VarStats tuple to its variable.
type Entry struct {
	Var Var
	VarStats
}

// Report is one (var, stats) pair as a solver hands it out. Solvers may
// misbehave and report a var twice; capture is what rejects that.
type Report = Entry
