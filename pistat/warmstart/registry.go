// Package warmstart wires capture, transfer and accumulation into a service
// that shares branching statistics across the workers of one solve.
package warmstart

import (
	"github.com/ZanzyTHEbar/pistat/pistat/accumulate"
	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/capture"
	"github.com/ZanzyTHEbar/pistat/pistat/solver"
	"github.com/ZanzyTHEbar/pistat/pistat/solver/memsolver"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

// Standard is the transfer capability of any backend that exposes its
// history through solver.Instance.
type Standard struct{}

func (Standard) Capture(s solver.Instance) (*branchstats.Record, error) {
	return capture.Capture(s)
}

func (Standard) Clone(rec *branchstats.Record) *branchstats.Record {
	return transfer.Clone(rec)
}

func (Standard) AccumulateOnto(target solver.Instance, incoming *branchstats.Record) error {
	return accumulate.AccumulateOnto(target, incoming)
}

// DefaultRegistry returns a registry with every built-in backend.
func DefaultRegistry() *solver.Registry {
	reg := solver.NewRegistry()
	if err := reg.Register(memsolver.BackendName, Standard{}); err != nil {
		panic(err)
	}
	return reg
}
