package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
)

type nopCapability struct{ name string }

func (nopCapability) Capture(Instance) (*branchstats.Record, error) { return branchstats.New(), nil }
func (nopCapability) Clone(r *branchstats.Record) *branchstats.Record { return r.Clone() }
func (nopCapability) AccumulateOnto(Instance, *branchstats.Record) error {
	return nil
}

type namedInstance struct {
	Instance
	backend string
}

func (n namedInstance) Backend() string { return n.backend }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("scip", nopCapability{"scip"}))
	require.NoError(t, r.Register("memory", nopCapability{"memory"}))
	require.NoError(t, r.Register("memory", nopCapability{"memory-2"}))

	assert.Equal(t, []string{"memory", "scip"}, r.Backends())

	got, err := r.Lookup("memory")
	require.NoError(t, err)
	assert.Equal(t, nopCapability{"memory-2"}, got, "later registration wins")

	got, err = r.For(namedInstance{backend: "scip"})
	require.NoError(t, err)
	assert.Equal(t, nopCapability{"scip"}, got)

	_, err = r.For(namedInstance{backend: "gurobi"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	assert.Error(t, r.Register("", nopCapability{}))
	assert.Error(t, r.Register("x", nil))
}
