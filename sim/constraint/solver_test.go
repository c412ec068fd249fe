package constraint

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/particle-sim/particle-sim/sim/particle"
	"github.com/particle-sim/particle-sim/sim/sparse"
)

const dt = 0.005

// lineData builds a store with particles of the given masses placed along
// the x axis at the given coordinates, tagged 1..n.
func lineData(t *testing.T, xs, masses []float64) *particle.Data {
	t.Helper()
	d := particle.NewData(len(xs)+4, particle.NewBox(100, 100, 100))
	for i, x := range xs {
		pos := particle.Vec4{X: x}
		vel := particle.Vec4{W: masses[i]}
		require.NoError(t, d.Add(pos, vel, uint32(i+1)))
	}
	return d
}

func zeroForces(d *particle.Data) []particle.Vec4 {
	return make([]particle.Vec4, d.N())
}

func TestSolver_EquilibriumGivesZeroMultiplier(t *testing.T) {
	// GIVEN two particles exactly at the constraint distance, at rest,
	// with no net force
	d := lineData(t, []float64{0, 1}, []float64{1, 2})
	g := NewGroup()
	require.NoError(t, g.Add(1, 2, 1.0))
	s := NewSolver(d, g, dt, particle.NewPool(1))

	// WHEN the constraint system is solved
	require.NoError(t, s.Compute(zeroForces(d)))

	// THEN the multiplier and the constraint forces vanish
	assert.InDelta(t, 0.0, s.lambda[0], 1e-10)
	for i, f := range s.Forces() {
		assert.InDelta(t, 0.0, f.X, 1e-10, "particle %d", i)
		assert.InDelta(t, 0.0, f.Y, 1e-10, "particle %d", i)
		assert.InDelta(t, 0.0, f.Z, 1e-10, "particle %d", i)
	}
}

func TestSolver_StretchedBondPullsBackIn(t *testing.T) {
	// Bond stretched 20% past its target length, equal masses.
	d := lineData(t, []float64{1.2, 0}, []float64{1, 1})
	g := NewGroup()
	require.NoError(t, g.Add(1, 2, 1.0))
	s := NewSolver(d, g, dt, particle.NewPool(1))

	require.NoError(t, s.Compute(zeroForces(d)))

	f := s.Forces()
	// Particle 1 sits at larger x: its restoring force points to -x, and
	// the pair forces cancel exactly for equal masses.
	assert.Negative(t, f[0].X)
	assert.Positive(t, f[1].X)
	assert.InDelta(t, -f[1].X, f[0].X, 1e-12)
	assert.InDelta(t, 0.0, f[0].Y, 1e-15)
	assert.InDelta(t, 0.0, f[0].Z, 1e-15)
}

func TestSolver_TopologyChangeForcesFullFactorization(t *testing.T) {
	d := lineData(t, []float64{0, 1, 2}, []float64{1, 1, 1})
	g := NewGroup()
	require.NoError(t, g.Add(1, 2, 1.0))
	s := NewSolver(d, g, dt, particle.NewPool(1))

	// First solve always takes the full path.
	require.NoError(t, s.Compute(zeroForces(d)))
	assert.Equal(t, 1, s.Stats().FullFactorizations)
	assert.Equal(t, 0, s.Stats().FastRefactorizations)

	// Unchanged topology: fast path.
	require.NoError(t, s.Compute(zeroForces(d)))
	require.NoError(t, s.Compute(zeroForces(d)))
	assert.Equal(t, 1, s.Stats().FullFactorizations)
	assert.Equal(t, 2, s.Stats().FastRefactorizations)

	// Adding a constraint dirties the solver.
	require.NoError(t, g.Add(2, 3, 1.0))
	require.NoError(t, s.Compute(zeroForces(d)))
	assert.Equal(t, 2, s.Stats().FullFactorizations)
}

func TestSolver_RemoveAndReAddStillInvalidates(t *testing.T) {
	// Removing and re-adding an identical constraint leaves the matrix
	// pattern untouched, but invalidation is conservative: the topology
	// version advances and the next solve refactorizes from scratch.
	d := lineData(t, []float64{0, 1, 2}, []float64{1, 1, 1})
	g := NewGroup()
	require.NoError(t, g.Add(1, 2, 1.0))
	require.NoError(t, g.Add(2, 3, 1.0))
	s := NewSolver(d, g, dt, particle.NewPool(1))

	require.NoError(t, s.Compute(zeroForces(d)))
	require.Equal(t, 1, s.Stats().FullFactorizations)

	require.True(t, g.Remove(2, 3))
	require.NoError(t, g.Add(2, 3, 1.0))

	require.NoError(t, s.Compute(zeroForces(d)))
	assert.Equal(t, 2, s.Stats().FullFactorizations)
	assert.Equal(t, 0, s.Stats().FastRefactorizations)
}

func TestSolver_DuplicateConstraintIsSingular(t *testing.T) {
	// Two identical constraints produce two identical matrix rows: a
	// physically degenerate, unrecoverable configuration.
	d := lineData(t, []float64{0, 1}, []float64{1, 1})
	g := NewGroup()
	require.NoError(t, g.Add(1, 2, 1.0))
	require.NoError(t, g.Add(1, 2, 1.0))
	s := NewSolver(d, g, dt, particle.NewPool(1))

	err := s.Compute(zeroForces(d))

	require.Error(t, err)
	assert.True(t, errors.Is(err, sparse.ErrSingular), "want ErrSingular, got %v", err)
}

func TestSolver_UnknownTagIsError(t *testing.T) {
	d := lineData(t, []float64{0, 1}, []float64{1, 1})
	g := NewGroup()
	require.NoError(t, g.Add(1, 99, 1.0))
	s := NewSolver(d, g, dt, particle.NewPool(1))

	assert.Error(t, s.Compute(zeroForces(d)))
}

func TestSolver_NoConstraintsIsNoOp(t *testing.T) {
	d := lineData(t, []float64{0, 1}, []float64{1, 1})
	s := NewSolver(d, NewGroup(), dt, particle.NewPool(1))

	require.NoError(t, s.Compute(zeroForces(d)))

	assert.Zero(t, s.Stats().Solves)
	for _, f := range s.Forces() {
		assert.Equal(t, particle.Vec4{}, f)
	}
}

func TestSolver_SurvivesCompaction(t *testing.T) {
	// Constraints reference tags, so the solve must still work after a
	// migration compaction has shuffled every array index.
	d := lineData(t, []float64{0, 1, 2, 3}, []float64{1, 1, 1, 1})
	g := NewGroup()
	require.NoError(t, g.Add(3, 4, 1.0))
	s := NewSolver(d, g, dt, particle.NewPool(1))
	require.NoError(t, s.Compute(zeroForces(d)))

	// Remove the first two (unconstrained) particles; indexes of 3 and 4 shift.
	status := d.Status()
	status[0] = particle.SendEast
	status[1] = particle.SendEast
	n := d.N()
	keep := make([]bool, n)
	perm := make([]int, n)
	particle.Classify(d.Status(), particle.MigrateMask, keep, particle.NewPool(1))
	var part particle.Partitioner
	k := part.Partition(keep, perm)
	d.Remove(perm, k, make([]particle.TransferElement, 0, n-k))
	require.Equal(t, 2, d.N())

	err := s.Compute(zeroForces(d))

	require.NoError(t, err)
	assert.InDelta(t, 0.0, s.lambda[0], 1e-10)
}

func TestSolver_LargeChainWithWorkers(t *testing.T) {
	// GIVEN a chain long enough that the matrix fill and force writeback
	// kernels fan out across worker goroutines (row and particle counts
	// both above the pool's serial cutoff)
	const n = 2100
	d := particle.NewData(n, particle.NewBox(4200, 10, 10))
	g := NewGroup()
	for i := 0; i < n; i++ {
		pos := particle.Vec4{X: float64(i) - 1000}
		require.NoError(t, d.Add(pos, particle.Vec4{W: 1}, uint32(i+1)))
		if i > 0 {
			require.NoError(t, g.Add(uint32(i), uint32(i+1), 1.0))
		}
	}
	s := NewSolver(d, g, dt, particle.NewPool(8))

	// WHEN the system is solved twice, covering both factorization paths
	require.NoError(t, s.Compute(zeroForces(d)))
	require.NoError(t, s.Compute(zeroForces(d)))

	// THEN the equilibrium chain yields vanishing multipliers and forces
	for i, l := range s.lambda {
		assert.InDelta(t, 0.0, l, 1e-10, "multiplier %d", i)
	}
	for i, f := range s.Forces() {
		assert.InDelta(t, 0.0, f.X, 1e-10, "particle %d", i)
	}
	assert.Equal(t, 1, s.Stats().FullFactorizations)
	assert.Equal(t, 1, s.Stats().FastRefactorizations)
}

func TestNewSolver_ZeroDtPanics(t *testing.T) {
	d := lineData(t, []float64{0}, []float64{1})
	assert.Panics(t, func() { NewSolver(d, NewGroup(), 0, particle.NewPool(1)) })
}

func TestSolver_NetForceLengthMismatch(t *testing.T) {
	d := lineData(t, []float64{0, 1}, []float64{1, 1})
	g := NewGroup()
	require.NoError(t, g.Add(1, 2, 1.0))
	s := NewSolver(d, g, dt, particle.NewPool(1))

	assert.Error(t, s.Compute(make([]particle.Vec4, 1)))
}

func TestSolver_MultiplierMagnitudeMatchesClosedForm(t *testing.T) {
	// Single stretched constraint: A*lambda = rhs has the closed form
	// lambda = ((|q|^2-d^2)/dt^2) / (4*|q|^2*(1/ma+1/mb)) since q == r at
	// zero relative velocity.
	ma, mb := 1.5, 3.0
	sep := 1.25
	target := 1.0
	d := lineData(t, []float64{sep, 0}, []float64{ma, mb})
	g := NewGroup()
	require.NoError(t, g.Add(1, 2, target))
	s := NewSolver(d, g, dt, particle.NewPool(1))

	require.NoError(t, s.Compute(zeroForces(d)))

	q2 := sep * sep
	want := ((q2 - target*target) / (dt * dt)) / (4 * q2 * (1/ma + 1/mb))
	assert.InDelta(t, want, s.lambda[0], math.Abs(want)*1e-12)
}
