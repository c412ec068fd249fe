// Constraint force solver: dense build, sparse conversion, the dirty/clean
// factorization pipeline, and the Lagrange multiplier force writeback.

package constraint

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/particle-sim/particle-sim/sim/particle"
	"github.com/particle-sim/particle-sim/sim/sparse"
)

// Stats counts the factorization paths the solver has taken. Full
// factorizations run the symbolic analysis from scratch; fast
// refactorizations reuse the symbolic pattern and refresh values only.
type Stats struct {
	FullFactorizations   int
	FastRefactorizations int
	Solves               int
}

// Solver enforces the distance constraints of one Group on one particle
// store. It owns its factorization handle exclusively: Compute must not be
// called concurrently.
type Solver struct {
	data  *particle.Data
	group *Group
	dt    float64
	pool  *particle.Pool

	// Cached topology version; a mismatch with the group forces the full
	// factorization path.
	lastVersion uint64
	haveVersion bool

	// The dense system is rebuilt from scratch every step (positions move
	// every step even when the sparsity pattern does not). Double precision
	// regardless of the working precision of the wider simulation.
	dense  *mat.Dense
	rhs    []float64
	lambda []float64
	geo    geometry

	csr   sparse.Matrix
	fact  *sparse.Factorization
	force []particle.Vec4

	stats Stats
}

// NewSolver creates a solver for the given store, constraint group, and
// timestep. Panics if dt is not positive.
func NewSolver(d *particle.Data, g *Group, dt float64, pool *particle.Pool) *Solver {
	if dt <= 0 {
		panic(fmt.Sprintf("constraint: Solver dt must be > 0, got %v", dt))
	}
	return &Solver{data: d, group: g, dt: dt, pool: pool}
}

// Stats returns the factorization path counters.
func (s *Solver) Stats() Stats { return s.stats }

// Nnz returns the nonzero count of the last converted constraint matrix.
func (s *Solver) Nnz() int { return s.csr.Nnz() }

// Forces returns the constraint force per particle index computed by the
// last Compute call. Indexes are valid only until the next compaction.
func (s *Solver) Forces() []particle.Vec4 { return s.force }

// Compute builds and solves the constraint system for the current particle
// state and writes the resulting constraint forces. netForce is the net
// non-constraint force per particle index.
//
// The pipeline is a strict sequence: matrix build, dense-to-sparse
// conversion, the dirty/clean branch, numeric refactorization, triangular
// solve, force writeback. A zero pivot surfaces as sparse.ErrSingular and is
// unrecoverable.
func (s *Solver) Compute(netForce []particle.Vec4) error {
	nc := s.group.N()
	if len(netForce) != s.data.N() {
		return fmt.Errorf("constraint: netForce length %d, want %d", len(netForce), s.data.N())
	}
	s.resize(nc)
	if nc == 0 {
		return nil
	}

	if err := s.geo.resolve(s.data, s.group); err != nil {
		return err
	}
	// Build the incidence table up front: the parallel kernels below read it
	// concurrently and must not trigger a rebuild.
	s.group.ensureTable()
	s.geo.compute(s.data, s.dt, s.pool)
	s.geo.fill(s.data, s.group, netForce, s.dt, s.dense, s.rhs, s.pool)

	patternChanged := s.csr.FromDense(s.dense)
	dirty := patternChanged || !s.haveVersion || s.lastVersion != s.group.TopologyVersion()

	if dirty {
		logrus.Debugf("constraint solver: matrix pattern changed (n=%d nnz=%d), running full factorization",
			nc, s.csr.Nnz())
		perm := sparse.ReverseCuthillMcKee(&s.csr)
		s.fact = sparse.Analyze(&s.csr, perm)
		s.lastVersion = s.group.TopologyVersion()
		s.haveVersion = true
		s.stats.FullFactorizations++
	} else {
		s.stats.FastRefactorizations++
	}

	if err := s.fact.Refactor(&s.csr); err != nil {
		return fmt.Errorf("constraint solve failed: %w", err)
	}
	s.fact.Solve(s.rhs, s.lambda)
	s.stats.Solves++

	s.writeback()
	return nil
}

// resize adjusts the solver workspaces to the current constraint and
// particle counts, and zeroes the force output.
func (s *Solver) resize(nc int) {
	if s.dense == nil || s.denseOrder() != nc {
		if nc > 0 {
			s.dense = mat.NewDense(nc, nc, nil)
		} else {
			s.dense = nil
		}
		s.rhs = make([]float64, nc)
		s.lambda = make([]float64, nc)
	}
	s.geo.resize(nc)

	n := s.data.N()
	if cap(s.force) < n {
		s.force = make([]particle.Vec4, n)
	}
	s.force = s.force[:n]
	for i := range s.force {
		s.force[i] = particle.Vec4{}
	}
}

func (s *Solver) denseOrder() int {
	r, _ := s.dense.Dims()
	return r
}

// writeback maps the Lagrange multipliers onto per-particle constraint
// forces: the first member of constraint n receives -2*lambda_n*r_n, the
// second +2*lambda_n*r_n. Parallel per particle index, so each force slot
// has exactly one writer.
func (s *Solver) writeback() {
	tag := s.data.Tag()
	s.pool.Run(s.data.N(), func(start, end int) {
		for i := start; i < end; i++ {
			f := &s.force[i]
			for _, inc := range s.group.Incident(tag[i]) {
				scale := 2 * s.lambda[inc.Constraint]
				if inc.Member == 0 {
					scale = -scale
				}
				r := s.geo.r[inc.Constraint]
				f.X += scale * r.x
				f.Y += scale * r.y
				f.Z += scale * r.z
			}
		}
	})
}
