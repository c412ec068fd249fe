// System orchestration: the per-step migration pipeline across a ring of
// domains, and the constraint solve.

package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/particle-sim/particle-sim/sim/constraint"
	"github.com/particle-sim/particle-sim/sim/particle"
)

// Domain owns one spatial subregion of the box: a slab on the 1-D periodic
// ring along x, with its own particle store and migration scratch buffers.
type Domain struct {
	id     int
	lo, hi float64

	data *particle.Data
	part particle.Partitioner

	keep     []bool
	perm     []int
	out      []particle.TransferElement
	outEast  []particle.TransferElement
	outWest  []particle.TransferElement
	netForce []particle.Vec4
}

// Data exposes the domain's particle store.
func (d *Domain) Data() *particle.Data { return d.data }

// System wires the migration pipeline and the constraint solver into a
// runnable simulation. Domains form a periodic ring along x; each step
// drifts particles, migrates the leavers to their ring neighbors, and, when
// constraints are configured, solves the constraint system and kicks the
// velocities with the resulting forces.
type System struct {
	cfg  *Config
	box  particle.Box
	pool *particle.Pool
	dt   float64

	domains []*Domain
	group   *constraint.Group
	solver  *constraint.Solver

	metrics   Metrics
	telemetry *TelemetryWriter
	step      int64
}

// NewSystem builds the initial particle placement and constraint chains for
// the given configuration. The same seed reproduces the same system.
func NewSystem(cfg *Config, seed int64) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	box := particle.NewBox(cfg.World.BoxX, cfg.World.BoxY, cfg.World.BoxZ)
	s := &System{
		cfg:  cfg,
		box:  box,
		pool: particle.NewPool(cfg.Particles.Workers),
		dt:   cfg.World.DT,
	}

	nd := cfg.World.Domains
	width := cfg.World.BoxX / float64(nd)
	for i := 0; i < nd; i++ {
		s.domains = append(s.domains, &Domain{
			id: i,
			lo: -cfg.World.BoxX/2 + float64(i)*width,
			hi: -cfg.World.BoxX/2 + float64(i+1)*width,
			// Any domain can transiently hold every particle.
			data: particle.NewData(cfg.Particles.Count, box),
		})
	}

	if err := s.placeParticles(seed); err != nil {
		return nil, err
	}
	if cfg.Constraints.Chains > 0 {
		s.group = constraint.NewGroup()
		if err := s.buildChains(); err != nil {
			return nil, err
		}
		s.solver = constraint.NewSolver(s.domains[0].data, s.group, s.dt, s.pool)
	}
	return s, nil
}

// Constraints returns the constraint group, nil when none are configured.
func (s *System) Constraints() *constraint.Group { return s.group }

// Domains returns the domain ring.
func (s *System) Domains() []*Domain { return s.domains }

// Metrics returns the accumulated run counters.
func (s *System) Metrics() *Metrics { return &s.metrics }

// SetTelemetry attaches a per-step CSV writer (nil disables output).
func (s *System) SetTelemetry(w *TelemetryWriter) { s.telemetry = w }

// placeParticles scatters particles uniformly over the box and assigns each
// to the domain owning its x coordinate. Chain particles are laid out at
// exact bond spacing so constrained runs start at equilibrium.
func (s *System) placeParticles(seed int64) error {
	rng := NewPartitionedRNG(seed)
	place := rng.ForSubsystem(SubsystemPlacement)
	veloc := rng.ForSubsystem(SubsystemVelocity)

	cc := &s.cfg.Constraints
	chained := cc.Chains * cc.ChainLength

	tag := uint32(0)
	for c := 0; c < cc.Chains; c++ {
		// A chain starts at a random y/z lane and extends along x at bond
		// spacing, kept away from the box edge so it needs no wrap.
		x0 := -s.cfg.World.BoxX/2 + place.Float64()*(s.cfg.World.BoxX-float64(cc.ChainLength)*cc.BondLength)
		y := (place.Float64() - 0.5) * s.cfg.World.BoxY
		z := (place.Float64() - 0.5) * s.cfg.World.BoxZ
		for j := 0; j < cc.ChainLength; j++ {
			pos := particle.Vec4{X: x0 + float64(j)*cc.BondLength, Y: y, Z: z}
			if err := s.addParticle(pos, particle.Vec4{W: s.cfg.Particles.Mass}, tag); err != nil {
				return err
			}
			tag++
		}
	}

	for i := chained; i < s.cfg.Particles.Count; i++ {
		pos := particle.Vec4{
			X: (place.Float64() - 0.5) * s.cfg.World.BoxX,
			Y: (place.Float64() - 0.5) * s.cfg.World.BoxY,
			Z: (place.Float64() - 0.5) * s.cfg.World.BoxZ,
		}
		ms := s.cfg.Particles.MaxSpeed
		vel := particle.Vec4{
			X: (veloc.Float64()*2 - 1) * ms,
			Y: (veloc.Float64()*2 - 1) * ms,
			Z: (veloc.Float64()*2 - 1) * ms,
			W: s.cfg.Particles.Mass,
		}
		if err := s.addParticle(pos, vel, tag); err != nil {
			return err
		}
		tag++
	}
	return nil
}

// addParticle routes a new particle to the domain owning its x coordinate.
func (s *System) addParticle(pos, vel particle.Vec4, tag uint32) error {
	for _, d := range s.domains {
		if pos.X >= d.lo && pos.X < d.hi {
			return d.data.Add(pos, vel, tag)
		}
	}
	// x == BoxX/2 exactly wraps to the first domain.
	return s.domains[0].data.Add(pos, vel, tag)
}

// buildChains connects consecutive chain particles with distance constraints.
func (s *System) buildChains() error {
	cc := &s.cfg.Constraints
	for c := 0; c < cc.Chains; c++ {
		base := uint32(c * cc.ChainLength)
		for j := 0; j < cc.ChainLength-1; j++ {
			if err := s.group.Add(base+uint32(j), base+uint32(j+1), cc.BondLength); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run advances the system the given number of steps.
func (s *System) Run(steps int) error {
	nc := 0
	if s.group != nil {
		nc = s.group.N()
	}
	logrus.Infof("Running %d steps: %d domains, %d particles, %d constraints",
		steps, len(s.domains), s.cfg.Particles.Count, nc)
	for i := 0; i < steps; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	if s.solver != nil {
		st := s.solver.Stats()
		s.metrics.FullFactorizations = st.FullFactorizations
		s.metrics.FastRefactorizations = st.FastRefactorizations
	}
	logrus.Infof("Run complete: %d particles migrated over %d steps",
		s.metrics.ParticlesMigrated, s.metrics.StepsRun)
	return nil
}

// Step runs one timestep: drift, boundary flagging, the migration pipeline,
// and the constraint solve. The pipeline is a strict sequence per domain:
// classify, partition, compact, exchange, append.
func (s *System) Step() error {
	migrated, err := s.migrate()
	if err != nil {
		return err
	}

	solvePath := "none"
	nnz := 0
	if s.solver != nil {
		before := s.solver.Stats()
		if err := s.solveConstraints(); err != nil {
			return err
		}
		after := s.solver.Stats()
		nnz = s.solver.Nnz()
		switch {
		case after.FullFactorizations > before.FullFactorizations:
			solvePath = "full"
		case after.FastRefactorizations > before.FastRefactorizations:
			solvePath = "fast"
		}
	}

	s.step++
	s.metrics.StepsRun++
	s.metrics.ParticlesMigrated += int64(migrated)
	if migrated > s.metrics.PeakOutbound {
		s.metrics.PeakOutbound = migrated
	}

	if s.telemetry != nil && (s.cfg.Telemetry.Interval <= 1 || s.step%int64(s.cfg.Telemetry.Interval) == 0) {
		total := 0
		for _, d := range s.domains {
			total += d.data.N()
		}
		if err := s.telemetry.Write(StepRecord{
			Step:          s.step,
			Migrated:      migrated,
			LocalTotal:    total,
			ConstraintNnz: nnz,
			SolvePath:     solvePath,
		}); err != nil {
			return err
		}
	}
	return nil
}

// migrate drifts all particles and moves the leavers to their ring
// neighbors, returning the number of migrated particles.
func (s *System) migrate() (int, error) {
	for _, d := range s.domains {
		s.drift(d)
		s.flagLeavers(d)
	}

	migrated := 0
	for _, d := range s.domains {
		n := d.data.N()
		d.keep = resizeBools(d.keep, n)
		d.perm = resizeInts(d.perm, n)

		particle.Classify(d.data.Status(), particle.MigrateMask, d.keep, s.pool)
		k := d.part.Partition(d.keep, d.perm)

		d.out = d.data.Remove(d.perm, k, d.out[:0])
		migrated += len(d.out)

		// Split the packed outbound buffer by direction bit.
		d.outEast = d.outEast[:0]
		d.outWest = d.outWest[:0]
		for _, te := range d.out {
			if te.Status&particle.SendEast != 0 {
				d.outEast = append(d.outEast, te)
			} else {
				d.outWest = append(d.outWest, te)
			}
		}
	}

	// Exchange with ring neighbors after every domain has compacted, so an
	// arriving particle can never be re-examined by this step's classifier.
	nd := len(s.domains)
	for i, d := range s.domains {
		east := s.domains[(i+1)%nd]
		west := s.domains[(i-1+nd)%nd]
		if err := east.data.Append(d.outEast); err != nil {
			return 0, fmt.Errorf("domain %d -> %d: %w", d.id, east.id, err)
		}
		if err := west.data.Append(d.outWest); err != nil {
			return 0, fmt.Errorf("domain %d -> %d: %w", d.id, west.id, err)
		}
	}
	return migrated, nil
}

// drift advances positions by dt*velocity and wraps them into the box.
func (s *System) drift(d *Domain) {
	pos, vel := d.data.Pos(), d.data.Vel()
	dt := s.dt
	box := s.box
	s.pool.Run(d.data.N(), func(start, end int) {
		for i := start; i < end; i++ {
			x := pos[i].X + dt*vel[i].X
			y := pos[i].Y + dt*vel[i].Y
			z := pos[i].Z + dt*vel[i].Z
			pos[i].X, pos[i].Y, pos[i].Z = box.Wrap(x, y, z)
		}
	})
}

// flagLeavers sets the migration direction bit on every particle whose x
// coordinate has left the domain's slab. The minimum-image offset from the
// slab center decides the direction, so crossings of the global periodic
// boundary flag correctly in both directions.
func (s *System) flagLeavers(d *Domain) {
	pos := d.data.Pos()
	status := d.data.Status()
	center := (d.lo + d.hi) / 2
	half := (d.hi - d.lo) / 2
	lx := s.box.Lx
	s.pool.Run(d.data.N(), func(start, end int) {
		for i := start; i < end; i++ {
			dx := pos[i].X - center
			dx -= lx * math.Round(dx/lx)
			switch {
			case dx >= half:
				status[i] |= particle.SendEast
			case dx < -half:
				status[i] |= particle.SendWest
			}
		}
	})
}

// solveConstraints runs the constraint pipeline on domain 0 and kicks the
// velocities with the resulting constraint forces.
func (s *System) solveConstraints() error {
	d := s.domains[0]
	n := d.data.N()
	if cap(d.netForce) < n {
		d.netForce = make([]particle.Vec4, n)
	}
	d.netForce = d.netForce[:n]
	for i := range d.netForce {
		d.netForce[i] = particle.Vec4{}
	}

	if err := s.solver.Compute(d.netForce); err != nil {
		return err
	}

	force := s.solver.Forces()
	vel := d.data.Vel()
	dt := s.dt
	s.pool.Run(n, func(start, end int) {
		for i := start; i < end; i++ {
			inv := dt / vel[i].W
			vel[i].X += inv * force[i].X
			vel[i].Y += inv * force[i].Y
			vel[i].Z += inv * force[i].Z
		}
	})
	return nil
}

// Close flushes and closes the telemetry writer, if any.
func (s *System) Close() error {
	if s.telemetry != nil {
		return s.telemetry.Close()
	}
	return nil
}

func resizeBools(b []bool, n int) []bool {
	if cap(b) < n {
		return make([]bool, n)
	}
	return b[:n]
}

func resizeInts(v []int, n int) []int {
	if cap(v) < n {
		return make([]int, n)
	}
	return v[:n]
}
