// Dense constraint matrix and right-hand-side assembly from current
// particle positions, velocities, and net forces.

package constraint

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/particle-sim/particle-sim/sim/particle"
)

type vec3 struct {
	x, y, z float64
}

func (v vec3) dot(w vec3) float64 {
	return v.x*w.x + v.y*w.y + v.z*w.z
}

// geometry holds the per-constraint vectors recomputed every step:
// endpoint indexes, the minimum-image separation r_n, and the predicted
// separation q_n = r_n + dt * rdot_n.
type geometry struct {
	idxA, idxB []int
	r          []vec3
	q          []vec3
}

func (g *geometry) resize(n int) {
	if cap(g.idxA) < n {
		g.idxA = make([]int, n)
		g.idxB = make([]int, n)
		g.r = make([]vec3, n)
		g.q = make([]vec3, n)
	}
	g.idxA = g.idxA[:n]
	g.idxB = g.idxB[:n]
	g.r = g.r[:n]
	g.q = g.q[:n]
}

// resolve maps constraint tags to current array indexes. Tags are the only
// stable particle identity; indexes must be re-resolved after any compaction.
func (geo *geometry) resolve(d *particle.Data, g *Group) error {
	for n := 0; n < g.N(); n++ {
		c := g.At(n)
		ia, ok := d.IndexOf(c.TagA)
		if !ok {
			return fmt.Errorf("constraint %d references unknown tag %d", n, c.TagA)
		}
		ib, ok := d.IndexOf(c.TagB)
		if !ok {
			return fmt.Errorf("constraint %d references unknown tag %d", n, c.TagB)
		}
		geo.idxA[n] = ia
		geo.idxB[n] = ib
	}
	return nil
}

// compute fills r and q for every constraint. Pure per-constraint kernel:
// each slot is written by exactly one goroutine.
func (geo *geometry) compute(d *particle.Data, dt float64, pool *particle.Pool) {
	pos, vel, box := d.Pos(), d.Vel(), d.Box()
	pool.Run(len(geo.r), func(start, end int) {
		for n := start; n < end; n++ {
			a, b := geo.idxA[n], geo.idxB[n]
			rx, ry, rz := box.MinImage(pos[a].X-pos[b].X, pos[a].Y-pos[b].Y, pos[a].Z-pos[b].Z)
			geo.r[n] = vec3{rx, ry, rz}
			geo.q[n] = vec3{
				rx + dt*(vel[a].X-vel[b].X),
				ry + dt*(vel[a].Y-vel[b].Y),
				rz + dt*(vel[a].Z-vel[b].Z),
			}
		}
	})
}

// fill assembles the dense constraint matrix and right-hand side.
//
// Row n of the matrix is the linearized coupling of constraint n to every
// constraint sharing one of its endpoints: endpoint p contributes
// s1*s2*4*(q_n . r_m)/m_p to cell (n, m), where s1 is +1 iff p is the first
// member of n and s2 is +1 iff p is the first member of m. Contributions are
// summed: the diagonal receives one from each endpoint, and constraints
// sharing both endpoints accumulate both.
//
// Parallelization is per row: the goroutine owning row n writes every cell
// (n, m) and rhs[n] itself, so each matrix cell has exactly one writer. Per
// particle ownership would not give that guarantee; the diagonal cell (n, n)
// alone collects contributions from two different particles.
func (geo *geometry) fill(d *particle.Data, g *Group, netForce []particle.Vec4,
	dt float64, a *mat.Dense, rhs []float64, pool *particle.Pool) {

	tag, vel := d.Tag(), d.Vel()
	nc := g.N()

	pool.Run(nc, func(start, end int) {
		for n := start; n < end; n++ {
			row := a.RawRowView(n)
			for j := range row {
				row[j] = 0
			}
			c := g.At(n)
			qn := geo.q[n]

			for side, p := range [2]int{geo.idxA[n], geo.idxB[n]} {
				s1 := 1.0
				if side == 1 {
					s1 = -1.0
				}
				mass := vel[p].W
				for _, inc := range g.Incident(tag[p]) {
					s2 := 1.0
					if inc.Member == 1 {
						s2 = -1.0
					}
					row[inc.Constraint] += s1 * s2 * 4 * qn.dot(geo.r[inc.Constraint]) / mass
				}
			}

			ia, ib := geo.idxA[n], geo.idxB[n]
			ma, mb := vel[ia].W, vel[ib].W
			fdiff := vec3{
				netForce[ia].X/ma - netForce[ib].X/mb,
				netForce[ia].Y/ma - netForce[ib].Y/mb,
				netForce[ia].Z/ma - netForce[ib].Z/mb,
			}
			rhs[n] = (qn.dot(qn)-c.Distance*c.Distance)/(dt*dt) + 2*qn.dot(fdiff)
		}
	})
}
