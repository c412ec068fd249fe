// Holonomic distance constraints and the per-particle incidence table.

package constraint

import "fmt"

// Constraint fixes the distance between two particles, identified by their
// stable tags. The enumeration order matters: the first tag is the "a"
// member, which fixes the sign conventions of the matrix builder and the
// force writeback.
type Constraint struct {
	TagA, TagB uint32
	Distance   float64
}

// Incidence records one endpoint of a constraint at a particle: the
// constraint index and which member the particle is (0 = first, 1 = second).
type Incidence struct {
	Constraint int
	Member     int
}

// Group owns the constraint graph over particle tags. Membership changes
// advance the topology version counter; the solver compares its cached
// version against the current one each step and treats any mismatch as a
// topology change, so no dirty callbacks cross object boundaries. The
// counter always advances, which makes invalidation conservative: removing
// and re-adding an identical constraint still reads as a change.
type Group struct {
	list    []Constraint
	version uint64

	table        map[uint32][]Incidence
	tableBuilt   bool
	tableVersion uint64
}

// NewGroup creates an empty constraint group.
func NewGroup() *Group {
	return &Group{table: make(map[uint32][]Incidence)}
}

// N returns the number of constraints.
func (g *Group) N() int { return len(g.list) }

// At returns constraint i.
func (g *Group) At(i int) Constraint { return g.list[i] }

// TopologyVersion returns the current topology version counter.
func (g *Group) TopologyVersion() uint64 { return g.version }

// Add appends a constraint between two distinct particle tags.
func (g *Group) Add(a, b uint32, distance float64) error {
	if a == b {
		return fmt.Errorf("constraint: self constraint on tag %d", a)
	}
	if distance <= 0 {
		return fmt.Errorf("constraint: distance must be > 0, got %v", distance)
	}
	g.list = append(g.list, Constraint{TagA: a, TagB: b, Distance: distance})
	g.version++
	return nil
}

// Remove deletes the first constraint connecting tags a and b (in either
// orientation) and reports whether one was found.
func (g *Group) Remove(a, b uint32) bool {
	for i, c := range g.list {
		if (c.TagA == a && c.TagB == b) || (c.TagA == b && c.TagB == a) {
			g.list = append(g.list[:i], g.list[i+1:]...)
			g.version++
			return true
		}
	}
	return false
}

// Incident returns the incidence list of the particle with the given tag.
// The returned slice is valid until the next membership change.
func (g *Group) Incident(tag uint32) []Incidence {
	g.ensureTable()
	return g.table[tag]
}

// ensureTable rebuilds the per-particle incidence table if membership has
// changed since it was last built.
func (g *Group) ensureTable() {
	if g.tableBuilt && g.tableVersion == g.version {
		return
	}
	clear(g.table)
	for i, c := range g.list {
		g.table[c.TagA] = append(g.table[c.TagA], Incidence{Constraint: i, Member: 0})
		g.table[c.TagB] = append(g.table[c.TagB], Incidence{Constraint: i, Member: 1})
	}
	g.tableBuilt = true
	g.tableVersion = g.version
}
