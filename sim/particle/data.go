// SoA particle store with double-buffered backing arrays and the
// tag -> index reverse lookup table.

package particle

import "fmt"

// buffers is one of the two fixed-capacity backing stores for the particle
// arrays. The Compactor gathers into the inactive buffer and flips the
// selector, so source and destination never alias during a rewrite.
type buffers struct {
	pos    []Vec4
	vel    []Vec4
	tag    []uint32
	status []uint32
}

func newBuffers(capacity int) buffers {
	return buffers{
		pos:    make([]Vec4, capacity),
		vel:    make([]Vec4, capacity),
		tag:    make([]uint32, capacity),
		status: make([]uint32, capacity),
	}
}

// Data holds the particle records of one domain in structure-of-arrays
// layout. The array index of a record is unstable: it changes whenever a
// compaction or append occurs. Stable references go through the particle tag,
// resolved with IndexOf. Never retain a raw index or a raw array slice across
// a Remove or Append call.
type Data struct {
	capacity int
	n        int
	active   int
	buf      [2]buffers
	box      Box
	rtag     map[uint32]int
}

// NewData creates an empty particle store with fixed capacity.
// Panics if capacity is not positive.
func NewData(capacity int, box Box) *Data {
	if capacity <= 0 {
		panic(fmt.Sprintf("particle: Data capacity must be > 0, got %d", capacity))
	}
	return &Data{
		capacity: capacity,
		buf:      [2]buffers{newBuffers(capacity), newBuffers(capacity)},
		box:      box,
		rtag:     make(map[uint32]int, capacity),
	}
}

// N returns the current local particle count.
func (d *Data) N() int { return d.n }

// Capacity returns the fixed capacity of the backing buffers.
func (d *Data) Capacity() int { return d.capacity }

// Box returns the periodic box the particles live in.
func (d *Data) Box() Box { return d.box }

// Pos returns the active position array, valid until the next compaction.
func (d *Data) Pos() []Vec4 { return d.buf[d.active].pos[:d.n] }

// Vel returns the active velocity array, valid until the next compaction.
func (d *Data) Vel() []Vec4 { return d.buf[d.active].vel[:d.n] }

// Tag returns the active tag array, valid until the next compaction.
func (d *Data) Tag() []uint32 { return d.buf[d.active].tag[:d.n] }

// Status returns the active status array, valid until the next compaction.
func (d *Data) Status() []uint32 { return d.buf[d.active].status[:d.n] }

// IndexOf resolves a particle tag to its current array index.
func (d *Data) IndexOf(tag uint32) (int, bool) {
	i, ok := d.rtag[tag]
	return i, ok
}

// Add inserts a new particle record at the end of the local arrays.
// The tag must be unique within this store.
func (d *Data) Add(pos, vel Vec4, tag uint32) error {
	if d.n == d.capacity {
		return fmt.Errorf("particle: store full (capacity %d)", d.capacity)
	}
	if _, dup := d.rtag[tag]; dup {
		return fmt.Errorf("particle: duplicate tag %d", tag)
	}
	b := &d.buf[d.active]
	b.pos[d.n] = pos
	b.vel[d.n] = vel
	b.tag[d.n] = tag
	b.status[d.n] = 0
	d.rtag[tag] = d.n
	d.n++
	return nil
}

// rebuildRTag regenerates the tag -> index table from the active tag array.
func (d *Data) rebuildRTag() {
	clear(d.rtag)
	b := &d.buf[d.active]
	for i := 0; i < d.n; i++ {
		d.rtag[b.tag[i]] = i
	}
}
