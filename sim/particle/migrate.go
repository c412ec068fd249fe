// Compactor/Migrator: rewrites the local arrays through the partition
// permutation, packing departures into transfer elements, and appends
// arrivals from neighbor domains.

package particle

import "fmt"

// TransferElement is the self-contained wire record for one migrating
// particle. It carries no array index, so it survives any compaction on
// either side of the exchange.
type TransferElement struct {
	Pos    Vec4
	Vel    Vec4
	Tag    uint32
	Status uint32
}

// Remove rewrites the particle arrays through the partition permutation:
// sources landing in slots < k are gathered into the inactive backing buffer,
// sources landing in slots >= k are packed into transfer elements at slot-k
// and appended to out. The buffer selector then flips, the local count drops
// to k, and the tag lookup table is rebuilt.
//
// The gather writes each destination slot exactly once and never aliases its
// source, because source and destination live in different backing buffers.
// perm must be the permutation produced by Partitioner.Partition for the
// current arrays; out must have capacity for N-k more elements (the caller
// sizes it, Remove does not re-validate).
func (d *Data) Remove(perm []int, k int, out []TransferElement) []TransferElement {
	if len(perm) != d.n {
		panic(fmt.Sprintf("particle: Remove permutation length %d, want %d", len(perm), d.n))
	}
	src := &d.buf[d.active]
	dst := &d.buf[1-d.active]

	for slot, i := range perm {
		if slot < k {
			dst.pos[slot] = src.pos[i]
			dst.vel[slot] = src.vel[i]
			dst.tag[slot] = src.tag[i]
			dst.status[slot] = src.status[i]
		} else {
			out = append(out, TransferElement{
				Pos:    src.pos[i],
				Vel:    src.vel[i],
				Tag:    src.tag[i],
				Status: src.status[i],
			})
		}
	}

	d.active = 1 - d.active
	d.n = k
	d.rebuildRTag()
	return out
}

// Append merges incoming transfer elements onto the end of the local arrays,
// clearing the migration direction bits of each status word on write: the
// particle has arrived and must not be re-flagged for the same migration
// event. Entry j lands at index N+j; no slot is written twice.
func (d *Data) Append(in []TransferElement) error {
	if d.n+len(in) > d.capacity {
		return fmt.Errorf("particle: append of %d overflows store (%d/%d used)",
			len(in), d.n, d.capacity)
	}
	b := &d.buf[d.active]
	for j, te := range in {
		i := d.n + j
		b.pos[i] = te.Pos
		b.vel[i] = te.Vel
		b.tag[i] = te.Tag
		b.status[i] = te.Status &^ MigrateMask
		d.rtag[te.Tag] = i
	}
	d.n += len(in)
	return nil
}
