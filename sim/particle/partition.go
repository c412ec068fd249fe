// Stream Partitioner: stable two-way partition via a prefix-sum scatter.

package particle

// Partitioner computes stable partition permutations. It owns a reusable
// scan buffer so steady-state partitioning allocates nothing.
type Partitioner struct {
	scan []int
}

// Partition computes the permutation that groups kept particles first and
// removed particles last, preserving relative order within each group
// (a stable two-way partition). perm must have the same length as keep.
//
// perm maps output slot -> source index: the first K entries are the sources
// of kept particles in their original order, the remaining N-K entries the
// sources of removed particles in theirs. Returns K, the kept count.
//
// The permutation is built as a prefix-sum scatter: an exclusive prefix sum
// over the keep predicate gives each kept element its output slot, and the
// complementary exclusive prefix sum, offset by K, gives each removed element
// its slot. For source index i the complementary scan is i - scan[i], so only
// one scan array is materialized.
func (p *Partitioner) Partition(keep []bool, perm []int) int {
	n := len(keep)
	if len(perm) != n {
		panic("particle: Partition keep/perm length mismatch")
	}
	if cap(p.scan) < n {
		p.scan = make([]int, n)
	}
	scan := p.scan[:n]

	// Exclusive prefix sum over the keep predicate.
	sum := 0
	for i := 0; i < n; i++ {
		scan[i] = sum
		if keep[i] {
			sum++
		}
	}
	k := sum

	// Scatter: each source index lands in exactly one output slot.
	for i := 0; i < n; i++ {
		if keep[i] {
			perm[scan[i]] = i
		} else {
			perm[k+i-scan[i]] = i
		}
	}
	return k
}
