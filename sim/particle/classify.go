// Flag Classifier: tags each local particle as kept or removed by testing
// the status word against a bitmask.

package particle

// Classify writes keep[i] = (status[i] & mask) == 0 for every local particle.
// keep must have the same length as status. The kernel is pure: it has no
// side effects beyond the keep array, and every slot is written by exactly
// one goroutine when run through a Pool.
func Classify(status []uint32, mask uint32, keep []bool, pool *Pool) {
	if len(keep) != len(status) {
		panic("particle: Classify keep/status length mismatch")
	}
	pool.Run(len(status), func(start, end int) {
		for i := start; i < end; i++ {
			keep[i] = status[i]&mask == 0
		}
	})
}
