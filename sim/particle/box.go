// Orthorhombic periodic simulation box and the minimum-image convention.

package particle

import "math"

// Vec4 is a packed 4-wide particle record: three spatial components plus one
// auxiliary scalar (the type code for positions, the mass for velocities).
type Vec4 struct {
	X, Y, Z, W float64
}

// Box is an orthorhombic periodic simulation box centered on the origin.
type Box struct {
	Lx, Ly, Lz float64
}

// NewBox creates a periodic box with the given edge lengths.
// Panics if any edge length is not positive.
func NewBox(lx, ly, lz float64) Box {
	if lx <= 0 || ly <= 0 || lz <= 0 {
		panic("particle: box edge lengths must be > 0")
	}
	return Box{Lx: lx, Ly: ly, Lz: lz}
}

// MinImage returns the minimum-image separation vector for the raw
// component-wise difference (dx, dy, dz).
func (b Box) MinImage(dx, dy, dz float64) (float64, float64, float64) {
	dx -= b.Lx * math.Round(dx/b.Lx)
	dy -= b.Ly * math.Round(dy/b.Ly)
	dz -= b.Lz * math.Round(dz/b.Lz)
	return dx, dy, dz
}

// Wrap folds a coordinate triple back into the primary box [-L/2, L/2).
func (b Box) Wrap(x, y, z float64) (float64, float64, float64) {
	return wrap(x, b.Lx), wrap(y, b.Ly), wrap(z, b.Lz)
}

func wrap(x, l float64) float64 {
	for x >= l/2 {
		x -= l
	}
	for x < -l/2 {
		x += l
	}
	return x
}
