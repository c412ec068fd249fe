// Sparse LU factorization split into a symbolic phase (pattern analysis,
// done once per topology) and a numeric phase (refactorization + solve,
// done every step on the fixed pattern).

package sparse

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrSingular reports a zero pivot during numeric factorization. The
// configuration is degenerate and the run cannot continue.
var ErrSingular = errors.New("singular constraint matrix")

// pivotTol is the magnitude below which a pivot is treated as zero.
const pivotTol = 1e-14

// Factorization is the reusable sparse LU handle: the fill-reducing
// permutation, the symbolic patterns of L and U, and numeric values refreshed
// by Refactor. It stays valid exactly as long as the matrix sparsity pattern
// is unchanged; a pattern change requires a fresh Analyze.
//
// The handle is owned by a single solver; none of its methods are safe for
// concurrent use.
type Factorization struct {
	n     int
	perm  []int // new index -> old index
	iperm []int // old index -> new index

	// L: strictly lower triangle in CSR, unit diagonal implicit,
	// columns ascending within each row.
	lp []int
	li []int
	lx []float64

	// U: upper triangle in CSR including the diagonal, columns ascending,
	// so the diagonal entry is the first in each row.
	up []int
	ui []int
	ux []float64

	work []float64
}

// NnzL returns the number of stored nonzeros in the L factor.
func (f *Factorization) NnzL() int { return len(f.li) }

// NnzU returns the number of stored nonzeros in the U factor.
func (f *Factorization) NnzU() int { return len(f.ui) }

// colHeap yields candidate columns in ascending order during the symbolic
// row merge (container/heap over ints, cf. the event queue idiom).
type colHeap []int

func (h colHeap) Len() int           { return len(h) }
func (h colHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h colHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *colHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *colHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Analyze performs the symbolic phase: it applies the symmetric ordering
// perm (new -> old) to the pattern of m and computes the fill-in pattern of
// the L and U factors by symbolic row elimination. The returned handle is
// valid until the pattern of the matrix changes.
func Analyze(m *Matrix, perm []int) *Factorization {
	n := m.N
	if len(perm) != n {
		panic(fmt.Sprintf("sparse: Analyze permutation length %d, want %d", len(perm), n))
	}
	f := &Factorization{
		n:     n,
		perm:  append([]int(nil), perm...),
		iperm: make([]int, n),
		lp:    make([]int, n+1),
		up:    make([]int, n+1),
		work:  make([]float64, n),
	}
	for i, old := range perm {
		f.iperm[old] = i
	}

	stamp := make([]int, n) // stamp[c] == i+1: column c seen in row i
	var cand colHeap
	uCols := make([]int, 0, 8)

	for i := 0; i < n; i++ {
		rowStamp := i + 1
		cand = cand[:0]
		uCols = uCols[:0]

		// Scatter the permuted pattern of row i.
		old := f.perm[i]
		for p := m.RowPtr[old]; p < m.RowPtr[old+1]; p++ {
			c := f.iperm[m.ColInd[p]]
			stamp[c] = rowStamp
			if c < i {
				cand = append(cand, c)
			} else {
				uCols = append(uCols, c)
			}
		}
		// The diagonal is always part of the U pattern, so the pivot check
		// has a slot even when the entry is structurally zero.
		if stamp[i] != rowStamp {
			stamp[i] = rowStamp
			uCols = append(uCols, i)
		}

		// Symbolic elimination: consume columns below the diagonal in
		// ascending order, merging in the U pattern of each pivot row.
		// Fill columns pushed while processing column j all exceed j, so
		// the heap emits the L row in ascending column order.
		heap.Init(&cand)
		for cand.Len() > 0 {
			j := heap.Pop(&cand).(int)
			f.li = append(f.li, j)
			for p := f.up[j] + 1; p < f.up[j+1]; p++ {
				c := f.ui[p]
				if stamp[c] == rowStamp {
					continue
				}
				stamp[c] = rowStamp
				if c < i {
					heap.Push(&cand, c)
				} else {
					uCols = append(uCols, c)
				}
			}
		}

		sort.Ints(uCols)
		f.ui = append(f.ui, uCols...)
		f.lp[i+1] = len(f.li)
		f.up[i+1] = len(f.ui)
	}

	f.lx = make([]float64, len(f.li))
	f.ux = make([]float64, len(f.ui))
	return f
}

// Refactor refreshes the numeric values of L and U from m on the fixed
// symbolic pattern (the fast path: no pattern analysis, no reordering).
// Returns ErrSingular wrapped with the pivot row if a zero pivot is met.
// m must have the exact pattern the handle was analyzed for.
func (f *Factorization) Refactor(m *Matrix) error {
	if m.N != f.n {
		return fmt.Errorf("sparse: matrix order %d does not match factorization order %d", m.N, f.n)
	}
	x := f.work
	for i := range x {
		x[i] = 0
	}

	for i := 0; i < f.n; i++ {
		// Scatter the permuted row of A over the workspace.
		old := f.perm[i]
		for p := m.RowPtr[old]; p < m.RowPtr[old+1]; p++ {
			x[f.iperm[m.ColInd[p]]] = m.Val[p]
		}

		// Eliminate with the previously factored rows, ascending columns.
		for p := f.lp[i]; p < f.lp[i+1]; p++ {
			j := f.li[p]
			lij := x[j] / f.ux[f.up[j]]
			f.lx[p] = lij
			x[j] = 0
			for q := f.up[j] + 1; q < f.up[j+1]; q++ {
				x[f.ui[q]] -= lij * f.ux[q]
			}
		}

		// Gather the U row and clear the workspace behind it.
		for p := f.up[i]; p < f.up[i+1]; p++ {
			c := f.ui[p]
			f.ux[p] = x[c]
			x[c] = 0
		}

		if math.Abs(f.ux[f.up[i]]) <= pivotTol {
			return fmt.Errorf("sparse: zero pivot in row %d: %w", f.perm[i], ErrSingular)
		}
	}
	return nil
}

// Solve solves A x = b using the current factors: permute b, run the unit
// lower triangular solve and the upper triangular solve, and permute back.
// Refactor must have succeeded since the last pattern change.
func (f *Factorization) Solve(b, x []float64) {
	if len(b) != f.n || len(x) != f.n {
		panic("sparse: Solve vector length mismatch")
	}
	y := f.work
	for i := 0; i < f.n; i++ {
		y[i] = b[f.perm[i]]
	}
	// Forward substitution, L has an implicit unit diagonal.
	for i := 0; i < f.n; i++ {
		for p := f.lp[i]; p < f.lp[i+1]; p++ {
			y[i] -= f.lx[p] * y[f.li[p]]
		}
	}
	// Backward substitution.
	for i := f.n - 1; i >= 0; i-- {
		for p := f.up[i] + 1; p < f.up[i+1]; p++ {
			y[i] -= f.ux[p] * y[f.ui[p]]
		}
		y[i] /= f.ux[f.up[i]]
	}
	for i := 0; i < f.n; i++ {
		x[f.perm[i]] = y[i]
	}
}
