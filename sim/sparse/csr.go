// Compressed-sparse-row storage and dense -> CSR conversion with sparsity
// pattern change detection.

package sparse

import "gonum.org/v1/gonum/mat"

// Matrix is a square sparse matrix in compressed-sparse-row form.
// Column indices are sorted ascending within each row.
type Matrix struct {
	N      int
	RowPtr []int
	ColInd []int
	Val    []float64
}

// Nnz returns the number of stored nonzeros.
func (m *Matrix) Nnz() int {
	if len(m.RowPtr) == 0 {
		return 0
	}
	return m.RowPtr[m.N]
}

// At returns the value at (i, j), zero if not stored.
func (m *Matrix) At(i, j int) float64 {
	for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
		if m.ColInd[p] == j {
			return m.Val[p]
		}
	}
	return 0
}

// FromDense rewrites m with the nonzero entries of a, reusing m's value
// storage, and reports whether the resulting sparsity pattern differs from
// the pattern m held before the call. Conversion into an empty Matrix always
// reports a changed pattern: there is no previous factorization to reuse.
//
// The comparison is per entry (row pointers and column indices), which is
// conservative: any nonzero appearing, vanishing, or moving flips the flag.
func (m *Matrix) FromDense(a *mat.Dense) (patternChanged bool) {
	n, cols := a.Dims()
	if n != cols {
		panic("sparse: FromDense requires a square matrix")
	}

	oldColInd := m.ColInd
	oldRowPtr := m.RowPtr
	patternChanged = m.N != n || len(oldRowPtr) == 0

	rowPtr := make([]int, n+1)
	colInd := make([]int, 0, len(oldColInd))
	val := m.Val[:0]

	for i := 0; i < n; i++ {
		row := a.RawRowView(i)
		for j, v := range row {
			if v == 0 {
				continue
			}
			if !patternChanged {
				p := len(colInd)
				if p >= len(oldColInd) || oldColInd[p] != j {
					patternChanged = true
				}
			}
			colInd = append(colInd, j)
			val = append(val, v)
		}
		rowPtr[i+1] = len(colInd)
		if !patternChanged && oldRowPtr[i+1] != rowPtr[i+1] {
			patternChanged = true
		}
	}
	if !patternChanged && len(colInd) != len(oldColInd) {
		patternChanged = true
	}

	m.N = n
	m.RowPtr = rowPtr
	m.ColInd = colInd
	m.Val = val
	return patternChanged
}
