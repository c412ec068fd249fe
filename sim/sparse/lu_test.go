package sparse

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// randomBanded builds a diagonally dominant banded matrix: well conditioned,
// structurally symmetric, with off-diagonal entries dropped at random so the
// pattern varies between trials.
func randomBanded(rng *rand.Rand, n, band int) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		rowSum := 0.0
		for j := i - band; j <= i+band; j++ {
			if j < 0 || j >= n || j == i || rng.Intn(3) == 0 {
				continue
			}
			v := rng.Float64()*2 - 1
			a.Set(i, j, v)
			rowSum += absf(v)
		}
		a.Set(i, i, rowSum+1+rng.Float64())
	}
	return a
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func denseSolve(t *testing.T, a *mat.Dense, b []float64) []float64 {
	t.Helper()
	var lu mat.LU
	lu.Factorize(a)
	x := mat.NewVecDense(len(b), nil)
	require.NoError(t, lu.SolveVecTo(x, false, mat.NewVecDense(len(b), append([]float64(nil), b...))))
	out := make([]float64, len(b))
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out
}

func TestFromDense_PatternChangeDetection(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		2, 1, 0,
		1, 3, 0,
		0, 0, 4,
	})
	var m Matrix

	// First conversion always reports a changed pattern.
	assert.True(t, m.FromDense(a))
	assert.Equal(t, 5, m.Nnz())

	// Same pattern, different values: unchanged.
	a.Set(0, 0, 7)
	assert.False(t, m.FromDense(a))
	assert.Equal(t, 7.0, m.At(0, 0))

	// A new nonzero changes the pattern.
	a.Set(0, 2, 1)
	assert.True(t, m.FromDense(a))

	// A vanished nonzero changes it too.
	a.Set(0, 2, 0)
	assert.True(t, m.FromDense(a))
}

func TestReverseCuthillMcKee_IsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := randomBanded(rng, 40, 6)
	var m Matrix
	m.FromDense(a)

	perm := ReverseCuthillMcKee(&m)

	require.Len(t, perm, m.N)
	seen := make([]bool, m.N)
	for _, p := range perm {
		require.False(t, seen[p], "index %d repeated", p)
		seen[p] = true
	}
}

func TestFactorization_SolveMatchesDenseLU(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 25; trial++ {
		n := 5 + rng.Intn(60)
		a := randomBanded(rng, n, 1+rng.Intn(4))
		var m Matrix
		m.FromDense(a)

		perm := ReverseCuthillMcKee(&m)
		f := Analyze(&m, perm)
		require.NoError(t, f.Refactor(&m))

		b := make([]float64, n)
		for i := range b {
			b[i] = rng.Float64()*10 - 5
		}
		x := make([]float64, n)
		f.Solve(b, x)

		want := denseSolve(t, a, b)
		for i := range want {
			assert.InDelta(t, want[i], x[i], 1e-9, "trial %d component %d", trial, i)
		}
	}
}

func TestFactorization_FastRefactorMatchesFullPath(t *testing.T) {
	// GIVEN a factorized matrix
	rng := rand.New(rand.NewSource(9))
	a := randomBanded(rng, 30, 3)
	var m Matrix
	m.FromDense(a)
	f := Analyze(&m, ReverseCuthillMcKee(&m))
	require.NoError(t, f.Refactor(&m))

	// WHEN only the numeric values change (same pattern)
	b2 := mat.DenseCopyOf(a)
	for i := 0; i < 30; i++ {
		for j := 0; j < 30; j++ {
			if v := a.At(i, j); v != 0 {
				b2.Set(i, j, v*(1+0.1*rng.Float64()))
			}
		}
	}
	require.False(t, m.FromDense(b2), "value-only update must keep the pattern")

	// THEN the fast refactorization on the old handle solves as accurately
	// as a from-scratch analysis.
	require.NoError(t, f.Refactor(&m))

	rhs := make([]float64, 30)
	for i := range rhs {
		rhs[i] = rng.Float64()
	}
	fast := make([]float64, 30)
	f.Solve(rhs, fast)

	fresh := Analyze(&m, ReverseCuthillMcKee(&m))
	require.NoError(t, fresh.Refactor(&m))
	full := make([]float64, 30)
	fresh.Solve(rhs, full)

	for i := range full {
		assert.InDelta(t, full[i], fast[i], 1e-10)
	}
}

func TestFactorization_ZeroPivotIsErrSingular(t *testing.T) {
	// Rows 0 and 1 are identical: the matrix is exactly singular.
	a := mat.NewDense(3, 3, []float64{
		1, 2, 0,
		1, 2, 0,
		0, 0, 5,
	})
	var m Matrix
	m.FromDense(a)
	f := Analyze(&m, ReverseCuthillMcKee(&m))

	err := f.Refactor(&m)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingular), "want ErrSingular, got %v", err)
}

func TestFactorization_StructurallyZeroDiagonal(t *testing.T) {
	// A structurally empty pivot slot must surface as ErrSingular rather
	// than an index panic.
	a := mat.NewDense(2, 2, []float64{
		0, 1,
		0, 1,
	})
	var m Matrix
	m.FromDense(a)
	f := Analyze(&m, ReverseCuthillMcKee(&m))

	assert.ErrorIs(t, f.Refactor(&m), ErrSingular)
}

func TestFactorization_FillInHandled(t *testing.T) {
	// An arrowhead matrix ordered worst-case first fills in completely;
	// the symbolic phase must predict that fill so the numeric phase works.
	n := 8
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 10)
		if i > 0 {
			a.Set(0, i, 1)
			a.Set(i, 0, 1)
		}
	}
	var m Matrix
	m.FromDense(a)

	// Identity ordering puts the dense row first, forcing maximal fill.
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	f := Analyze(&m, perm)
	require.NoError(t, f.Refactor(&m))

	b := make([]float64, n)
	for i := range b {
		b[i] = float64(i + 1)
	}
	x := make([]float64, n)
	f.Solve(b, x)

	want := denseSolve(t, a, b)
	for i := range want {
		assert.InDelta(t, want[i], x[i], 1e-10)
	}
	assert.Greater(t, f.NnzL()+f.NnzU(), m.Nnz(), "expected fill-in beyond the input pattern")
}
