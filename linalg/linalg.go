// Package linalg provides a small dense linear solve used by the relmt
// linear-leaf variant (package tree). No third-party linear-algebra
// library appeared anywhere in the corpus at a version that could serve
// this; the systems here are tiny (at most a few dozen unknowns - one
// per column feeding a linear leaf), so a stdlib Gaussian-elimination
// solve with partial pivoting is the appropriate, and only, standard
// library exception this module takes. See DESIGN.md.
package linalg

import (
	"math"

	"github.com/relboost/relboost/errs"
)

// Solve returns x such that a*x = b, where a is n x n (row-major, each
// row length n) and b has length n. Uses Gaussian elimination with
// partial pivoting; returns errs.InvalidInput if a is (numerically)
// singular.
func Solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	if n == 0 {
		return nil, nil
	}
	if len(b) != n {
		return nil, errs.InvalidInput.New("linalg: b has length %d, want %d", len(b), n)
	}
	for _, row := range a {
		if len(row) != n {
			return nil, errs.InvalidInput.New("linalg: a is not square")
		}
	}

	// Work on copies; the caller's matrix is untouched.
	m := make([][]float64, n)
	for i := range a {
		m[i] = append([]float64(nil), a[i]...)
	}
	x := append([]float64(nil), b...)

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(m[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(m[r][col]); v > best {
				best = v
				pivot = r
			}
		}
		if best < 1e-12 {
			return nil, errs.InvalidInput.New("linalg: matrix is singular at column %d", col)
		}
		if pivot != col {
			m[col], m[pivot] = m[pivot], m[col]
			x[col], x[pivot] = x[pivot], x[col]
		}

		for r := col + 1; r < n; r++ {
			factor := m[r][col] / m[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				m[r][c] -= factor * m[col][c]
			}
			x[r] -= factor * x[col]
		}
	}

	out := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := x[i]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * out[j]
		}
		out[i] = sum / m[i][i]
	}
	return out, nil
}

// WeightedLeastSquares fits beta minimizing sum_i w_i*(y_i - x_i.beta)^2
// over rows x (n x k) via the normal equations X^T W X beta = X^T W y,
// ridge-regularized by lambda to keep the system solvable when k is
// close to n or columns are collinear.
func WeightedLeastSquares(x [][]float64, y, w []float64, lambda float64) ([]float64, error) {
	n := len(x)
	if n == 0 {
		return nil, errs.InvalidInput.New("linalg: no rows")
	}
	k := len(x[0])

	ata := make([][]float64, k)
	for i := range ata {
		ata[i] = make([]float64, k)
	}
	atb := make([]float64, k)

	for i := 0; i < n; i++ {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		for a := 0; a < k; a++ {
			atb[a] += wi * x[i][a] * y[i]
			for b := 0; b < k; b++ {
				ata[a][b] += wi * x[i][a] * x[i][b]
			}
		}
	}
	for a := 0; a < k; a++ {
		ata[a][a] += lambda
	}

	return Solve(ata, atb)
}
