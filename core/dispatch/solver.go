package dispatch

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// errFractional is returned when the LP relaxation does not land on a
// permutation vertex.
var errFractional = errors.New("dispatch: fractional assignment")

// solveJV returns, for each row of the square cost matrix a, the column of a
// minimum-cost perfect matching. It runs shortest augmenting paths with dual
// potentials, one row at a time.
func solveJV(a mat.Matrix) []int {
	n, _ := a.Dims()
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	owner := make([]int, n+1) // owner[j] is the 1-based row matched to column j
	way := make([]int, n+1)
	minv := make([]float64, n+1)
	used := make([]bool, n+1)
	for i := 1; i <= n; i++ {
		owner[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := owner[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := a.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if owner[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			owner[j0] = owner[j1]
			j0 = j1
		}
	}
	rows := make([]int, n)
	for j := 1; j <= n; j++ {
		if owner[j] > 0 {
			rows[owner[j]-1] = j - 1
		}
	}
	return rows
}

// solveLP solves the assignment as a linear program over the doubly
// stochastic polytope. Its vertices are permutations, so the simplex
// solution is integral.
func solveLP(a mat.Matrix) ([]int, error) {
	n, _ := a.Dims()
	if n == 0 {
		return nil, nil
	}
	c := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c[i*n+j] = a.At(i, j)
		}
	}
	// Row sums for every row, column sums for all but the last column which
	// is implied by the others.
	m := 2*n - 1
	A := mat.NewDense(m, n*n, nil)
	b := make([]float64, m)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			A.Set(i, i*n+j, 1)
		}
		b[i] = 1
	}
	for j := 0; j < n-1; j++ {
		for i := 0; i < n; i++ {
			A.Set(n+j, i*n+j, 1)
		}
		b[n+j] = 1
	}
	_, x, err := lp.Simplex(c, A, b, 1e-9, nil)
	if err != nil {
		return nil, err
	}
	rows := make([]int, n)
	seen := make([]bool, n)
	for i := 0; i < n; i++ {
		rows[i] = -1
		for j := 0; j < n; j++ {
			if x[i*n+j] > 0.5 {
				rows[i] = j
				break
			}
		}
		if rows[i] < 0 || seen[rows[i]] {
			return nil, errFractional
		}
		seen[rows[i]] = true
	}
	return rows, nil
}
