package multigrid

import "gonum.org/v1/gonum/mat"

// jacobiSweep performs one Jacobi smoothing sweep x <- x + D^{-1}(b-Ax),
// spec.md §4.3's single pre/post-smoothing pass using the diagonal of A.
func jacobiSweep(a Operator, diag, b, x []float64) []float64 {
	ax := a.Apply(x)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + (b[i]-ax[i])/diag[i]
	}
	return out
}

// coarsestSolve solves A x = b exactly at the coarsest level via the
// level's cached dense Cholesky factorization.
func (lv *Level) coarsestSolve(b []float64) []float64 {
	lv.ensureCholesky()
	m := len(b)
	// The operator is SPD by construction (spec.md §4.2's
	// diagonal-dominance argument), so a factorization failure
	// here indicates a badly degenerate coarsest curve; fall back
	// to one extra Jacobi sweep rather than propagating a panic
	// into the CG loop (SolveVecTo panics on a failed factorization).
	if lv.chol.IsEmpty() {
		return jacobiSweep(lv.A, lv.A.Diag, b, make([]float64, m))
	}
	var x mat.VecDense
	rhs := mat.NewVecDense(m, b)
	if err := lv.chol.SolveVecTo(&x, rhs); err != nil {
		return jacobiSweep(lv.A, lv.A.Diag, b, make([]float64, m))
	}
	return x.RawVector().Data
}

// ensureCholesky lazily materializes the coarsest level's dense matrix
// and factorizes it; called at most once per Hierarchy since the
// coarsest level never changes after construction.
func (lv *Level) ensureCholesky() {
	if lv.chol != nil {
		return
	}
	m := lv.Net.NumEdges()
	dense := mat.NewSymDense(m, nil)
	e := make([]float64, m)
	for j := 0; j < m; j++ {
		e[j] = 1
		col := lv.A.Apply(e)
		for i := j; i < m; i++ {
			dense.SetSym(i, j, col[i])
		}
		e[j] = 0
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(dense); !ok {
		lv.chol = &chol // left empty by the failed Factorize; coarsestSolve checks IsEmpty
		return
	}
	lv.chol = &chol
}

// vcycle runs one V-cycle starting at level idx: pre-smooth, restrict
// the residual to the next coarser level, recurse (or solve exactly at
// the coarsest level), prolong the correction back, post-smooth.
func (h *Hierarchy) vcycle(idx int, b []float64) []float64 {
	lv := h.Levels[idx]
	if idx == len(h.Levels)-1 {
		return lv.coarsestSolve(b)
	}

	x := make([]float64, len(b))
	x = jacobiSweep(lv.A, lv.A.Diag, b, x)

	ax := lv.A.Apply(x)
	res := make([]float64, len(b))
	for i := range res {
		res[i] = b[i] - ax[i]
	}

	child := h.Levels[idx+1]
	resCoarse := applyCSR(child.R, res)
	eCoarse := h.vcycle(idx+1, resCoarse)
	eFine := applyCSR(child.P, eCoarse)

	for i := range x {
		x[i] += eFine[i]
	}
	x = jacobiSweep(lv.A, lv.A.Diag, b, x)
	return x
}

// Precondition applies one V-cycle to residual, approximating A^-1 *
// residual for use as a CG preconditioner, spec.md §4.3.
func (h *Hierarchy) Precondition(residual []float64) []float64 {
	return h.vcycle(0, residual)
}
