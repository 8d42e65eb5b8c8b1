package multigrid

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Stats reports the convergence history of one SolveCG call.
type Stats struct {
	Iterations int
	Residuals  []float64 // relative residual norm after each iteration
}

// SolveCG solves A x = b by preconditioned conjugate gradient, one
// V-cycle applied per iteration as the preconditioner, terminating once
// the relative residual drops to tol, spec.md §4.3's outer solve.
func (h *Hierarchy) SolveCG(a Operator, b []float64, tol float64, maxIter int) ([]float64, Stats, error) {
	n := len(b)
	x := make([]float64, n)

	bNorm := norm2(b)
	if bNorm == 0 {
		return x, Stats{}, nil
	}

	r := make([]float64, n)
	copy(r, b)

	z := h.Precondition(r)
	p := make([]float64, n)
	copy(p, z)
	rz := dot(r, z)

	stats := Stats{}
	for iter := 0; iter < maxIter; iter++ {
		ap := a.Apply(p)
		denom := dot(p, ap)
		if denom == 0 {
			break
		}
		alpha := rz / denom

		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)

		rel := norm2(r) / bNorm
		stats.Iterations = iter + 1
		stats.Residuals = append(stats.Residuals, rel)
		if rel <= tol {
			return x, stats, nil
		}

		z = h.Precondition(r)
		rzNew := dot(r, z)
		beta := rzNew / rz
		floats.ScaleTo(p, beta, p)
		floats.Add(p, z)
		rz = rzNew
	}

	last := 1.0
	if len(stats.Residuals) > 0 {
		last = stats.Residuals[len(stats.Residuals)-1]
	}
	return x, stats, fmt.Errorf("multigrid: reached %d iterations with relative residual %g > tol %g: %w",
		stats.Iterations, last, tol, ErrSolverNonConvergent)
}

func dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

func norm2(a []float64) float64 {
	return floats.Norm(a, 2)
}
