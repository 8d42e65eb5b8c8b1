package constraint

import (
	"errors"
	"fmt"

	"github.com/curveflow/tpe/curve"
	"github.com/curveflow/tpe/multigrid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrConstraintProjectionFailed is returned when back-projection fails
// to converge within the Newton iteration budget, spec.md §7.
var ErrConstraintProjectionFailed = errors.New("constraint: back-projection did not converge")

// errSchurSingular marks a Schur-complement factorization failure;
// wrapped into ErrConstraintProjectionFailed by BackProject and
// surfaced directly by Project.
var errSchurSingular = errors.New("constraint: Schur complement is not positive definite")

const (
	defaultProjectTol     = 1e-2
	defaultProjectMaxIter = 200
	backProjectTol        = 1e-6
	backProjectMaxNewton  = 4
)

// Projector implements spec.md §4.4's saddle-point elimination: given
// the active Set and the metric operator's multigrid hierarchy, it
// projects a gradient onto ker(J) and back-projects post-step drift.
type Projector struct {
	Set *Set
	H   *multigrid.Hierarchy

	Tol     float64
	MaxIter int

	// Channel selects which spatial axis (0=x, 1=y, 2=z) Project
	// operates against; the flow solver sets this before each of the
	// three per-channel calls that make up one step.
	Channel int
}

// NewProjector builds a Projector over set, solving with h's CG at the
// given tolerance and iteration cap (spec.md §4.3 defaults if zero).
func NewProjector(set *Set, h *multigrid.Hierarchy, tol float64, maxIter int) *Projector {
	if tol <= 0 {
		tol = defaultProjectTol
	}
	if maxIter <= 0 {
		maxIter = defaultProjectMaxIter
	}
	return &Projector{Set: set, H: h, Tol: tol, MaxIter: maxIter}
}

// schur assembles J A^-1 J^T for channel ch by c multigrid CG solves
// (one per constraint row), returning the c×c
// Schur matrix, the c rows Y_k = A^-1 J_row_k, and err if any solve
// failed to converge.
func (p *Projector) schur(a multigrid.Operator, ch int) (schur *mat.SymDense, y [][]float64, err error) {
	j := p.Set.JacobianChannel(ch)
	c, m := j.Dims()
	y = make([][]float64, c)
	for k := 0; k < c; k++ {
		row := make([]float64, m)
		mat.Row(row, k, j)
		yk, _, solveErr := p.H.SolveCG(a, row, p.Tol, p.MaxIter)
		if solveErr != nil {
			return nil, nil, fmt.Errorf("constraint: assembling Schur complement row %d: %w", k, solveErr)
		}
		y[k] = yk
	}

	schur = mat.NewSymDense(c, nil)
	for k := 0; k < c; k++ {
		for l := k; l < c; l++ {
			rowL := make([]float64, m)
			mat.Row(rowL, l, j)
			schur.SetSym(k, l, floatsDot(rowL, y[k]))
		}
	}
	return schur, y, nil
}

// Project solves the saddle-point system of spec.md §4.4 for p.Channel's
// edge-indexed gradient g, returning ĝ orthogonal (in the A-inner
// product) to the constraint tangent space.
func (p *Projector) Project(a multigrid.Operator, g []float64) ([]float64, error) {
	return p.projectChannel(a, p.Channel, g)
}

func (p *Projector) projectChannel(a multigrid.Operator, ch int, g []float64) ([]float64, error) {
	z, _, err := p.H.SolveCG(a, g, p.Tol, p.MaxIter)
	if err != nil {
		return nil, fmt.Errorf("constraint: solving A z = g: %w", err)
	}

	schur, y, err := p.schur(a, ch)
	if err != nil {
		return nil, err
	}
	c := len(y)
	if c == 0 {
		return z, nil
	}

	j := p.Set.JacobianChannel(ch)
	jz := make([]float64, c)
	mat.NewVecDense(c, jz).MulVec(j, mat.NewVecDense(len(g), z))

	lambda, err := solveSchur(schur, jz)
	if err != nil {
		return nil, fmt.Errorf("constraint: %w", errSchurSingular)
	}

	ghat := append([]float64(nil), z...)
	for k, lk := range lambda {
		if lk == 0 {
			continue
		}
		for i, yi := range y[k] {
			ghat[i] -= lk * yi
		}
	}
	return ghat, nil
}

// BackProject corrects constraint drift after a line step, Newton
// iterating x ← x − A⁻¹Jᵀμ until ‖φ(x)‖ < 1e-6 or 4 iterations elapse
// (spec.md §4.4). a must be the metric operator for net's current
// topology (edge count and ordering unchanged since p.Set was built).
func (p *Projector) BackProject(net *curve.Network, a multigrid.Operator) error {
	for iter := 0; iter < backProjectMaxNewton; iter++ {
		residual := p.Set.Residual()
		if maxNorm(residual) < backProjectTol {
			return nil
		}

		var correction []r3.Vec
		var err error
		correction, err = p.newtonStep(a, residual)
		if err != nil {
			return fmt.Errorf("constraint: back-projection Newton step %d: %w: %w", iter, ErrConstraintProjectionFailed, err)
		}

		push := net.VertexPush(correction)
		for i := range net.Vertices {
			net.Vertices[i].Position = r3.Sub(net.Vertices[i].Position, push[i])
		}
		net.RecomputeGeometry()
	}

	if maxNorm(p.Set.Residual()) < backProjectTol {
		return nil
	}
	return ErrConstraintProjectionFailed
}

// newtonStep solves J A^-1 J^T μ = δ independently per spatial channel
// and returns the edge-indexed correction vector A^-1 J^T μ, packed as
// one Vec3 per edge so the caller can scatter it with VertexPush.
func (p *Projector) newtonStep(a multigrid.Operator, residual []r3.Vec) ([]r3.Vec, error) {
	m := len(p.Set.Rows[0].Coeffs)
	perChannel := make([][]float64, 3)
	for ch := 0; ch < 3; ch++ {
		schur, y, err := p.schur(a, ch)
		if err != nil {
			return nil, err
		}
		c := len(y)
		delta := make([]float64, c)
		for k := range delta {
			delta[k] = component(residual[k], ch)
		}
		mu, err := solveSchur(schur, delta)
		if err != nil {
			return nil, errSchurSingular
		}
		ec := make([]float64, m)
		for k, mk := range mu {
			if mk == 0 {
				continue
			}
			for i, yi := range y[k] {
				ec[i] += mk * yi
			}
		}
		perChannel[ch] = ec
	}

	out := make([]r3.Vec, m)
	for i := range out {
		out[i] = r3.Vec{X: perChannel[0][i], Y: perChannel[1][i], Z: perChannel[2][i]}
	}
	return out, nil
}

func solveSchur(schur *mat.SymDense, rhs []float64) ([]float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(schur); !ok {
		return nil, errSchurSingular
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(len(rhs), rhs)); err != nil {
		return nil, err
	}
	return x.RawVector().Data, nil
}

func maxNorm(vs []r3.Vec) float64 {
	max := 0.0
	for _, v := range vs {
		if n := r3.Norm(v); n > max {
			max = n
		}
	}
	return max
}

func floatsDot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
