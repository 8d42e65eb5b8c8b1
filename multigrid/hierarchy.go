// Package multigrid implements the geometric multigrid hierarchy that
// preconditions the conjugate-gradient solve of the fractional Sobolev
// metric operator, spec.md §4.3.
package multigrid

import (
	"errors"
	"fmt"

	"github.com/curveflow/tpe/bct"
	"github.com/curveflow/tpe/curve"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// ErrSolverNonConvergent is returned by SolveCG when the residual fails
// to reach the requested tolerance within maxIter iterations.
var ErrSolverNonConvergent = errors.New("multigrid: CG solve did not converge")

// Operator applies a linear operator to an edge-indexed vector; both
// bct.Tree and multigrid.Hierarchy's own per-level approximations
// satisfy it.
type Operator interface {
	Apply(v []float64) []float64
}

// levelDefaultAlpha, levelDefaultBeta, and levelDefaultSep parameterize
// the approximate operator each *coarse* level builds for itself. A
// multigrid V-cycle is a preconditioner for the levels below the
// finest, so those coarse-level operators need only be a reasonable SPD
// approximation of the fine operator's conditioning, not an exact
// rediscretization at the caller's alpha/beta. The finest level,
// Levels[0], is the actual operator CG solves against and must use the
// caller's own alpha/beta/sep — see NewHierarchy.
const (
	levelDefaultAlpha = 3.0
	levelDefaultBeta  = 6.0
	levelDefaultSep   = 1.0
)

// Level is one grid in the hierarchy: a coarsened curve, its own
// approximate metric operator, and the transfer operators linking it
// to its parent (finer) level.
type Level struct {
	Net *curve.Network
	A   *bct.Tree

	P, R *sparse.CSR // nil at level 0; P prolongs this level's parent from this level, R restricts the reverse

	chol *mat.Cholesky // lazily built; only ever used on the coarsest level
}

// Hierarchy is the full sequence of coarsened curves used as a V-cycle
// preconditioner, spec.md §4.3. It is ephemeral: rebuilt whenever the
// owning curve's topology changes.
type Hierarchy struct {
	Levels []*Level // Levels[0] is the finest
}

// NewHierarchy builds up to maxLevels grids by repeated coarsening,
// stopping early once a level would drop below minEdgesToCoarsen.
// alpha, beta, and sep are the tangent-point exponents and admissibility
// ratio of the energy actually being minimized; they parameterize only
// the finest level's operator (Levels[0]), the one CG solves against.
// Coarser levels build their own approximate operator at a fixed
// canonical exponent pair, since they serve only as a preconditioner.
func NewHierarchy(net *curve.Network, maxLevels int, alpha, beta, sep float64) (*Hierarchy, error) {
	if maxLevels < 1 {
		maxLevels = 1
	}

	finest, err := bct.NewTree(net, sep, alpha, beta)
	if err != nil {
		return nil, fmt.Errorf("multigrid: building finest level operator: %w", err)
	}
	h := &Hierarchy{Levels: []*Level{{Net: net, A: finest}}}

	cur := net
	for len(h.Levels) < maxLevels && cur.NumEdges() >= 2*minEdgesToCoarsen {
		coarseNet, cm := coarsen(cur)
		if coarseNet.NumEdges() >= cur.NumEdges() {
			break // contraction made no progress (e.g. all vertices protected)
		}

		fineLengths := make([]float64, cur.NumEdges())
		for i, e := range cur.Edges {
			fineLengths[i] = e.Length
		}
		p, r := buildTransfer(fineLengths, cm, coarseNet.NumEdges())

		a, err := bct.NewTree(coarseNet, levelDefaultSep, levelDefaultAlpha, levelDefaultBeta)
		if err != nil {
			return nil, fmt.Errorf("multigrid: building level %d operator: %w", len(h.Levels), err)
		}
		h.Levels = append(h.Levels, &Level{Net: coarseNet, A: a, P: p, R: r})
		cur = coarseNet
	}

	return h, nil
}
