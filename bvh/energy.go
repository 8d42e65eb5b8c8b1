package bvh

import (
	"fmt"

	"github.com/curveflow/tpe/curve"
	"github.com/curveflow/tpe/internal/parallel"
)

// Options controls the exponents and parallelism used by an
// energy/gradient query, matching spec.md §6's evaluate_energy inputs.
// The admissibility ratio is the Tree's own Sep, fixed at New.
type Options struct {
	Alpha, Beta float64
	// Parallel enables the fork-join accumulation over edges. Disable it
	// to get bit-for-bit single-threaded determinism (spec.md §5).
	Parallel bool
}

func (o Options) validate() error {
	if o.Alpha <= 0 {
		return fmt.Errorf("bvh: alpha must be > 0, got %g: %w", o.Alpha, curve.ErrInvalidExponents)
	}
	if o.Beta <= o.Alpha+1 {
		return fmt.Errorf("bvh: beta must be > alpha+1 (got alpha=%g beta=%g): %w", o.Alpha, o.Beta, curve.ErrInvalidExponents)
	}
	return nil
}

// Energy evaluates the discretized tangent-point energy of t.Network
// using the Barnes-Hut approximation, spec.md §4.1. It is O(m log m):
// parallel over edges, each doing one O(log m) tree traversal.
func (t *Tree) Energy(opt Options) (float64, error) {
	if err := opt.validate(); err != nil {
		return 0, err
	}
	m := t.Network.NumEdges()
	workers := parallel.Workers(opt.Parallel)

	total := parallel.ReduceFloat64(m, workers, func(lo, hi int) float64 {
		sum := 0.0
		for i := lo; i < hi; i++ {
			sum += t.edgeContribution(i, opt.Alpha, opt.Beta)
		}
		return sum
	})
	return 0.5 * total, nil
}

// edgeContribution computes Σ_{j != i} k(m_i, m_j-or-cluster, T_i) * ℓ_i *
// (ℓ_j or M_cluster), the "edge-i contribution" of spec.md §4.1.
func (t *Tree) edgeContribution(i int, alpha, beta float64) float64 {
	e := t.Network.Edges[i]
	sum := 0.0
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.IsLeaf() {
			if n.LeafEdge == i {
				return
			}
			k, _, _ := tangentPointKernel(e.Midpoint, n.Centroid, e.Tangent, alpha, beta)
			sum += k * e.Length * n.Mass
			return
		}
		if admissible(e.Midpoint, n, t.Sep) {
			k, _, _ := tangentPointKernel(e.Midpoint, n.Centroid, e.Tangent, alpha, beta)
			sum += k * e.Length * n.Mass
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(t.Root)
	return sum
}
