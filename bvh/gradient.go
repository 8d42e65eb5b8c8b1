package bvh

import (
	"github.com/curveflow/tpe/internal/parallel"
	"gonum.org/v1/gonum/spatial/r3"
)

// Gradient evaluates ∇E in R^{n x 3}, the L² gradient of the Barnes-Hut
// tangent-point energy with respect to vertex positions, spec.md §4.1.
// Accumulation is parallel over edges into per-worker shadow buffers,
// reduced serially at the end (spec.md §5), rather than atomics.
func (t *Tree) Gradient(opt Options) ([]r3.Vec, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	n := t.Network.NumVertices()
	m := t.Network.NumEdges()
	workers := parallel.Workers(opt.Parallel)

	gb := parallel.NewGradientBuffers(n, workers)
	parallel.Chunk(m, workers, func(worker, lo, hi int) {
		buf := gb.Buffer(worker)
		for i := lo; i < hi; i++ {
			t.accumulateEdgeGradient(i, opt.Alpha, opt.Beta, buf)
		}
	})

	reduced := gb.Reduce()
	out := make([]r3.Vec, n)
	for i, row := range reduced {
		out[i] = r3.Vec{X: 0.5 * row[0], Y: 0.5 * row[1], Z: 0.5 * row[2]}
	}
	return out, nil
}

// accumulateEdgeGradient adds edge i's contribution to ∇contribution_i
// into buf. Every visited pair adds to edge i's two endpoint rows; a
// leaf (exact) pair also adds the far edge's two endpoint rows, since
// the term depends on that edge's midpoint and length as well. An
// admissible cluster is differentiated only w.r.t. edge i's endpoints.
func (t *Tree) accumulateEdgeGradient(i int, alpha, beta float64, buf [][3]float64) {
	e := t.Network.Edges[i]
	var dp0, dp1 r3.Vec

	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.IsLeaf() {
			if n.LeafEdge == i {
				return
			}
			g0, g1 := pairGradient(e.Midpoint, n.Centroid, e.Tangent, e.Length, n.Mass, alpha, beta)
			dp0 = r3.Add(dp0, g0)
			dp1 = r3.Add(dp1, g1)
			// Far edge j: d/dq = ellI*(-0.5*ellJ*gradX) -/+ k*ellI*T_j at
			// its Prev/Next endpoints (grad_y k = -grad_x k).
			f := t.Network.Edges[n.LeafEdge]
			k, gradX, _ := tangentPointKernel(e.Midpoint, f.Midpoint, e.Tangent, alpha, beta)
			half := r3.Scale(-0.5*e.Length*f.Length, gradX)
			kT := r3.Scale(k*e.Length, f.Tangent)
			addRow(buf, f.Prev, r3.Sub(half, kT))
			addRow(buf, f.Next, r3.Add(half, kT))
			return
		}
		if admissible(e.Midpoint, n, t.Sep) {
			g0, g1 := pairGradient(e.Midpoint, n.Centroid, e.Tangent, e.Length, n.Mass, alpha, beta)
			dp0 = r3.Add(dp0, g0)
			dp1 = r3.Add(dp1, g1)
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(t.Root)

	addRow(buf, e.Prev, dp0)
	addRow(buf, e.Next, dp1)
}

func addRow(buf [][3]float64, idx int, v r3.Vec) {
	buf[idx][0] += v.X
	buf[idx][1] += v.Y
	buf[idx][2] += v.Z
}

// pairGradient returns the derivative of one pair's contribution
// k(m_i, y, T_i) * ellI * wFar with respect to edge i's two endpoint
// positions p0 (=Prev) and p1 (=Next), y (the far cluster centroid or
// leaf midpoint) and wFar (its mass) held fixed. Derivation: with
// m = (p0+p1)/2, T = (p1-p0)/ellI, and Pw = P_T(y-m) already orthogonal
// to T (so T.(grad_T k) = 0 identically), the chain rule collapses to
//
//	d/dp0 = wFar*(0.5*ellI*gradX - gradT) - k*wFar*T
//	d/dp1 = wFar*(0.5*ellI*gradX + gradT) + k*wFar*T
func pairGradient(m, y, T r3.Vec, ellI, wFar, alpha, beta float64) (dp0, dp1 r3.Vec) {
	k, gradX, gradT := tangentPointKernel(m, y, T, alpha, beta)
	if k == 0 && gradX == (r3.Vec{}) && gradT == (r3.Vec{}) {
		return r3.Vec{}, r3.Vec{}
	}

	half := r3.Scale(0.5*ellI, gradX)
	kT := r3.Scale(k, T)

	dp0 = r3.Scale(wFar, r3.Sub(half, gradT))
	dp0 = r3.Sub(dp0, r3.Scale(wFar, kT))

	dp1 = r3.Scale(wFar, r3.Add(half, gradT))
	dp1 = r3.Add(dp1, r3.Scale(wFar, kT))

	return dp0, dp1
}
