package multigrid

import "github.com/james-bowman/sparse"

// buildTransfer derives the edge-indexed prolongation/restriction pair
// for one level by composing the vertex contraction map with edge
// incidences, spec.md §4.3: a fine edge's value is injected unchanged
// from the coarse edge it rolled into (P), and a coarse edge's value is
// the length-weighted average of the fine edges that rolled into it (R).
func buildTransfer(fineLengths []float64, cm coarseMap, numCoarseEdges int) (p, r *sparse.CSR) {
	numFine := len(cm.ParentEdgeOf)

	coarseMass := make([]float64, numCoarseEdges)
	for fe, ce := range cm.ParentEdgeOf {
		coarseMass[ce] += fineLengths[fe]
	}

	pDOK := sparse.NewDOK(numFine, numCoarseEdges)
	rDOK := sparse.NewDOK(numCoarseEdges, numFine)
	for fe, ce := range cm.ParentEdgeOf {
		pDOK.Set(fe, ce, 1)
		weight := 0.0
		if coarseMass[ce] > 0 {
			weight = fineLengths[fe] / coarseMass[ce]
		}
		rDOK.Set(ce, fe, weight)
	}

	return pDOK.ToCSR(), rDOK.ToCSR()
}

// applyCSR evaluates y = M*v via M's non-zero entries directly, the
// same hand-rolled sparse matvec style used by bct.Tree.ApplySparse.
func applyCSR(m *sparse.CSR, v []float64) []float64 {
	rows, _ := m.Dims()
	y := make([]float64, rows)
	m.DoNonZero(func(i, j int, val float64) {
		y[i] += val * v[j]
	})
	return y
}
