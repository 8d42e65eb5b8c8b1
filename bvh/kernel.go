package bvh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// kernelEps guards the kernel's near-singular regime: when the projected
// separation s or the raw separation L underflow, the pair is treated as
// non-interacting rather than propagating a NaN or Inf. Callers skip only
// the self pair; neighbor pairs (sharing a vertex) are evaluated at their
// midpoints like any other pair, with no analytic neighbor integration,
// so this guard also fires when such a pair's projected separation
// vanishes (e.g. two collinear neighbor edges).
const kernelEps = 1e-15

// tangentPointKernel evaluates k_{alpha,beta}(x, y, T) = ||P_T(y-x)||^alpha
// / ||y-x||^beta, spec.md §4.1, along with the gradients of k with respect
// to x and T (y held fixed), used by pairGradient to build the analytic
// force on the near edge's two endpoints.
//
// Returns k, gradX (= grad_x k), gradT (= grad_T k).
func tangentPointKernel(x, y, T r3.Vec, alpha, beta float64) (k float64, gradX, gradT r3.Vec) {
	w := r3.Sub(y, x)
	L := r3.Norm(w)
	if L < kernelEps {
		return 0, r3.Vec{}, r3.Vec{}
	}
	u := r3.Scale(1/L, w)

	tw := r3.Dot(T, w)
	pw := r3.Sub(w, r3.Scale(tw, T)) // P_T(y-x)
	s := r3.Norm(pw)
	if s < kernelEps {
		return 0, r3.Vec{}, r3.Vec{}
	}

	lb := math.Pow(L, beta)
	sa := math.Pow(s, alpha)
	k = sa / lb

	// grad_x k = -alpha * Pw * s^(alpha-2) / L^beta + beta * u * s^alpha / L^(beta+1)
	saMinus2 := math.Pow(s, alpha-2)
	term1 := r3.Scale(-alpha*saMinus2/lb, pw)
	term2 := r3.Scale(beta*sa/(lb*L), u)
	gradX = r3.Add(term1, term2)

	// grad_T k = -alpha * (T.w) * s^(alpha-2) * Pw / L^beta
	gradT = r3.Scale(-alpha*tw*saMinus2/lb, pw)

	return k, gradX, gradT
}

// admissible implements spec.md §3's BCTBlock admissibility predicate
// specialized to a point (near edge midpoint) versus a cluster node:
// diam(N) < sep * dist(point, centroid(N)).
func admissible(point r3.Vec, n *Node, sep float64) bool {
	dist := r3.Norm(r3.Sub(point, n.Centroid))
	if dist < kernelEps {
		// Finite-precision underflow of the admissibility gap: fall
		// back to direct traversal per spec.md §4.1's numerical policy.
		return false
	}
	return n.Diameter() < sep*dist
}
