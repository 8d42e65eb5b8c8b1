// Package bvh implements BVH3D: a Barnes-Hut bounding volume hierarchy
// over edge midpoints, used to evaluate the tangent-point energy and its
// gradient in O(m log m) via far-field cluster approximation.
package bvh

import (
	"errors"

	"github.com/curveflow/tpe/curve"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrEmptyCurve is returned when a tree is built from a curve with no
// edges.
var ErrEmptyCurve = errors.New("bvh: cannot build a tree over zero edges")

// Node is one node of the hierarchy: dual bounds over positions and
// tangents, a monopole mass/centroid/average-tangent summary, and up to
// two children. LeafEdge is -1 for internal nodes and the owning edge's
// index for leaves, following the teacher's preference for a flat
// sentinel field over an interface-typed variant in hot-path structs.
type Node struct {
	// Position bounds.
	Min, Max r3.Vec
	// Tangent bounds (dual bounds, needed for tangent-aware admissibility
	// of obstacle-style kernels; the tangent-point kernel here only
	// consults position bounds for admissibility, but the bounds are
	// still maintained per the data model).
	TMin, TMax r3.Vec

	Mass     float64 // M = sum of edge lengths under this node
	Centroid r3.Vec  // mass-weighted mean midpoint
	Tangent  r3.Vec  // mass-weighted sum of tangents, sum of ell_i*T_i (not divided by Mass, not renormalized)

	Left, Right *Node
	LeafEdge    int // >= 0 for leaves, -1 for internal nodes
}

// IsLeaf reports whether n is a leaf (holds exactly one edge).
func (n *Node) IsLeaf() bool { return n.LeafEdge >= 0 }

// Diameter returns the Euclidean diagonal length of the node's position
// bounding box, used as the admissibility predicate's cluster size.
func (n *Node) Diameter() float64 {
	d := r3.Sub(n.Max, n.Min)
	return r3.Norm(d)
}

// Tree is a BVH3D built over the edges of one curve.Network at a fixed
// topology and set of positions. It is ephemeral: rebuilt whenever
// positions change materially (once per flow-solver step) or whenever
// the owning curve's topology changes.
type Tree struct {
	Root    *Node
	Network *curve.Network
	Sep     float64 // admissibility ratio, default 1.0
}

func boxUnion(aMin, aMax, bMin, bMax r3.Vec) (r3.Vec, r3.Vec) {
	min := r3.Vec{X: minf(aMin.X, bMin.X), Y: minf(aMin.Y, bMin.Y), Z: minf(aMin.Z, bMin.Z)}
	max := r3.Vec{X: maxf(aMax.X, bMax.X), Y: maxf(aMax.Y, bMax.Y), Z: maxf(aMax.Z, bMax.Z)}
	return min, max
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
