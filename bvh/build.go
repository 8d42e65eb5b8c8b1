package bvh

import (
	"fmt"
	"sort"
	"sync"

	"github.com/curveflow/tpe/curve"
	"gonum.org/v1/gonum/spatial/r3"
)

// New builds a BVH3D over net's edges. sep is the admissibility ratio
// used by Energy/Gradient queries (spec.md default 1.0). Building is
// O(m log m): the initial split is sequential (it needs the full edge
// list), after which the two subtrees are built in parallel goroutines,
// mirroring the fork-join build in the retrieval pack's N-body KD-tree
// (other_examples/MarkCLewis-LLM-Code-Performance__NBodySimulationKD.go),
// not the (non-concurrent) teacher.
func New(net *curve.Network, sep float64) (*Tree, error) {
	if net.NumEdges() == 0 {
		return nil, ErrEmptyCurve
	}
	if sep <= 0 {
		return nil, fmt.Errorf("bvh: sep must be > 0, got %g", sep)
	}

	edges := make([]int, net.NumEdges())
	for i := range edges {
		edges[i] = i
	}

	root := buildNode(net, edges, parallelBudget)
	return &Tree{Root: root, Network: net, Sep: sep}, nil
}

// parallelBudget bounds how many levels of the recursive build fork new
// goroutines before falling back to sequential recursion, avoiding
// goroutine explosion on deep trees.
const parallelBudget = 6

func buildNode(net *curve.Network, edgeIdx []int, budget int) *Node {
	if len(edgeIdx) == 1 {
		e := net.Edges[edgeIdx[0]]
		return &Node{
			Min: e.Midpoint, Max: e.Midpoint,
			TMin: e.Tangent, TMax: e.Tangent,
			Mass:     e.Length,
			Centroid: e.Midpoint,
			Tangent:  r3.Scale(e.Length, e.Tangent),
			LeafEdge: edgeIdx[0],
		}
	}

	n := &Node{LeafEdge: -1}
	summarize(net, edgeIdx, n)

	axis := longestAxis(n.Min, n.Max)
	sort.Slice(edgeIdx, func(i, j int) bool {
		return axisOf(net.Edges[edgeIdx[i]].Midpoint, axis) < axisOf(net.Edges[edgeIdx[j]].Midpoint, axis)
	})

	splitAt := massMedianSplit(net, edgeIdx)
	left, right := edgeIdx[:splitAt], edgeIdx[splitAt:]

	if budget > 0 && len(edgeIdx) > 64 {
		var lc, rc *Node
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			lc = buildNode(net, left, budget-1)
		}()
		go func() {
			defer wg.Done()
			rc = buildNode(net, right, budget-1)
		}()
		wg.Wait()
		n.Left, n.Right = lc, rc
	} else {
		n.Left = buildNode(net, left, 0)
		n.Right = buildNode(net, right, 0)
	}

	// Re-derive the exact summary from the children (summarize() above
	// only used the box/mass for choosing the split axis).
	n.Min, n.Max = boxUnion(n.Left.Min, n.Left.Max, n.Right.Min, n.Right.Max)
	n.TMin, n.TMax = boxUnion(n.Left.TMin, n.Left.TMax, n.Right.TMin, n.Right.TMax)
	n.Mass = n.Left.Mass + n.Right.Mass
	if n.Mass > 0 {
		n.Centroid = r3.Scale(1/n.Mass, r3.Add(r3.Scale(n.Left.Mass, n.Left.Centroid), r3.Scale(n.Right.Mass, n.Right.Centroid)))
	}
	n.Tangent = r3.Add(n.Left.Tangent, n.Right.Tangent)

	return n
}

// summarize computes the position/tangent bounding boxes and mass for
// edgeIdx without recursing, used only to pick a split axis before the
// children exist.
func summarize(net *curve.Network, edgeIdx []int, n *Node) {
	first := net.Edges[edgeIdx[0]]
	n.Min, n.Max = first.Midpoint, first.Midpoint
	n.TMin, n.TMax = first.Tangent, first.Tangent
	mass := 0.0
	for _, ei := range edgeIdx {
		e := net.Edges[ei]
		n.Min, n.Max = boxUnion(n.Min, n.Max, e.Midpoint, e.Midpoint)
		n.TMin, n.TMax = boxUnion(n.TMin, n.TMax, e.Tangent, e.Tangent)
		mass += e.Length
	}
	n.Mass = mass
}

func longestAxis(min, max r3.Vec) int {
	d := r3.Sub(max, min)
	if d.X >= d.Y && d.X >= d.Z {
		return 0
	}
	if d.Y >= d.Z {
		return 1
	}
	return 2
}

func axisOf(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// massMedianSplit returns the index at which to split the (already
// axis-sorted) edgeIdx slice so the cumulative dual-mass (edge length)
// on each side is as close to half the total as possible.
func massMedianSplit(net *curve.Network, edgeIdx []int) int {
	total := 0.0
	for _, ei := range edgeIdx {
		total += net.Edges[ei].Length
	}
	half := total / 2
	running := 0.0
	for i, ei := range edgeIdx {
		running += net.Edges[ei].Length
		if running >= half && i > 0 && i < len(edgeIdx)-1 {
			return i + 1
		}
	}
	return len(edgeIdx) / 2
}
