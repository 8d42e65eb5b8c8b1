package multigrid

import "github.com/curveflow/tpe/curve"

// protected reports whether vertex v must survive coarsening: a
// junction (valence != 2) or any pinned vertex, spec.md §4.3.
func protected(net *curve.Network, v int) bool {
	vv := net.Vertices[v]
	if len(vv.IncidentEdges) != 2 {
		return true
	}
	return vv.PinnedPosition || vv.PinnedTangent || vv.PinnedToSurface
}

// neighborAlong returns the vertex at the far end of edge e from v.
func neighborAlong(net *curve.Network, e, v int) int {
	edge := net.Edges[e]
	if edge.Prev == v {
		return edge.Next
	}
	return edge.Prev
}

// otherEdgeAt returns the incident edge of v other than "from", or -1 if
// v has no second incident edge (a degree-1 endpoint of an open curve).
func otherEdgeAt(net *curve.Network, v, from int) int {
	for _, e := range net.Vertices[v].IncidentEdges {
		if e != from {
			return e
		}
	}
	return -1
}

// chain is one maximal run walked through degree-2 interior vertices,
// bounded by protected vertices (or, for a loop with none, closing back
// on itself). vertices has len(edges)+1 entries; for a closed chain
// vertices[0] == vertices[len(vertices)-1].
type chain struct {
	vertices []int
	edges    []int
	closed   bool
}

// walkChains partitions the curve into maximal chains between protected
// vertices (junctions/pinned vertices), or, for a component with no
// protected vertex at all, a single closed chain starting at an
// arbitrary vertex.
func walkChains(net *curve.Network) []chain {
	visitedEdge := make([]bool, net.NumEdges())
	var chains []chain

	walkFrom := func(start, firstEdge int) chain {
		c := chain{vertices: []int{start}}
		cur, e := start, firstEdge
		for {
			visitedEdge[e] = true
			next := neighborAlong(net, e, cur)
			c.edges = append(c.edges, e)
			c.vertices = append(c.vertices, next)
			if protected(net, next) {
				break
			}
			nextEdge := otherEdgeAt(net, next, e)
			if nextEdge < 0 || visitedEdge[nextEdge] {
				break
			}
			cur, e = next, nextEdge
		}
		return c
	}

	for v := range net.Vertices {
		if !protected(net, v) {
			continue
		}
		for _, e := range net.Vertices[v].IncidentEdges {
			if visitedEdge[e] {
				continue
			}
			chains = append(chains, walkFrom(v, e))
		}
	}

	for v := range net.Vertices {
		for _, e := range net.Vertices[v].IncidentEdges {
			if visitedEdge[e] {
				continue
			}
			c := walkFrom(v, e)
			c.closed = true
			chains = append(chains, c)
		}
	}

	return chains
}

// coarseMap describes how one level's curve is built from its parent
// (finer) curve: which parent vertices are retained, and which parent
// edges collapse into which coarse edge.
type coarseMap struct {
	CoarseOf     []int // len = parent.NumVertices(); coarse vertex index, or -1 if contracted
	RetainedFrom []int // len = coarse NumVertices(); parent vertex index
	ParentEdgeOf []int // len = parent.NumEdges(); which coarse edge this parent edge rolled into
}

// minEdgesToCoarsen is the smallest edge count worth contracting
// further; below this a V-cycle gains nothing over a direct solve.
const minEdgesToCoarsen = 8

// coarsen builds one coarser curve.Network by grouping each chain's
// edges into consecutive pairs (a trailing odd edge stands alone),
// spec.md §4.3's "contract every other vertex" rule expressed as an
// edge-grouping so that chain endpoints (junctions, pinned vertices)
// are always retained regardless of parity.
func coarsen(net *curve.Network) (*curve.Network, coarseMap) {
	chains := walkChains(net)

	cm := coarseMap{
		CoarseOf:     make([]int, net.NumVertices()),
		ParentEdgeOf: make([]int, net.NumEdges()),
	}
	for i := range cm.CoarseOf {
		cm.CoarseOf[i] = -1
	}
	for i := range cm.ParentEdgeOf {
		cm.ParentEdgeOf[i] = -1
	}

	var positions []curve.Vec3
	assignCoarse := func(parentV int) int {
		if c := cm.CoarseOf[parentV]; c >= 0 {
			return c
		}
		c := len(positions)
		positions = append(positions, net.Vertices[parentV].Position)
		cm.CoarseOf[parentV] = c
		cm.RetainedFrom = append(cm.RetainedFrom, parentV)
		return c
	}

	var coarseEdges [][2]int
	for _, c := range chains {
		l := len(c.edges)
		for i := 0; i < l; {
			group := 2
			if l-i < 2 {
				group = l - i
			}
			startV, endV := c.vertices[i], c.vertices[i+group]
			ca, cb := assignCoarse(startV), assignCoarse(endV)
			ce := len(coarseEdges)
			coarseEdges = append(coarseEdges, [2]int{ca, cb})
			for k := i; k < i+group; k++ {
				cm.ParentEdgeOf[c.edges[k]] = ce
			}
			i += group
		}
	}

	coarseNet, err := curve.New(positions, coarseEdges)
	if err != nil {
		// Pathologically small input (e.g. a 2-edge cycle contracting
		// to a self-loop) is excluded by the caller via
		// minEdgesToCoarsen before coarsen is ever invoked.
		panic(err)
	}
	return coarseNet, cm
}
