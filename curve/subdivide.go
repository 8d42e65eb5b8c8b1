package curve

// IndexMap records how vertex and edge indices relate across a Subdivide
// call, so callers (and tests asserting spec.md's S6 scenario) can verify
// that positions at original vertex indices are unchanged rather than
// silently renumbered.
type IndexMap struct {
	// OldToNewVertex[i] is the index of original vertex i in the
	// subdivided network. Subdivide never moves or removes an original
	// vertex, so this is always the identity, but it is returned
	// explicitly rather than assumed.
	OldToNewVertex []int

	// MidpointVertex[e] is the index of the new vertex inserted at the
	// midpoint of original edge e.
	MidpointVertex []int

	// OldToNewEdges[e] holds the two edge indices that replace original
	// edge e, in (prev-half, next-half) order.
	OldToNewEdges [][2]int
}

// Subdivide splits every edge at its midpoint, doubling the edge count.
// Topology is otherwise rebuilt from scratch: per the lifecycle rules,
// callers must discard any BVH/BCT/multigrid state built against the old
// topology after calling this. Pin flags on original vertices are carried
// over unchanged; new midpoint vertices are never pinned.
func (n *Network) Subdivide() (*Network, IndexMap) {
	oldNumV := len(n.Vertices)
	oldNumE := len(n.Edges)

	im := IndexMap{
		OldToNewVertex: make([]int, oldNumV),
		MidpointVertex: make([]int, oldNumE),
		OldToNewEdges:  make([][2]int, oldNumE),
	}

	out := &Network{
		Vertices: make([]Vertex, oldNumV, oldNumV+oldNumE),
		Edges:    make([]Edge, 0, oldNumE*2),
	}

	for i, v := range n.Vertices {
		out.Vertices[i] = Vertex{
			Index:           i,
			Position:        v.Position,
			PinnedPosition:  v.PinnedPosition,
			PinnedTangent:   v.PinnedTangent,
			PinnedToSurface: v.PinnedToSurface,
			SurfaceSDF:      v.SurfaceSDF,
		}
		im.OldToNewVertex[i] = i
	}

	for e, edge := range n.Edges {
		mid := Vertex{
			Index:    len(out.Vertices),
			Position: edge.Midpoint,
		}
		midIdx := mid.Index
		out.Vertices = append(out.Vertices, mid)
		im.MidpointVertex[e] = midIdx

		e0 := Edge{Index: len(out.Edges), Prev: edge.Prev, Next: midIdx}
		out.Edges = append(out.Edges, e0)
		e1 := Edge{Index: len(out.Edges), Prev: midIdx, Next: edge.Next}
		out.Edges = append(out.Edges, e1)

		im.OldToNewEdges[e] = [2]int{e0.Index, e1.Index}

		out.Vertices[edge.Prev].IncidentEdges = append(out.Vertices[edge.Prev].IncidentEdges, e0.Index)
		out.Vertices[midIdx].IncidentEdges = append(out.Vertices[midIdx].IncidentEdges, e0.Index, e1.Index)
		out.Vertices[edge.Next].IncidentEdges = append(out.Vertices[edge.Next].IncidentEdges, e1.Index)
	}

	out.RecomputeGeometry()
	return out, im
}
