package curve

import "gonum.org/v1/gonum/spatial/r3"

// EdgePull maps a vertex-indexed vector field to an edge-indexed one by
// averaging each edge's two endpoint values. This is the embedding used
// throughout the metric/constraint layer to express a per-vertex
// quantity (a gradient, a displacement) against the edge-indexed
// fractional Sobolev operator.
func (n *Network) EdgePull(v []Vec3) []Vec3 {
	out := make([]Vec3, len(n.Edges))
	for i, e := range n.Edges {
		out[i] = r3.Scale(0.5, r3.Add(v[e.Prev], v[e.Next]))
	}
	return out
}

// VertexPush maps the other way: it scatters an edge-indexed vector
// field back to vertices by a length-weighted average over each
// vertex's incident edges. Because of that normalization it is not the
// exact transpose of EdgePull.
func (n *Network) VertexPush(v []Vec3) []Vec3 {
	out := make([]Vec3, len(n.Vertices))
	weight := make([]float64, len(n.Vertices))
	for i, e := range n.Edges {
		out[e.Prev] = r3.Add(out[e.Prev], r3.Scale(e.Length, v[i]))
		out[e.Next] = r3.Add(out[e.Next], r3.Scale(e.Length, v[i]))
		weight[e.Prev] += e.Length
		weight[e.Next] += e.Length
	}
	for i := range out {
		if weight[i] > 0 {
			out[i] = r3.Scale(1/weight[i], out[i])
		}
	}
	return out
}
