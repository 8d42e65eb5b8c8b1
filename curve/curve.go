// Package curve implements CurveNetwork: the vertex/edge topology and
// geometry of a polygonal space curve embedded in R3, following the flat
// struct-plus-plain-constructor style of the teacher's element package
// (bidirectional index tables rather than owning pointers between
// vertices and edges, per the "cyclic data" design note).
package curve

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is the ambient-space vector type used throughout this module.
type Vec3 = r3.Vec

// Sentinel error kinds, tested with errors.Is by callers per the error
// handling design.
var (
	ErrInvalidTopology  = errors.New("curve: invalid topology")
	ErrInvalidExponents = errors.New("curve: invalid tangent-point exponents")
)

// Vertex holds a curve vertex's position, incident edges, and pin state.
type Vertex struct {
	Index    int
	Position Vec3

	// IncidentEdges lists the global indices of edges touching this vertex.
	// Length 1 => endpoint, 2 => interior, >=3 => junction.
	IncidentEdges []int

	PinnedPosition bool
	PinnedTangent  bool
	PinnedToSurface bool

	// SurfaceSDF is consulted only when PinnedToSurface is set; nil
	// otherwise. It returns the signed distance and its gradient at x,
	// used by the constraint package to linearize the surface pin.
	SurfaceSDF func(x Vec3) (dist float64, grad Vec3)
}

// Edge holds a curve edge's endpoint indices and cached geometry.
type Edge struct {
	Index int
	Prev  int // vertex index
	Next  int // vertex index

	Length   float64
	Midpoint Vec3
	Tangent  Vec3 // unit tangent, (p1-p0)/length
}

// Network owns the vertices and edges of one curve. Topology (edge
// endpoints, incidence) is immutable within a step; only positions move.
// BVH, BCT, multigrid, and constraint state are ephemeral and owned by
// the flow solver, never by Network itself, per the lifecycle rules.
type Network struct {
	Vertices []Vertex
	Edges    []Edge
}

// New validates and constructs a Network from raw position/edge arrays,
// exactly the create_curve(positions, edges) operation of the external
// interface.
func New(positions []Vec3, edges [][2]int) (*Network, error) {
	if len(positions) == 0 || len(edges) == 0 {
		return nil, fmt.Errorf("curve: empty curve (n=%d, m=%d): %w", len(positions), len(edges), ErrInvalidTopology)
	}

	n := &Network{
		Vertices: make([]Vertex, len(positions)),
		Edges:    make([]Edge, len(edges)),
	}
	for i, p := range positions {
		n.Vertices[i] = Vertex{Index: i, Position: p}
	}

	seen := make(map[[2]int]struct{}, len(edges))
	for i, e := range edges {
		u, v := e[0], e[1]
		if u < 0 || u >= len(positions) || v < 0 || v >= len(positions) {
			return nil, fmt.Errorf("curve: edge %d references out-of-range vertex (%d,%d) of %d: %w", i, u, v, len(positions), ErrInvalidTopology)
		}
		if u == v {
			return nil, fmt.Errorf("curve: edge %d is a self-loop at vertex %d: %w", i, u, ErrInvalidTopology)
		}
		key := [2]int{u, v}
		if u > v {
			key = [2]int{v, u}
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("curve: duplicate edge (%d,%d): %w", u, v, ErrInvalidTopology)
		}
		seen[key] = struct{}{}

		n.Edges[i] = Edge{Index: i, Prev: u, Next: v}
		n.Vertices[u].IncidentEdges = append(n.Vertices[u].IncidentEdges, i)
		n.Vertices[v].IncidentEdges = append(n.Vertices[v].IncidentEdges, i)
	}

	n.RecomputeGeometry()
	return n, nil
}

// RecomputeGeometry refreshes per-edge length, midpoint, and tangent from
// current vertex positions. Called after any position update; topology is
// left untouched.
func (n *Network) RecomputeGeometry() {
	for i := range n.Edges {
		e := &n.Edges[i]
		p0 := n.Vertices[e.Prev].Position
		p1 := n.Vertices[e.Next].Position
		d := r3.Sub(p1, p0)
		length := r3.Norm(d)
		e.Length = length
		e.Midpoint = r3.Scale(0.5, r3.Add(p0, p1))
		if length > 0 {
			e.Tangent = r3.Scale(1/length, d)
		} else {
			e.Tangent = Vec3{}
		}
	}
}

// NumVertices returns the vertex count.
func (n *Network) NumVertices() int { return len(n.Vertices) }

// NumEdges returns the edge count, i.e. m in spec.md's notation.
func (n *Network) NumEdges() int { return len(n.Edges) }

// TotalLength returns the sum of edge lengths.
func (n *Network) TotalLength() float64 {
	total := 0.0
	for _, e := range n.Edges {
		total += e.Length
	}
	return total
}

// AverageEdgeLength returns TotalLength()/NumEdges(), used by the flow
// solver's subdivision trigger.
func (n *Network) AverageEdgeLength() float64 {
	if len(n.Edges) == 0 {
		return 0
	}
	return n.TotalLength() / float64(len(n.Edges))
}

// Barycenter returns the length-weighted mean position of the curve's
// edges (the dual-mass weighting used throughout the metric operator).
func (n *Network) Barycenter() Vec3 {
	var sum Vec3
	total := 0.0
	for _, e := range n.Edges {
		sum = r3.Add(sum, r3.Scale(e.Length, e.Midpoint))
		total += e.Length
	}
	if total == 0 {
		return Vec3{}
	}
	return r3.Scale(1/total, sum)
}

// Clone returns a deep copy of the network, used by the line search to
// evaluate a trial step without mutating the accepted state.
func (n *Network) Clone() *Network {
	c := &Network{
		Vertices: make([]Vertex, len(n.Vertices)),
		Edges:    make([]Edge, len(n.Edges)),
	}
	copy(c.Edges, n.Edges)
	for i, v := range n.Vertices {
		c.Vertices[i] = v
		c.Vertices[i].IncidentEdges = append([]int(nil), v.IncidentEdges...)
	}
	return c
}

// ApplyDisplacement moves every vertex by -t*disp[i] (the line-search step
// x <- x - t*ghat) and refreshes cached edge geometry.
func (n *Network) ApplyDisplacement(disp []Vec3, t float64) {
	for i := range n.Vertices {
		n.Vertices[i].Position = r3.Sub(n.Vertices[i].Position, r3.Scale(t, disp[i]))
	}
	n.RecomputeGeometry()
}
