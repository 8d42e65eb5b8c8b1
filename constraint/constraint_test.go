package constraint

import (
	"math"
	"testing"

	"github.com/curveflow/tpe/curve"
	"github.com/curveflow/tpe/multigrid"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func openArc(n int) *curve.Network {
	positions := make([]curve.Vec3, n)
	edges := make([][2]int, n-1)
	for i := 0; i < n; i++ {
		theta := math.Pi * float64(i) / float64(n-1)
		positions[i] = curve.Vec3{X: math.Cos(theta), Y: math.Sin(theta), Z: 0}
	}
	for i := 0; i < n-1; i++ {
		edges[i] = [2]int{i, i + 1}
	}
	net, err := curve.New(positions, edges)
	if err != nil {
		panic(err)
	}
	return net
}

func TestNewSet_BarycenterRowMatchesNetworkBarycenter(t *testing.T) {
	net := openArc(16)
	set, err := NewSet(net, Barycenter)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Rows) != 1 {
		t.Fatalf("expected exactly 1 barycenter row, got %d", len(set.Rows))
	}
	assert.InDelta(t, net.Barycenter().X, set.Baseline[0].X, 1e-12)
	assert.InDelta(t, net.Barycenter().Y, set.Baseline[0].Y, 1e-12)
}

func TestNewSet_RejectsNoActiveRows(t *testing.T) {
	net := openArc(8)
	_, err := NewSet(net, PinnedPosition)
	if err != ErrNoActiveConstraints {
		t.Fatalf("expected ErrNoActiveConstraints, got %v", err)
	}
}

func TestResidual_ZeroAtConstruction(t *testing.T) {
	net := openArc(16)
	net.Vertices[0].PinnedPosition = true
	net.Vertices[15].PinnedPosition = true
	set, err := NewSet(net, Barycenter, PinnedPosition)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range set.Residual() {
		assert.InDelta(t, 0, r.X, 1e-12)
		assert.InDelta(t, 0, r.Y, 1e-12)
	}
}

func TestBackProject_CorrectsPinnedEndpointDrift(t *testing.T) {
	net := openArc(32)
	net.Vertices[0].PinnedPosition = true
	net.Vertices[31].PinnedPosition = true

	set, err := NewSet(net, PinnedPosition)
	if err != nil {
		t.Fatal(err)
	}
	h, err := multigrid.NewHierarchy(net, 3, 3.0, 6.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	p := NewProjector(set, h, 0, 0)

	// Perturb every vertex, simulating an unconstrained line step.
	for i := range net.Vertices {
		net.Vertices[i].Position.X += 0.01
	}
	net.RecomputeGeometry()

	if err := p.BackProject(net, h.Levels[0].A); err != nil {
		t.Fatalf("back-projection failed: %v", err)
	}

	for _, r := range set.Residual() {
		if r3.Norm(r) > 1e-6 {
			t.Fatalf("residual %v exceeds tolerance after back-projection", r)
		}
	}
}
