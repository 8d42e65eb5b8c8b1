package bvh

import (
	"math"
	"math/rand"
	"testing"

	"github.com/curveflow/tpe/curve"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func regularPolygon(n int) *curve.Network {
	positions := make([]curve.Vec3, n)
	edges := make([][2]int, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		positions[i] = curve.Vec3{X: math.Cos(theta), Y: math.Sin(theta), Z: 0}
		edges[i] = [2]int{i, (i + 1) % n}
	}
	net, err := curve.New(positions, edges)
	if err != nil {
		panic(err)
	}
	return net
}

// directEnergy computes the O(m^2) reference sum implied by spec.md §4.1's
// "Total energy is 1/2 sum_i edge-i-contribution" definition, without any
// Barnes-Hut approximation, used to validate BH-vs-exact consistency.
func directEnergy(net *curve.Network, alpha, beta float64) float64 {
	m := net.NumEdges()
	total := 0.0
	for i := 0; i < m; i++ {
		ei := net.Edges[i]
		for j := 0; j < m; j++ {
			if i == j {
				continue
			}
			ej := net.Edges[j]
			k, _, _ := tangentPointKernel(ei.Midpoint, ej.Midpoint, ei.Tangent, alpha, beta)
			total += k * ei.Length * ej.Length
		}
	}
	return 0.5 * total
}

func TestEnergy_BHConsistencyAsSepShrinks(t *testing.T) {
	net := regularPolygon(64)
	const alpha, beta = 3.0, 6.0

	exact := directEnergy(net, alpha, beta)

	tree, err := New(net, 1e-9)
	if err != nil {
		t.Fatal(err)
	}
	bh, err := tree.Energy(Options{Alpha: alpha, Beta: beta})
	if err != nil {
		t.Fatal(err)
	}
	assert.InDelta(t, exact, bh, 1e-9*math.Max(1, math.Abs(exact)))
}

func TestEnergy_BHApproximatesAtSepOne(t *testing.T) {
	net := regularPolygon(64)
	const alpha, beta = 3.0, 6.0
	exact := directEnergy(net, alpha, beta)

	tree, err := New(net, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	bh, err := tree.Energy(Options{Alpha: alpha, Beta: beta})
	if err != nil {
		t.Fatal(err)
	}
	rel := math.Abs(bh-exact) / exact
	if rel > 0.1 {
		t.Fatalf("BH energy diverges too far from exact: exact=%g bh=%g rel=%g", exact, bh, rel)
	}
}

func TestEnergy_RejectsInvalidExponents(t *testing.T) {
	net := regularPolygon(8)
	tree, err := New(net, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Energy(Options{Alpha: -1, Beta: 4}); err == nil {
		t.Fatal("expected error for alpha <= 0")
	}
	if _, err := tree.Energy(Options{Alpha: 2, Beta: 2}); err == nil {
		t.Fatal("expected error for beta <= alpha+1")
	}
}

func TestGradient_MatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := regularPolygon(24)
	const alpha, beta = 3.0, 6.0

	tree, err := New(net, 1e-9) // near-exact regime for a tight FD check
	if err != nil {
		t.Fatal(err)
	}
	grad, err := tree.Gradient(Options{Alpha: alpha, Beta: beta})
	if err != nil {
		t.Fatal(err)
	}

	energyAt := func(n *curve.Network) float64 {
		tr, err := New(n, 1e-9)
		if err != nil {
			t.Fatal(err)
		}
		e, err := tr.Energy(Options{Alpha: alpha, Beta: beta})
		if err != nil {
			t.Fatal(err)
		}
		return e
	}

	const eps = 1e-4
	for trial := 0; trial < 5; trial++ {
		d := make([]r3.Vec, net.NumVertices())
		var dotGD float64
		for i := range d {
			d[i] = r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
			dotGD += r3.Dot(grad[i], d[i])
		}

		plus := net.Clone()
		for i := range plus.Vertices {
			plus.Vertices[i].Position = r3.Add(plus.Vertices[i].Position, r3.Scale(eps, d[i]))
		}
		plus.RecomputeGeometry()

		minus := net.Clone()
		for i := range minus.Vertices {
			minus.Vertices[i].Position = r3.Sub(minus.Vertices[i].Position, r3.Scale(eps, d[i]))
		}
		minus.RecomputeGeometry()

		fd := (energyAt(plus) - energyAt(minus)) / (2 * eps)
		assert.InDelta(t, fd, dotGD, 1e-4*math.Max(1, math.Abs(fd)))
	}
}

// unitSquare is the 4-edge unit square of spec.md §8 scenario S4: each
// edge has unit length. For the opposite edge the midpoint displacement
// has length 1 and is orthogonal to the near tangent (k = 1/1); for an
// adjacent edge it has length sqrt(1/2) with projected part 1/2
// (k = 0.25/0.25). So every k_{2,4}(m_i, m_j, T_i) is exactly 1 and the
// closed-form energy over the 12 ordered pairs is 0.5*12 = 6.
func unitSquare() *curve.Network {
	net, err := curve.New([]curve.Vec3{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 0, Y: 1, Z: 0},
	}, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}})
	if err != nil {
		panic(err)
	}
	return net
}

func TestEnergy_MatchesClosedFormOnUnitSquare(t *testing.T) {
	net := unitSquare()
	tree, err := New(net, 1e-9) // near-zero sep forces exact leaf-level traversal
	if err != nil {
		t.Fatal(err)
	}
	energy, err := tree.Energy(Options{Alpha: 2, Beta: 4})
	if err != nil {
		t.Fatal(err)
	}
	assert.InDelta(t, 6.0, energy, 1e-12)
}

func TestNew_BuildsSingleEdgeTree(t *testing.T) {
	net, err := curve.New([]curve.Vec3{{}, {X: 1}}, [][2]int{{0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(net, 1.0); err != nil {
		t.Fatalf("unexpected error building single-edge tree: %v", err)
	}
}

func TestNew_RejectsNonPositiveSep(t *testing.T) {
	net := regularPolygon(8)
	if _, err := New(net, 0); err == nil {
		t.Fatal("expected error for sep <= 0")
	}
}
