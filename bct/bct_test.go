package bct

import (
	"math"
	"math/rand"
	"testing"

	"github.com/curveflow/tpe/curve"
	"github.com/stretchr/testify/assert"
)

func randomPolyline(n int, rng *rand.Rand) *curve.Network {
	positions := make([]curve.Vec3, n)
	edges := make([][2]int, n)
	r := 0.0
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		r = 1 + 0.1*rng.NormFloat64()
		positions[i] = curve.Vec3{X: r * math.Cos(theta), Y: r * math.Sin(theta), Z: 0.05 * rng.NormFloat64()}
		edges[i] = [2]int{i, (i + 1) % n}
	}
	net, err := curve.New(positions, edges)
	if err != nil {
		panic(err)
	}
	return net
}

// denseOperator re-derives A directly from the raw kernel G_s, rather
// than calling Tree.Apply, so the comparison below is not vacuous.
func denseOperator(net *curve.Network, s float64, v []float64) []float64 {
	m := net.NumEdges()
	y := make([]float64, m)
	for i := 0; i < m; i++ {
		ei := net.Edges[i]
		for j := 0; j < m; j++ {
			if i == j {
				y[i] += math.Pow(ei.Length, -2*s) * v[i]
				continue
			}
			ej := net.Edges[j]
			y[i] += gs(ei.Midpoint, ej.Midpoint, s) * ei.Length * ej.Length * v[j]
		}
	}
	return y
}

func TestApply_MatchesDenseOperator(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	net := randomPolyline(128, rng)
	const alpha, beta = 3.0, 6.0

	bt, err := NewTree(net, 1.0, alpha, beta)
	if err != nil {
		t.Fatal(err)
	}

	v := make([]float64, net.NumEdges())
	for i := range v {
		v[i] = rng.NormFloat64()
	}

	got := bt.Apply(v)
	want := denseOperator(net, bt.S, v)

	num, den := 0.0, 0.0
	for i := range got {
		num += (got[i] - want[i]) * (got[i] - want[i])
		den += want[i] * want[i]
	}
	rel := math.Sqrt(num / den)
	assert.LessOrEqual(t, rel, 2e-3, "BCT-vs-dense relative error too large: %g", rel)
}

func TestApply_IsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	net := randomPolyline(48, rng)
	bt, err := NewTree(net, 1.0, 3.0, 6.0)
	if err != nil {
		t.Fatal(err)
	}

	m := net.NumEdges()
	u := make([]float64, m)
	v := make([]float64, m)
	for i := 0; i < m; i++ {
		u[i] = rng.NormFloat64()
		v[i] = rng.NormFloat64()
	}

	au := bt.Apply(u)
	av := bt.Apply(v)

	var uTav, vTau float64
	for i := 0; i < m; i++ {
		uTav += u[i] * av[i]
		vTau += v[i] * au[i]
	}
	assert.InDelta(t, uTav, vTau, 1e-6*math.Max(1, math.Abs(uTav)))
}

func TestApply_IsPositiveDefinite(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	net := randomPolyline(32, rng)
	bt, err := NewTree(net, 1.0, 3.0, 6.0)
	if err != nil {
		t.Fatal(err)
	}

	m := net.NumEdges()
	for trial := 0; trial < 10; trial++ {
		v := make([]float64, m)
		for i := range v {
			v[i] = rng.NormFloat64()
		}
		av := bt.Apply(v)
		var quad float64
		for i := range v {
			quad += v[i] * av[i]
		}
		if quad <= 0 {
			t.Fatalf("trial %d: v^T*A*v = %g, expected strictly positive", trial, quad)
		}
	}
}

func TestApplySparse_MatchesInadmissiblePlusDiagonalPortionOfApply(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	net := randomPolyline(40, rng)
	bt, err := NewTree(net, 1.0, 3.0, 6.0)
	if err != nil {
		t.Fatal(err)
	}

	m := net.NumEdges()
	v := make([]float64, m)
	for i := range v {
		v[i] = rng.NormFloat64()
	}

	sparseResult := bt.ApplySparse(v)

	// Independently reconstruct the same inadmissible+diagonal portion
	// from the raw leafPair/diag data, not by calling ApplySparse again.
	want := make([]float64, m)
	for i, d := range bt.Diag {
		want[i] = d * v[i]
	}
	for _, p := range bt.inadm {
		want[p.I] += p.Weight * v[p.J]
		want[p.J] += p.Weight * v[p.I]
	}

	for i := range want {
		assert.InDelta(t, want[i], sparseResult[i], 1e-9*math.Max(1, math.Abs(want[i])))
	}
}

func TestNewTree_RejectsInvalidParameters(t *testing.T) {
	net := randomPolyline(8, rand.New(rand.NewSource(1)))
	if _, err := NewTree(net, 0, 3.0, 6.0); err == nil {
		t.Fatal("expected error for sep <= 0")
	}
	if _, err := NewTree(net, 1.0, -1, 6.0); err == nil {
		t.Fatal("expected error for alpha <= 0")
	}
	if _, err := NewTree(net, 1.0, 3.0, 1.0); err == nil {
		t.Fatal("expected error for non-positive derived Sobolev order s")
	}
}
