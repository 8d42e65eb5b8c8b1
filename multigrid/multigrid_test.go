package multigrid

import (
	"math"
	"math/rand"
	"testing"

	"github.com/curveflow/tpe/curve"
	"github.com/stretchr/testify/assert"
)

func smoothClosedCurve(n int, rng *rand.Rand) *curve.Network {
	positions := make([]curve.Vec3, n)
	edges := make([][2]int, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		jitter := 0.01 * rng.NormFloat64()
		positions[i] = curve.Vec3{
			X: (1 + 0.05*math.Cos(3*theta) + jitter) * math.Cos(theta),
			Y: (1 + 0.05*math.Cos(3*theta) + jitter) * math.Sin(theta),
			Z: 0.05 * math.Sin(2*theta),
		}
		edges[i] = [2]int{i, (i + 1) % n}
	}
	net, err := curve.New(positions, edges)
	if err != nil {
		panic(err)
	}
	return net
}

func TestNewHierarchy_CoarsensGeometrically(t *testing.T) {
	net := smoothClosedCurve(128, rand.New(rand.NewSource(1)))
	h, err := NewHierarchy(net, 5, 3.0, 6.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Levels) < 2 {
		t.Fatalf("expected multiple levels, got %d", len(h.Levels))
	}
	for i := 1; i < len(h.Levels); i++ {
		prev, cur := h.Levels[i-1].Net.NumEdges(), h.Levels[i].Net.NumEdges()
		if cur >= prev {
			t.Fatalf("level %d did not coarsen: %d -> %d", i, prev, cur)
		}
		if h.Levels[i].P == nil || h.Levels[i].R == nil {
			t.Fatalf("level %d missing transfer operators", i)
		}
	}
}

func TestSolveCG_ConvergesOnSmoothCurve(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	net := smoothClosedCurve(96, rng)
	h, err := NewHierarchy(net, 4, 3.0, 6.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	a := h.Levels[0].A
	m := net.NumEdges()
	b := make([]float64, m)
	for i := range b {
		b[i] = rng.NormFloat64()
	}

	x, stats, err := h.SolveCG(a, b, 1e-2, 200)
	if err != nil {
		t.Fatalf("CG did not converge: %v (stats=%+v)", err, stats)
	}

	for i := 1; i < len(stats.Residuals); i++ {
		assert.LessOrEqual(t, stats.Residuals[i], stats.Residuals[i-1]*1.01,
			"residual should decrease monotonically (modulo float noise) at iteration %d", i)
	}

	maxIterExpected := 20 * int(math.Log(float64(m))+1)
	assert.LessOrEqual(t, stats.Iterations, maxIterExpected,
		"expected convergence within K log m iterations, took %d for m=%d", stats.Iterations, m)

	ax := a.Apply(x)
	num, den := 0.0, 0.0
	for i := range b {
		num += (ax[i] - b[i]) * (ax[i] - b[i])
		den += b[i] * b[i]
	}
	assert.LessOrEqual(t, math.Sqrt(num/den), 1.1e-2)
}

func TestNewHierarchy_FinestLevelUsesCallerExponents(t *testing.T) {
	net := smoothClosedCurve(48, rand.New(rand.NewSource(4)))
	// Variables, not constants, so wantS below is rounded in float64 the
	// same way NewTree computes S.
	alpha, beta := 2.5, 5.0 // deliberately not the (3,6) default, per beta > alpha+1

	h, err := NewHierarchy(net, 3, alpha, beta, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	wantS := (beta-1)/alpha - 1
	if h.Levels[0].A.S != wantS {
		t.Fatalf("finest level S = %g, want %g derived from caller's alpha=%g beta=%g", h.Levels[0].A.S, wantS, alpha, beta)
	}

	defaultAlpha, defaultBeta := levelDefaultAlpha, levelDefaultBeta
	defaultS := (defaultBeta-1)/defaultAlpha - 1
	if len(h.Levels) > 1 && h.Levels[1].A.S != defaultS {
		t.Fatalf("coarse level S = %g, want canonical %g", h.Levels[1].A.S, defaultS)
	}
}

func TestPrecondition_IsApproximatelyInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	net := smoothClosedCurve(64, rng)
	h, err := NewHierarchy(net, 4, 3.0, 6.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	a := h.Levels[0].A

	m := net.NumEdges()
	r := make([]float64, m)
	for i := range r {
		r[i] = rng.NormFloat64()
	}

	z := h.Precondition(r)
	az := a.Apply(z)

	var num, den float64
	for i := range r {
		num += (az[i] - r[i]) * (az[i] - r[i])
		den += r[i] * r[i]
	}
	rel := math.Sqrt(num / den)
	if rel > 1.0 {
		t.Fatalf("one V-cycle should make at least some progress toward A^-1*r, relative residual %g", rel)
	}
}
