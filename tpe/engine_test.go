package tpe

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func square() ([]r3.Vec, [][2]int) {
	return []r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 0, Y: 1, Z: 0},
	}, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}
}

func TestEngine_CreateCurveAndEvaluateEnergy(t *testing.T) {
	e := NewEngine()
	positions, edges := square()

	c, err := e.CreateCurve(positions, edges)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.CreateBVH(c)
	if err != nil {
		t.Fatal(err)
	}

	energy, err := e.EvaluateEnergy(c, b, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if energy <= 0 || math.IsNaN(energy) {
		t.Fatalf("expected a finite positive energy, got %g", energy)
	}
}

func TestEngine_DestroyInvalidatesHandle(t *testing.T) {
	e := NewEngine()
	positions, edges := square()
	c, err := e.CreateCurve(positions, edges)
	if err != nil {
		t.Fatal(err)
	}
	e.Destroy(Handle(c))

	if _, err := e.CreateBVH(c); err == nil {
		t.Fatal("expected error using a destroyed curve handle")
	}
}

func TestEngine_ApplyMetricRoundTrips(t *testing.T) {
	e := NewEngine()
	positions, edges := square()
	c, err := e.CreateCurve(positions, edges)
	if err != nil {
		t.Fatal(err)
	}
	bc, err := e.CreateBCT(c, 1.0, 3, 6)
	if err != nil {
		t.Fatal(err)
	}

	v := make([]float64, len(edges))
	for i := range v {
		v[i] = 1
	}
	y, err := e.ApplyMetric(bc, v)
	if err != nil {
		t.Fatal(err)
	}
	if len(y) != len(v) {
		t.Fatalf("expected output length %d, got %d", len(v), len(y))
	}
}

func TestEngine_UnknownHandleFails(t *testing.T) {
	e := NewEngine()
	var c CurveHandle
	if _, err := e.CreateBVH(c); err == nil {
		t.Fatal("expected error for zero-value handle")
	}
}
