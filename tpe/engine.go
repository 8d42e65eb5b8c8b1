// Package tpe is the external API surface of the tangent-point curve
// flow engine: opaque uuid.UUID-backed handles over curve, BVH, and BCT
// state, owned by one Engine instance per embedder rather than a
// package-level registry, per spec.md §9's "no global singletons" rule.
package tpe

import (
	"fmt"
	"sync"

	"github.com/curveflow/tpe/bct"
	"github.com/curveflow/tpe/bvh"
	"github.com/curveflow/tpe/curve"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Handle is the common type of every opaque handle this package hands
// back to the embedder.
type Handle = uuid.UUID

// CurveHandle, BVHHandle, and BCTHandle distinguish handle kinds so a
// caller cannot pass a BVHHandle where a CurveHandle is expected
// without a compile error.
type (
	CurveHandle Handle
	BVHHandle   Handle
	BCTHandle   Handle
)

// Engine owns the handle registry for one embedder session. The zero
// value is not usable; construct with NewEngine.
type Engine struct {
	mu sync.Mutex

	curves map[uuid.UUID]*curve.Network
	bvhs   map[uuid.UUID]*bvh.Tree
	bcts   map[uuid.UUID]*bct.Tree
}

// NewEngine constructs an Engine with an empty handle registry.
func NewEngine() *Engine {
	return &Engine{
		curves: make(map[uuid.UUID]*curve.Network),
		bvhs:   make(map[uuid.UUID]*bvh.Tree),
		bcts:   make(map[uuid.UUID]*bct.Tree),
	}
}

// CreateCurve validates and stores a new curve network, spec.md §6's
// create_curve operation.
func (e *Engine) CreateCurve(positions []r3.Vec, edges [][2]int) (CurveHandle, error) {
	net, err := curve.New(positions, edges)
	if err != nil {
		return CurveHandle{}, fmt.Errorf("tpe: CreateCurve: %w", err)
	}
	id := uuid.New()
	e.mu.Lock()
	e.curves[id] = net
	e.mu.Unlock()
	return CurveHandle(id), nil
}

// CreateBVH builds a BVH bound to c's current positions, spec.md §6's
// create_bvh operation. sep uses the default admissibility ratio 1.0.
func (e *Engine) CreateBVH(c CurveHandle) (BVHHandle, error) {
	net, err := e.curve(c)
	if err != nil {
		return BVHHandle{}, err
	}
	tree, err := bvh.New(net, 1.0)
	if err != nil {
		return BVHHandle{}, fmt.Errorf("tpe: CreateBVH: %w", err)
	}
	id := uuid.New()
	e.mu.Lock()
	e.bvhs[id] = tree
	e.mu.Unlock()
	return BVHHandle(id), nil
}

// CreateBCT builds a block-cluster tree over c with the given
// admissibility ratio and tangent-point exponents, spec.md §6's
// create_bct operation.
func (e *Engine) CreateBCT(c CurveHandle, sep, alpha, beta float64) (BCTHandle, error) {
	net, err := e.curve(c)
	if err != nil {
		return BCTHandle{}, err
	}
	tree, err := bct.NewTree(net, sep, alpha, beta)
	if err != nil {
		return BCTHandle{}, fmt.Errorf("tpe: CreateBCT: %w", err)
	}
	id := uuid.New()
	e.mu.Lock()
	e.bcts[id] = tree
	e.mu.Unlock()
	return BCTHandle(id), nil
}

// ApplyMetric applies b's metric operator to v, spec.md §6's
// apply_metric operation.
func (e *Engine) ApplyMetric(b BCTHandle, v []float64) ([]float64, error) {
	tree, err := e.bct(b)
	if err != nil {
		return nil, err
	}
	return tree.Apply(v), nil
}

// EvaluateEnergy evaluates the Barnes-Hut tangent-point energy of c
// using bvh's tree, spec.md §6's evaluate_energy operation.
func (e *Engine) EvaluateEnergy(c CurveHandle, b BVHHandle, alpha, beta float64) (float64, error) {
	if _, err := e.curve(c); err != nil {
		return 0, err
	}
	tree, err := e.bvhTree(b)
	if err != nil {
		return 0, err
	}
	energy, err := tree.Energy(bvh.Options{Alpha: alpha, Beta: beta, Parallel: true})
	if err != nil {
		return 0, fmt.Errorf("tpe: EvaluateEnergy: %w", err)
	}
	return energy, nil
}

// EvaluateGradient evaluates the L² gradient of c's tangent-point
// energy, spec.md §6's evaluate_gradient operation.
func (e *Engine) EvaluateGradient(c CurveHandle, b BVHHandle, alpha, beta float64) ([]r3.Vec, error) {
	if _, err := e.curve(c); err != nil {
		return nil, err
	}
	tree, err := e.bvhTree(b)
	if err != nil {
		return nil, err
	}
	grad, err := tree.Gradient(bvh.Options{Alpha: alpha, Beta: beta, Parallel: true})
	if err != nil {
		return nil, fmt.Errorf("tpe: EvaluateGradient: %w", err)
	}
	return grad, nil
}

// Destroy releases the state behind any handle kind this package
// issues. Destroying an unknown handle is a no-op.
func (e *Engine) Destroy(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.curves, h)
	delete(e.bvhs, h)
	delete(e.bcts, h)
}

func (e *Engine) curve(h CurveHandle) (*curve.Network, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	net, ok := e.curves[uuid.UUID(h)]
	if !ok {
		return nil, fmt.Errorf("tpe: curve handle: %w", ErrUnknownHandle)
	}
	return net, nil
}

func (e *Engine) bvhTree(h BVHHandle) (*bvh.Tree, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tree, ok := e.bvhs[uuid.UUID(h)]
	if !ok {
		return nil, fmt.Errorf("tpe: bvh handle: %w", ErrUnknownHandle)
	}
	return tree, nil
}

func (e *Engine) bct(h BCTHandle) (*bct.Tree, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tree, ok := e.bcts[uuid.UUID(h)]
	if !ok {
		return nil, fmt.Errorf("tpe: bct handle: %w", ErrUnknownHandle)
	}
	return tree, nil
}
