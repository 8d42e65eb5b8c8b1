package flow

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/curveflow/tpe/bvh"
	"github.com/curveflow/tpe/constraint"
	"github.com/curveflow/tpe/curve"
	"github.com/curveflow/tpe/multigrid"
	"gonum.org/v1/gonum/spatial/r3"
)

const maxLineSearchHalvings = 16

// exactSep is used in place of a user sep when Options.UseBarnesHut is
// false: a tiny admissibility ratio makes nearly every BVH traversal
// fall through to leaves, giving a near-exact O(m^2) energy/gradient
// at the cost of the speed the Barnes-Hut approximation buys.
const exactSep = 1e-9

// StepResult reports the outcome of one FlowSolver.Step call.
type StepResult struct {
	GoodStep         bool
	Energy           float64
	StepSize         float64
	SoboNormZero     bool
	Subdivided       bool
	StepLimitReached bool // caller should stop looping; spec.md's Options.StepLimit was hit on a good step
}

// FlowSolver orchestrates one optimization step, spec.md §4.5: assemble
// the L² gradient via the BVH, the Sobolev gradient via BCT+multigrid+
// projector, a backtracking line search, back-projection, and the
// subdivision trigger.
type FlowSolver struct {
	Net  *curve.Network
	Opts Options

	prevStep         float64
	initialAvgLength float64
	stepCount        int
	subdivideCount   int

	hierarchy *multigrid.Hierarchy // nil until built; rebuilt only when topology changes
}

// NewFlowSolver constructs a solver over net with opts, capturing net's
// current average edge length as the subdivision trigger's baseline.
func NewFlowSolver(net *curve.Network, opts Options) *FlowSolver {
	opts = opts.withDefaults()
	return &FlowSolver{
		Net:              net,
		Opts:             opts,
		prevStep:         1.0,
		initialAvgLength: net.AverageEdgeLength(),
	}
}

// Step runs one iteration of the outer loop and returns its outcome.
// Termination is external, per spec.md §4.5: the caller loops on
// Step until it decides to stop.
func (s *FlowSolver) Step(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	sep := s.Opts.Sep
	if !s.Opts.UseBarnesHut {
		sep = exactSep
	}
	tree, err := bvh.New(s.Net, sep)
	if err != nil {
		return StepResult{}, fmt.Errorf("flow: building BVH: %w", err)
	}
	bhOpt := bvh.Options{Alpha: s.Opts.Alpha, Beta: s.Opts.Beta, Parallel: s.Opts.Parallel}

	e0, err := tree.Energy(bhOpt)
	if err != nil {
		return StepResult{}, fmt.Errorf("flow: evaluating energy: %w", err)
	}
	g, err := tree.Gradient(bhOpt)
	if err != nil {
		return StepResult{}, fmt.Errorf("flow: evaluating gradient: %w", err)
	}

	cset, err := s.buildConstraints()
	if err != nil {
		if !errors.Is(err, constraint.ErrNoActiveConstraints) {
			return StepResult{}, fmt.Errorf("flow: building constraint set: %w", err)
		}
		cset = nil
	}

	disp, err := s.sobolevDirection(g, cset)
	if err != nil {
		return StepResult{}, fmt.Errorf("flow: computing Sobolev gradient: %w", err)
	}

	inner := innerProduct(g, disp)

	t := 2 * s.prevStep
	if t <= 0 {
		t = 1
	}
	accepted := false
	for halving := 0; halving <= maxLineSearchHalvings; halving++ {
		trial := s.Net.Clone()
		trial.ApplyDisplacement(disp, t)

		trialTree, err := bvh.New(trial, sep)
		if err != nil {
			return StepResult{}, fmt.Errorf("flow: building trial BVH: %w", err)
		}
		eTrial, err := trialTree.Energy(bhOpt)
		if err != nil {
			return StepResult{}, fmt.Errorf("flow: evaluating trial energy: %w", err)
		}

		s.Opts.Logger.Printf("flow: line search halving=%d t=%g E0=%g Etrial=%g", halving, t, e0, eTrial)

		if eTrial <= e0-1e-4*t*inner {
			accepted = true
			break
		}
		t /= 2
	}

	if !accepted {
		return StepResult{GoodStep: false}, ErrLineSearchExhausted
	}

	s.Net.ApplyDisplacement(disp, t)
	s.prevStep = t
	s.stepCount++

	result := StepResult{GoodStep: true, Energy: e0, StepSize: t}

	if cset != nil {
		if err := s.backProject(cset); err != nil {
			return result, fmt.Errorf("flow: back-projection: %w", err)
		}
	}

	normRatio := 0.0
	gn, dn := norm(g), norm(disp)
	if gn > 0 && dn > 0 {
		normRatio = inner / (gn * dn)
	}
	if normRatio <= 1e-4 {
		result.SoboNormZero = true
	} else if s.Opts.StepLimit > 0 && s.stepCount >= s.Opts.StepLimit {
		result.StepLimitReached = true
	}

	if s.Net.AverageEdgeLength() > s.Opts.TargetEdgeLengthScale*s.initialAvgLength && s.subdivideCount < s.Opts.SubdivisionLimit {
		newNet, _ := s.Net.Subdivide()
		s.Net = newNet
		s.hierarchy = nil
		s.subdivideCount++
		result.Subdivided = true
	}

	return result, nil
}

// buildConstraints constructs the active constraint set against the
// solver's current network, or returns ErrNoActiveConstraints if
// Options.Constraints produced no rows (e.g. no pinned vertices).
func (s *FlowSolver) buildConstraints() (*constraint.Set, error) {
	if len(s.Opts.Constraints) == 0 {
		return nil, nil
	}
	return constraint.NewSet(s.Net, s.Opts.Constraints...)
}

// sobolevDirection computes ĝ in vertex space: the L² gradient g pulled
// to edge space per channel, solved/projected against the metric
// operator, and pushed back to vertex space. When multigrid is
// disabled the raw L² gradient is used unpreconditioned.
func (s *FlowSolver) sobolevDirection(g []r3.Vec, cset *constraint.Set) ([]r3.Vec, error) {
	if !s.Opts.UseMultigrid {
		return g, nil
	}

	if err := s.ensureHierarchy(); err != nil {
		return nil, err
	}
	a := s.hierarchy.Levels[0].A

	gEdge := s.Net.EdgePull(g)
	m := s.Net.NumEdges()
	ghatEdge := make([]r3.Vec, m)

	var proj *constraint.Projector
	if cset != nil {
		proj = constraint.NewProjector(cset, s.hierarchy, 0, 0)
	}

	for ch := 0; ch < 3; ch++ {
		gc := make([]float64, m)
		for i, v := range gEdge {
			gc[i] = component(v, ch)
		}

		var ghat []float64
		var err error
		if proj != nil {
			proj.Channel = ch
			ghat, err = proj.Project(a, gc)
		} else {
			ghat, _, err = s.hierarchy.SolveCG(a, gc, 1e-2, 200)
		}
		if err != nil {
			return nil, err
		}
		for i, v := range ghat {
			setComponent(&ghatEdge[i], ch, v)
		}
	}

	return s.Net.VertexPush(ghatEdge), nil
}

// ensureHierarchy builds the multigrid hierarchy on first use or after a
// topology change invalidated it, per the lagged-preconditioner design:
// the hierarchy is rebuilt only when s.hierarchy is nil, not every Step.
// The finest level's operator is built at the solver's own
// Alpha/Beta/Sep, the actual Sobolev metric CG solves against; only
// coarser levels fall back to NewHierarchy's canonical exponent pair.
func (s *FlowSolver) ensureHierarchy() error {
	if s.hierarchy != nil {
		return nil
	}
	sep := s.Opts.Sep
	if !s.Opts.UseBarnesHut {
		sep = exactSep
	}
	h, err := multigrid.NewHierarchy(s.Net, s.Opts.MultigridLevels, s.Opts.Alpha, s.Opts.Beta, sep)
	if err != nil {
		return fmt.Errorf("building multigrid hierarchy: %w", err)
	}
	for _, lv := range h.Levels {
		lv.A.Parallel = s.Opts.Parallel
	}
	s.hierarchy = h
	return nil
}

// backProject needs a metric operator even when UseMultigrid is false,
// since the Schur-complement projection is a property of the constraint
// rows and the metric, not of how the outer descent direction was chosen.
func (s *FlowSolver) backProject(cset *constraint.Set) error {
	if err := s.ensureHierarchy(); err != nil {
		return err
	}
	proj := constraint.NewProjector(cset, s.hierarchy, 0, 0)
	return proj.BackProject(s.Net, s.hierarchy.Levels[0].A)
}

func innerProduct(a, b []r3.Vec) float64 {
	sum := 0.0
	for i := range a {
		sum += r3.Dot(a[i], b[i])
	}
	return sum
}

func norm(v []r3.Vec) float64 {
	return math.Sqrt(innerProduct(v, v))
}

func component(v r3.Vec, ch int) float64 {
	switch ch {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func setComponent(v *r3.Vec, ch int, val float64) {
	switch ch {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
}
