// Package flow implements FlowSolver: the outer optimization loop that
// composes the BVH energy/gradient, the BCT+multigrid Sobolev solve,
// and the constraint projector into one line-search step, spec.md §4.5.
package flow

import (
	"errors"
	"io"
	"log"

	"github.com/curveflow/tpe/constraint"
)

// ErrLineSearchExhausted is returned by Step when the Armijo backtracking
// line search fails within the halving budget, spec.md §7.
var ErrLineSearchExhausted = errors.New("flow: line search exhausted step halvings")

// Options configures a FlowSolver, spec.md §6's flow-solver configuration.
type Options struct {
	Alpha, Beta float64
	Sep         float64 // admissibility ratio, default 1.0

	UseMultigrid  bool
	UseBarnesHut  bool
	Constraints   []constraint.Kind
	MultigridLevels int

	SubdivisionLimit      int
	StepLimit             int
	TargetEdgeLengthScale float64 // subdivide when AverageEdgeLength() exceeds this x the initial average

	// Parallel enables fork-join accumulation throughout BVH/BCT/multigrid.
	// Disabling it trades speed for the bit-for-bit single-threaded
	// determinism spec.md §5 promises.
	Parallel bool

	// Logger receives one line per line-search trial (V-cycles are not
	// logged); nil-safe, defaulting to a discard logger, following the
	// teacher's plain fmt/log diagnostics rather than a structured
	// logging framework (grounded in DESIGN.md).
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Sep <= 0 {
		o.Sep = 1.0
	}
	if o.MultigridLevels <= 0 {
		o.MultigridLevels = 6
	}
	if o.SubdivisionLimit <= 0 {
		o.SubdivisionLimit = 4
	}
	if o.StepLimit <= 0 {
		o.StepLimit = 1000
	}
	if o.TargetEdgeLengthScale <= 0 {
		o.TargetEdgeLengthScale = 2.0
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
	return o
}
