package tpe

import (
	"errors"

	"github.com/curveflow/tpe/constraint"
	"github.com/curveflow/tpe/curve"
	"github.com/curveflow/tpe/flow"
	"github.com/curveflow/tpe/multigrid"
)

// Sentinel errors, spec.md §7's consolidated error kinds. Each aliases
// the package-level sentinel actually raised close to its source
// (curve, multigrid, flow, constraint), so a caller depending only on
// this root package sees one flat list without the per-package
// sentinels losing their place next to the code that returns them.
var (
	ErrInvalidTopology            = curve.ErrInvalidTopology
	ErrInvalidExponents           = curve.ErrInvalidExponents
	ErrSolverNonConvergent        = multigrid.ErrSolverNonConvergent
	ErrLineSearchExhausted        = flow.ErrLineSearchExhausted
	ErrConstraintProjectionFailed = constraint.ErrConstraintProjectionFailed
)

// ErrUnknownHandle is returned when a handle does not belong to the
// Engine it was passed to, e.g. after Destroy or a handle minted by a
// different Engine instance.
var ErrUnknownHandle = errors.New("tpe: unknown or destroyed handle")
