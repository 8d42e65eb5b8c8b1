package curve

// PotentialKind tags the variant of an external plug-in potential. The
// core owns only TangentPoint; the rest are declared so the interface
// point exists for the out-of-scope collaborators named in spec.md §1,
// following the "tagged variant instead of runtime polymorphism" design
// note that replaces the upstream Potential/Obstacle class hierarchy.
type PotentialKind uint8

const (
	// TangentPoint is the only potential this core evaluates; it is not
	// dispatched through Potential at all (see bvh.Tree.Energy) but is
	// listed here for completeness of the variant.
	TangentPoint PotentialKind = iota
	Length
	LengthDiff
	PinBending
	VectorField
	Mesh
	Plane
	Sphere
)

// Potential is a tagged-variant contract for obstacle/regularizer terms
// external collaborators may plug in alongside the tangent-point energy.
// This core never evaluates Length, PinBending, or the obstacle variants
// through this interface: per-edge length and pinned-tangent terms are
// implemented directly as constraint rows (see package constraint),
// because that is how spec.md's ConstraintSet actually consumes them.
// Mesh/Plane/Sphere/VectorField obstacle kernels and the undocumented
// upstream "area" potential are intentionally left unimplemented.
type Potential interface {
	Kind() PotentialKind
	Energy(n *Network) float64
	Gradient(n *Network) []Vec3 // length NumVertices()
}
