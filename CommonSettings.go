package broadphase

import (
	"math"

	"github.com/pkg/errors"
)

const MaxFloat = math.MaxFloat64

/// Machine epsilon for float64. Comparisons against zero in the distance
/// routine use this so that the origin sitting exactly on a simplex boundary
/// does not make GJK oscillate.
const Epsilon = 2.220446049250313e-16

const Pi = math.Pi

/// The maximum number of vertices on a convex polygon.
const MaxPolygonVertices = 8

/// A small length used as a collision and constraint tolerance. Usually it is
/// chosen to be numerically significant, but visually insignificant.
const DefaultLinearSlop = 0.005

/// The fixed iteration cap of the distance routine.
const DefaultMaxGJKIterations = 20

/// Global tuning constants based on meters-kilograms-seconds (MKS) units.
/// A World owns one Settings value; nothing here is package-level mutable state.
type Settings struct {
	/// This is used to fatten AABBs in the dynamic tree. This allows proxies
	/// to move by a small amount without triggering a tree adjustment.
	/// This is in meters.
	AABBExtension float64

	/// This is used to fatten AABBs in the dynamic tree. This is used to predict
	/// the future position based on the current displacement.
	/// This is a dimensionless multiplier.
	AABBMultiplier float64

	/// Margin added around moved proxies and moved grids when looking for
	/// partitions they might now overlap. Scale with the largest body size.
	BroadphaseExpand float64

	/// Hard cap on GJK iterations. Termination guard only.
	MaxGJKIterations int

	/// Number of maps processed concurrently by FindNewContactsParallel.
	Workers int

	/// Invariant violations panic when set, and are logged and skipped otherwise.
	Debug bool
}

func DefaultSettings() Settings {
	return Settings{
		AABBExtension:    0.1,
		AABBMultiplier:   2.0,
		BroadphaseExpand: 0.5,
		MaxGJKIterations: DefaultMaxGJKIterations,
		Workers:          1,
		Debug:            false,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.AABBExtension < 0.0 || !IsValid(s.AABBExtension):
		return errors.Wrapf(ErrInvalidSettings, "aabb extension %v", s.AABBExtension)
	case s.AABBMultiplier < 0.0 || !IsValid(s.AABBMultiplier):
		return errors.Wrapf(ErrInvalidSettings, "aabb multiplier %v", s.AABBMultiplier)
	case s.BroadphaseExpand < 0.0 || !IsValid(s.BroadphaseExpand):
		return errors.Wrapf(ErrInvalidSettings, "broadphase expand %v", s.BroadphaseExpand)
	case s.MaxGJKIterations < 1:
		return errors.Wrapf(ErrInvalidSettings, "gjk iterations %d", s.MaxGJKIterations)
	case s.Workers < 1:
		return errors.Wrapf(ErrInvalidSettings, "workers %d", s.Workers)
	}
	return nil
}

/// Assert guards tree-level caller errors such as destroying a proxy twice.
/// These are never recoverable.
func Assert(a bool) {
	if !a {
		panic("broadphase: assertion failed")
	}
}
