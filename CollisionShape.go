package broadphase

/// The radius of the polygon/edge shape skin. This should not be modified. Making
/// this smaller means polygons will have an insufficient buffer for continuous collision.
/// Making it larger may create artifacts for vertex collision.
const PolygonRadius = 2.0 * DefaultLinearSlop

type ShapeType uint8

const (
	ShapeCircle ShapeType = iota
	ShapeEdge
	ShapePolygon
	ShapeChain
)

func (t ShapeType) String() string {
	switch t {
	case ShapeCircle:
		return "circle"
	case ShapeEdge:
		return "edge"
	case ShapePolygon:
		return "polygon"
	case ShapeChain:
		return "chain"
	}
	return "unknown"
}

/// A shape is used for collision detection. Shapes may encapsulate one or
/// more child shapes; every child becomes its own proxy in the broad-phase.
type Shape interface {
	/// Clone the concrete shape. Fixtures own a private copy of their shape.
	Clone() Shape

	/// Get the type of this shape. You can use this to down cast to the concrete shape.
	GetType() ShapeType

	GetRadius() float64

	/// Get the number of child primitives.
	GetChildCount() int

	/// Given a transform, compute the associated axis aligned bounding box for a child shape.
	/// @param aabb returns the axis aligned box.
	/// @param xf the transform of the shape into the frame the box is expressed in.
	/// @param childIndex the child shape
	ComputeAABB(aabb *AABB, xf Transform, childIndex int)
}
