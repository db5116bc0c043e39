package broadphase

/// A line segment (edge) shape. These can be connected in chains or loops
/// to other edge shapes.
type EdgeShape struct {
	/// These are the edge vertices
	Vertex1, Vertex2 Vec2
	Radius           float64
}

func MakeEdgeShape(v1, v2 Vec2) EdgeShape {
	return EdgeShape{
		Vertex1: v1,
		Vertex2: v2,
		Radius:  PolygonRadius,
	}
}

func NewEdgeShape(v1, v2 Vec2) *EdgeShape {
	res := MakeEdgeShape(v1, v2)
	return &res
}

func (edge *EdgeShape) Set(v1 Vec2, v2 Vec2) {
	edge.Vertex1 = v1
	edge.Vertex2 = v2
}

func (edge EdgeShape) Clone() Shape {
	clone := edge
	return &clone
}

func (edge EdgeShape) GetType() ShapeType {
	return ShapeEdge
}

func (edge EdgeShape) GetRadius() float64 {
	return edge.Radius
}

func (edge EdgeShape) GetChildCount() int {
	return 1
}

func (edge EdgeShape) ComputeAABB(aabb *AABB, xf Transform, childIndex int) {
	v1 := TransformVec2Mul(xf, edge.Vertex1)
	v2 := TransformVec2Mul(xf, edge.Vertex2)

	r := Vec2{edge.Radius, edge.Radius}
	aabb.LowerBound = Vec2Min(v1, v2).Sub(r)
	aabb.UpperBound = Vec2Max(v1, v2).Add(r)
}
