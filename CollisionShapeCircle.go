package broadphase

/// A circle shape.
type CircleShape struct {
	/// Position
	P      Vec2
	Radius float64
}

func MakeCircleShape(center Vec2, radius float64) CircleShape {
	return CircleShape{P: center, Radius: radius}
}

func NewCircleShape(center Vec2, radius float64) *CircleShape {
	res := MakeCircleShape(center, radius)
	return &res
}

func (shape CircleShape) Clone() Shape {
	clone := shape
	return &clone
}

func (shape CircleShape) GetType() ShapeType {
	return ShapeCircle
}

func (shape CircleShape) GetRadius() float64 {
	return shape.Radius
}

func (shape CircleShape) GetChildCount() int {
	return 1
}

func (shape CircleShape) ComputeAABB(aabb *AABB, transform Transform, childIndex int) {
	p := transform.P.Add(RotVec2Mul(transform.Q, shape.P))
	aabb.LowerBound = Vec2{p[0] - shape.Radius, p[1] - shape.Radius}
	aabb.UpperBound = Vec2{p[0] + shape.Radius, p[1] + shape.Radius}
}
