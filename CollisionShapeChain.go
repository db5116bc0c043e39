package broadphase

/// A chain shape is a free form sequence of line segments.
/// The chain has two-sided collision, so you can use inside and outside collision.
/// Therefore, you may use any winding order.
/// Each segment is a child shape and gets its own broad-phase proxy.
/// WARNING: The chain will not collide properly if there are self-intersections.
type ChainShape struct {
	/// The vertices. A loop repeats the first vertex at the end.
	Vertices []Vec2
	Radius   float64
}

func MakeChainShape() ChainShape {
	return ChainShape{Radius: PolygonRadius}
}

func NewChainShape() *ChainShape {
	res := MakeChainShape()
	return &res
}

func (chain *ChainShape) Clear() {
	chain.Vertices = nil
}

/// Create a loop. This automatically adjusts connectivity.
func (chain *ChainShape) CreateLoop(vertices []Vec2) {
	Assert(chain.Vertices == nil)
	Assert(len(vertices) >= 3)

	chain.Vertices = make([]Vec2, len(vertices)+1)
	copy(chain.Vertices, vertices)
	chain.Vertices[len(vertices)] = chain.Vertices[0]
}

/// Create a chain with isolated end vertices.
func (chain *ChainShape) CreateChain(vertices []Vec2) {
	Assert(chain.Vertices == nil)
	Assert(len(vertices) >= 2)

	chain.Vertices = make([]Vec2, len(vertices))
	copy(chain.Vertices, vertices)
}

func (chain ChainShape) Clone() Shape {
	clone := MakeChainShape()
	clone.Radius = chain.Radius
	clone.Vertices = append([]Vec2(nil), chain.Vertices...)
	return &clone
}

func (chain ChainShape) GetType() ShapeType {
	return ShapeChain
}

func (chain ChainShape) GetRadius() float64 {
	return chain.Radius
}

func (chain ChainShape) GetChildCount() int {
	// edge count = vertex count - 1
	return len(chain.Vertices) - 1
}

/// Get a child edge.
func (chain ChainShape) GetChildEdge(index int) EdgeShape {
	Assert(0 <= index && index < len(chain.Vertices)-1)

	edge := MakeEdgeShape(chain.Vertices[index], chain.Vertices[index+1])
	edge.Radius = chain.Radius
	return edge
}

func (chain ChainShape) ComputeAABB(aabb *AABB, xf Transform, childIndex int) {
	Assert(0 <= childIndex && childIndex < len(chain.Vertices)-1)

	v1 := TransformVec2Mul(xf, chain.Vertices[childIndex])
	v2 := TransformVec2Mul(xf, chain.Vertices[childIndex+1])

	r := Vec2{chain.Radius, chain.Radius}
	aabb.LowerBound = Vec2Min(v1, v2).Sub(r)
	aabb.UpperBound = Vec2Max(v1, v2).Add(r)
}
