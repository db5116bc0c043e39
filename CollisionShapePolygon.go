package broadphase

/// A convex polygon. It is assumed that the interior of the polygon is to
/// the left of each edge.
/// Polygons have a maximum number of vertices equal to MaxPolygonVertices.
/// Grid tiles are polygon boxes.
type PolygonShape struct {
	Centroid Vec2
	Vertices [MaxPolygonVertices]Vec2
	Normals  [MaxPolygonVertices]Vec2
	Count    int
	Radius   float64
}

func MakePolygonShape() PolygonShape {
	return PolygonShape{Radius: PolygonRadius}
}

func NewPolygonShape() *PolygonShape {
	res := MakePolygonShape()
	return &res
}

/// Build vertices to represent an axis-aligned box centered on the local origin.
/// @param hx the half-width.
/// @param hy the half-height.
func NewBoxShape(hx, hy float64) *PolygonShape {
	poly := NewPolygonShape()
	poly.SetAsBox(hx, hy)
	return poly
}

func (poly PolygonShape) Clone() Shape {
	clone := poly
	return &clone
}

func (poly PolygonShape) GetType() ShapeType {
	return ShapePolygon
}

func (poly PolygonShape) GetRadius() float64 {
	return poly.Radius
}

func (poly PolygonShape) GetChildCount() int {
	return 1
}

func (poly *PolygonShape) SetAsBox(hx float64, hy float64) {
	poly.Count = 4
	poly.Vertices[0] = Vec2{-hx, -hy}
	poly.Vertices[1] = Vec2{hx, -hy}
	poly.Vertices[2] = Vec2{hx, hy}
	poly.Vertices[3] = Vec2{-hx, hy}
	poly.Normals[0] = Vec2{0.0, -1.0}
	poly.Normals[1] = Vec2{1.0, 0.0}
	poly.Normals[2] = Vec2{0.0, 1.0}
	poly.Normals[3] = Vec2{-1.0, 0.0}
	poly.Centroid = Vec2Zero
}

/// Build vertices to represent an oriented box.
/// @param center the center of the box in local coordinates.
/// @param angle the rotation of the box in local coordinates.
func (poly *PolygonShape) SetAsBoxFromCenterAndAngle(hx float64, hy float64, center Vec2, angle float64) {
	poly.SetAsBox(hx, hy)
	poly.Centroid = center

	xf := MakeTransformFromAngle(center, angle)

	for i := 0; i < poly.Count; i++ {
		poly.Vertices[i] = TransformVec2Mul(xf, poly.Vertices[i])
		poly.Normals[i] = RotVec2Mul(xf.Q, poly.Normals[i])
	}
}

func ComputeCentroid(vs []Vec2) Vec2 {
	Assert(len(vs) >= 3)

	c := Vec2Zero
	area := 0.0

	// pRef is the reference point for forming triangles.
	// Its location doesn't change the result (except for rounding error).
	pRef := Vec2Zero
	for _, v := range vs {
		pRef = pRef.Add(v)
	}
	pRef = pRef.Mul(1.0 / float64(len(vs)))

	inv3 := 1.0 / 3.0

	for i := range vs {
		p1 := pRef
		p2 := vs[i]
		p3 := vs[0]
		if i+1 < len(vs) {
			p3 = vs[i+1]
		}

		e1 := p2.Sub(p1)
		e2 := p3.Sub(p1)

		triangleArea := 0.5 * Vec2Cross(e1, e2)
		area += triangleArea

		// Area weighted centroid
		c = c.Add(p1.Add(p2).Add(p3).Mul(triangleArea * inv3))
	}

	Assert(area > Epsilon)
	return c.Mul(1.0 / area)
}

/// Create a convex hull from the given array of local points.
/// The count must be in the range [3, MaxPolygonVertices].
/// Collinear points are handled but not removed. Welded points are removed.
/// Returns false, leaving the polygon untouched, if the hull is degenerate.
func (poly *PolygonShape) Set(vertices []Vec2) bool {
	n := MinInt(len(vertices), MaxPolygonVertices)
	if n < 3 {
		return false
	}

	// Perform welding and copy vertices into local buffer.
	var ps [MaxPolygonVertices]Vec2
	tempCount := 0
	weld := (0.5 * DefaultLinearSlop) * (0.5 * DefaultLinearSlop)

	for i := 0; i < n; i++ {
		v := vertices[i]

		unique := true
		for j := 0; j < tempCount; j++ {
			if Vec2DistanceSquared(v, ps[j]) < weld {
				unique = false
				break
			}
		}

		if unique {
			ps[tempCount] = v
			tempCount++
		}
	}

	n = tempCount
	if n < 3 {
		return false
	}

	// Create the convex hull using the Gift wrapping algorithm
	// http://en.wikipedia.org/wiki/Gift_wrapping_algorithm

	// Find the right most point on the hull
	i0 := 0
	x0 := ps[0][0]
	for i := 1; i < n; i++ {
		x := ps[i][0]
		if x > x0 || (x == x0 && ps[i][1] < ps[i0][1]) {
			i0 = i
			x0 = x
		}
	}

	var hull [MaxPolygonVertices]int
	m := 0
	ih := i0

	for {
		if m >= MaxPolygonVertices {
			return false
		}
		hull[m] = ih

		ie := 0
		for j := 1; j < n; j++ {
			if ie == ih {
				ie = j
				continue
			}

			r := ps[ie].Sub(ps[hull[m]])
			v := ps[j].Sub(ps[hull[m]])
			c := Vec2Cross(r, v)
			if c < 0.0 {
				ie = j
			}

			// Collinearity check
			if c == 0.0 && Vec2LengthSquared(v) > Vec2LengthSquared(r) {
				ie = j
			}
		}

		m++
		ih = ie

		if ie == i0 {
			break
		}
	}

	if m < 3 {
		return false
	}

	poly.Count = m
	for i := 0; i < m; i++ {
		poly.Vertices[i] = ps[hull[i]]
	}

	// Compute normals. Ensure the edges have non-zero length.
	for i := 0; i < m; i++ {
		i2 := 0
		if i+1 < m {
			i2 = i + 1
		}

		edge := poly.Vertices[i2].Sub(poly.Vertices[i])
		Assert(Vec2LengthSquared(edge) > Epsilon*Epsilon)
		poly.Normals[i] = Vec2CrossVectorScalar(edge, 1.0)
		Vec2Normalize(&poly.Normals[i])
	}

	poly.Centroid = ComputeCentroid(poly.Vertices[:m])
	return true
}

func (poly PolygonShape) ComputeAABB(aabb *AABB, xf Transform, childIndex int) {
	lower := TransformVec2Mul(xf, poly.Vertices[0])
	upper := lower

	for i := 1; i < poly.Count; i++ {
		v := TransformVec2Mul(xf, poly.Vertices[i])
		lower = Vec2Min(lower, v)
		upper = Vec2Max(upper, v)
	}

	r := Vec2{poly.Radius, poly.Radius}
	aabb.LowerBound = lower.Sub(r)
	aabb.UpperBound = upper.Add(r)
}
