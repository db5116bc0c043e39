package broadphase

import (
	"github.com/pkg/errors"
)

/// A distance proxy is used by the GJK algorithm.
/// It encapsulates any shape.
type DistanceProxy struct {
	buffer   [2]Vec2
	Vertices []Vec2
	Radius   float64
}

/// Set the proxy from a shape child. The proxy keeps a reference to the
/// shape's vertices, so the shape must outlive it.
func (p *DistanceProxy) Set(shape Shape, index int) {
	switch s := shape.(type) {
	case *CircleShape:
		p.buffer[0] = s.P
		p.Vertices = p.buffer[:1]
		p.Radius = s.Radius

	case *PolygonShape:
		p.Vertices = s.Vertices[:s.Count]
		p.Radius = s.Radius

	case *EdgeShape:
		p.buffer[0] = s.Vertex1
		p.buffer[1] = s.Vertex2
		p.Vertices = p.buffer[:]
		p.Radius = s.Radius

	case *ChainShape:
		Assert(0 <= index && index < len(s.Vertices)-1)
		p.buffer[0] = s.Vertices[index]
		p.buffer[1] = s.Vertices[index+1]
		p.Vertices = p.buffer[:]
		p.Radius = s.Radius

	default:
		panic(errors.Errorf("broadphase: no distance proxy for %T", shape))
	}
}

func MakeDistanceProxy(shape Shape, index int) DistanceProxy {
	var p DistanceProxy
	p.Set(shape, index)
	return p
}

func (p DistanceProxy) GetVertexCount() int {
	return len(p.Vertices)
}

func (p DistanceProxy) GetVertex(index int) Vec2 {
	Assert(0 <= index && index < len(p.Vertices))
	return p.Vertices[index]
}

/// Get the supporting vertex index in the given direction.
func (p DistanceProxy) GetSupport(d Vec2) int {
	bestIndex := 0
	bestValue := p.Vertices[0].Dot(d)
	for i := 1; i < len(p.Vertices); i++ {
		value := p.Vertices[i].Dot(d)
		if value > bestValue {
			bestIndex = i
			bestValue = value
		}
	}

	return bestIndex
}

func (p DistanceProxy) GetSupportVertex(d Vec2) Vec2 {
	return p.Vertices[p.GetSupport(d)]
}

/// Used to warm start ComputeDistance.
/// Set count to zero on first call. Keep one per shape pair.
type SimplexCache struct {
	Metric float64 ///< length or area
	Count  int
	IndexA [3]int ///< vertices on shape A
	IndexB [3]int ///< vertices on shape B
}

/// Input for ComputeDistance.
/// You have to option to use the shape radii in the computation.
type DistanceInput struct {
	ProxyA     DistanceProxy
	ProxyB     DistanceProxy
	TransformA Transform
	TransformB Transform
	UseRadii   bool
}

/// Output for ComputeDistance.
type DistanceOutput struct {
	PointA     Vec2 ///< closest point on shapeA
	PointB     Vec2 ///< closest point on shapeB
	Distance   float64
	Iterations int ///< number of GJK iterations used
}

type simplexVertex struct {
	wA     Vec2    // support point in proxyA
	wB     Vec2    // support point in proxyB
	w      Vec2    // wB - wA
	a      float64 // barycentric coordinate for closest point
	indexA int     // wA index
	indexB int     // wB index
}

type simplex struct {
	vs    [3]simplexVertex
	count int
}

func (s *simplex) readCache(cache *SimplexCache, proxyA *DistanceProxy, transformA Transform, proxyB *DistanceProxy, transformB Transform) {
	Assert(0 <= cache.Count && cache.Count <= 3)

	// Copy data from cache.
	s.count = cache.Count
	for i := 0; i < s.count; i++ {
		v := &s.vs[i]
		v.indexA = cache.IndexA[i]
		v.indexB = cache.IndexB[i]
		if v.indexA >= proxyA.GetVertexCount() || v.indexB >= proxyB.GetVertexCount() {
			// The cache belongs to different geometry.
			s.count = 0
			break
		}
		v.wA = TransformVec2Mul(transformA, proxyA.GetVertex(v.indexA))
		v.wB = TransformVec2Mul(transformB, proxyB.GetVertex(v.indexB))
		v.w = v.wB.Sub(v.wA)
		v.a = 0.0
	}

	// Compute the new simplex metric, if it is substantially different than
	// old metric then flush the simplex.
	if s.count > 1 {
		metric1 := cache.Metric
		metric2 := s.getMetric()
		if metric2 < 0.5*metric1 || 2.0*metric1 < metric2 || metric2 < Epsilon {
			s.count = 0
		}
	}

	// If the cache is empty or invalid ...
	if s.count == 0 {
		v := &s.vs[0]
		v.indexA = 0
		v.indexB = 0
		v.wA = TransformVec2Mul(transformA, proxyA.GetVertex(0))
		v.wB = TransformVec2Mul(transformB, proxyB.GetVertex(0))
		v.w = v.wB.Sub(v.wA)
		v.a = 1.0
		s.count = 1
	}
}

func (s simplex) writeCache(cache *SimplexCache) {
	cache.Metric = s.getMetric()
	cache.Count = s.count
	for i := 0; i < s.count; i++ {
		cache.IndexA[i] = s.vs[i].indexA
		cache.IndexB[i] = s.vs[i].indexB
	}
}

func (s simplex) getSearchDirection() Vec2 {
	switch s.count {
	case 1:
		return s.vs[0].w.Mul(-1.0)

	case 2:
		e12 := s.vs[1].w.Sub(s.vs[0].w)
		sgn := Vec2Cross(e12, s.vs[0].w.Mul(-1.0))
		if sgn > 0.0 {
			// Origin is left of e12.
			return Vec2CrossScalarVector(1.0, e12)
		}
		// Origin is right of e12.
		return Vec2CrossVectorScalar(e12, 1.0)
	}

	Assert(false)
	return Vec2Zero
}

func (s simplex) getWitnessPoints() (pA, pB Vec2) {
	switch s.count {
	case 1:
		return s.vs[0].wA, s.vs[0].wB

	case 2:
		pA = s.vs[0].wA.Mul(s.vs[0].a).Add(s.vs[1].wA.Mul(s.vs[1].a))
		pB = s.vs[0].wB.Mul(s.vs[0].a).Add(s.vs[1].wB.Mul(s.vs[1].a))
		return pA, pB

	case 3:
		pA = s.vs[0].wA.Mul(s.vs[0].a).
			Add(s.vs[1].wA.Mul(s.vs[1].a)).
			Add(s.vs[2].wA.Mul(s.vs[2].a))
		return pA, pA
	}

	Assert(false)
	return Vec2Zero, Vec2Zero
}

func (s simplex) getMetric() float64 {
	switch s.count {
	case 1:
		return 0.0

	case 2:
		return Vec2Distance(s.vs[0].w, s.vs[1].w)

	case 3:
		return Vec2Cross(s.vs[1].w.Sub(s.vs[0].w), s.vs[2].w.Sub(s.vs[0].w))
	}

	Assert(false)
	return 0.0
}

// Solve a line segment using barycentric coordinates.
//
// p = a1 * w1 + a2 * w2
// a1 + a2 = 1
//
// The vector from the origin to the closest point on the line is
// perpendicular to the line.
// e12 = w2 - w1
// dot(p, e) = 0
// a1 * dot(w1, e) + a2 * dot(w2, e) = 0
func (s *simplex) solve2() {
	w1 := s.vs[0].w
	w2 := s.vs[1].w
	e12 := w2.Sub(w1)

	// w1 region
	d12_2 := -w1.Dot(e12)
	if d12_2 <= 0.0 {
		// a2 <= 0, so we clamp it to 0
		s.vs[0].a = 1.0
		s.count = 1
		return
	}

	// w2 region
	d12_1 := w2.Dot(e12)
	if d12_1 <= 0.0 {
		// a1 <= 0, so we clamp it to 0
		s.vs[1].a = 1.0
		s.count = 1
		s.vs[0] = s.vs[1]
		return
	}

	// Must be in e12 region.
	inv_d12 := 1.0 / (d12_1 + d12_2)
	s.vs[0].a = d12_1 * inv_d12
	s.vs[1].a = d12_2 * inv_d12
	s.count = 2
}

// Possible regions:
// - points[2]
// - edge points[0]-points[2]
// - edge points[1]-points[2]
// - inside the triangle
func (s *simplex) solve3() {
	w1 := s.vs[0].w
	w2 := s.vs[1].w
	w3 := s.vs[2].w

	// Edge12
	// [1      1     ][a1] = [1]
	// [w1.e12 w2.e12][a2] = [0]
	// a3 = 0
	e12 := w2.Sub(w1)
	d12_1 := w2.Dot(e12)
	d12_2 := -w1.Dot(e12)

	// Edge13
	// [1      1     ][a1] = [1]
	// [w1.e13 w3.e13][a3] = [0]
	// a2 = 0
	e13 := w3.Sub(w1)
	d13_1 := w3.Dot(e13)
	d13_2 := -w1.Dot(e13)

	// Edge23
	// [1      1     ][a2] = [1]
	// [w2.e23 w3.e23][a3] = [0]
	// a1 = 0
	e23 := w3.Sub(w2)
	d23_1 := w3.Dot(e23)
	d23_2 := -w2.Dot(e23)

	// Triangle123
	n123 := Vec2Cross(e12, e13)

	d123_1 := n123 * Vec2Cross(w2, w3)
	d123_2 := n123 * Vec2Cross(w3, w1)
	d123_3 := n123 * Vec2Cross(w1, w2)

	// w1 region
	if d12_2 <= 0.0 && d13_2 <= 0.0 {
		s.vs[0].a = 1.0
		s.count = 1
		return
	}

	// e12
	if d12_1 > 0.0 && d12_2 > 0.0 && d123_3 <= 0.0 {
		inv_d12 := 1.0 / (d12_1 + d12_2)
		s.vs[0].a = d12_1 * inv_d12
		s.vs[1].a = d12_2 * inv_d12
		s.count = 2
		return
	}

	// e13
	if d13_1 > 0.0 && d13_2 > 0.0 && d123_2 <= 0.0 {
		inv_d13 := 1.0 / (d13_1 + d13_2)
		s.vs[0].a = d13_1 * inv_d13
		s.vs[2].a = d13_2 * inv_d13
		s.count = 2
		s.vs[1] = s.vs[2]
		return
	}

	// w2 region
	if d12_1 <= 0.0 && d23_2 <= 0.0 {
		s.vs[1].a = 1.0
		s.count = 1
		s.vs[0] = s.vs[1]
		return
	}

	// w3 region
	if d13_1 <= 0.0 && d23_1 <= 0.0 {
		s.vs[2].a = 1.0
		s.count = 1
		s.vs[0] = s.vs[2]
		return
	}

	// e23
	if d23_1 > 0.0 && d23_2 > 0.0 && d123_1 <= 0.0 {
		inv_d23 := 1.0 / (d23_1 + d23_2)
		s.vs[1].a = d23_1 * inv_d23
		s.vs[2].a = d23_2 * inv_d23
		s.count = 2
		s.vs[0] = s.vs[2]
		return
	}

	// Must be in triangle123
	inv_d123 := 1.0 / (d123_1 + d123_2 + d123_3)
	s.vs[0].a = d123_1 * inv_d123
	s.vs[1].a = d123_2 * inv_d123
	s.vs[2].a = d123_3 * inv_d123
	s.count = 3
}

/// GJK statistics, kept per engine.
type DistanceStats struct {
	Calls    int
	Iters    int
	MaxIters int
}

/// DistanceEngine runs GJK using Voronoi regions (Christer Ericson) and
/// barycentric coordinates. An engine is not safe for concurrent use; give
/// each worker its own.
type DistanceEngine struct {
	maxIters int
	Stats    DistanceStats
}

func NewDistanceEngine(maxIters int) *DistanceEngine {
	if maxIters < 1 {
		maxIters = DefaultMaxGJKIterations
	}
	return &DistanceEngine{maxIters: maxIters}
}

/// Compute the closest points between two shapes. Supports any combination of:
/// CircleShape, PolygonShape, EdgeShape and ChainShape children. The simplex
/// cache is input/output.
/// On the first call set SimplexCache.Count to zero.
func (engine *DistanceEngine) Distance(output *DistanceOutput, cache *SimplexCache, input *DistanceInput) {
	engine.Stats.Calls++

	proxyA := &input.ProxyA
	proxyB := &input.ProxyB

	transformA := input.TransformA
	transformB := input.TransformB

	// Initialize the simplex.
	var s simplex
	s.readCache(cache, proxyA, transformA, proxyB, transformB)

	// These store the vertices of the last simplex so that we
	// can check for duplicates and prevent cycling.
	var saveA, saveB [3]int
	saveCount := 0

	// Main iteration loop.
	iter := 0
	for iter < engine.maxIters {
		// Copy simplex so we can identify duplicates.
		saveCount = s.count
		for i := 0; i < saveCount; i++ {
			saveA[i] = s.vs[i].indexA
			saveB[i] = s.vs[i].indexB
		}

		switch s.count {
		case 1:
		case 2:
			s.solve2()
		case 3:
			s.solve3()
		default:
			Assert(false)
		}

		// If we have 3 points, then the origin is in the corresponding triangle.
		if s.count == 3 {
			break
		}

		d := s.getSearchDirection()

		// Ensure the search direction is numerically fit.
		if Vec2LengthSquared(d) < Epsilon*Epsilon {
			// The origin is probably contained by a line segment
			// or triangle. Thus the shapes are overlapped.

			// We can't return zero here even though there may be overlap.
			// In case the simplex is a point, segment, or triangle it is difficult
			// to determine if the origin is contained in the CSO or very close to it.
			break
		}

		// Compute a tentative new simplex vertex using support points.
		vertex := &s.vs[s.count]
		vertex.indexA = proxyA.GetSupport(RotVec2MulT(transformA.Q, d.Mul(-1.0)))
		vertex.wA = TransformVec2Mul(transformA, proxyA.GetVertex(vertex.indexA))
		vertex.indexB = proxyB.GetSupport(RotVec2MulT(transformB.Q, d))
		vertex.wB = TransformVec2Mul(transformB, proxyB.GetVertex(vertex.indexB))
		vertex.w = vertex.wB.Sub(vertex.wA)

		// Iteration count is equated to the number of support point calls.
		iter++
		engine.Stats.Iters++

		// Check for duplicate support points. This is the main termination criteria.
		duplicate := false
		for i := 0; i < saveCount; i++ {
			if vertex.indexA == saveA[i] && vertex.indexB == saveB[i] {
				duplicate = true
				break
			}
		}

		// If we found a duplicate support point we must exit to avoid cycling.
		if duplicate {
			break
		}

		// New vertex is ok and needed.
		s.count++
	}

	if iter > engine.Stats.MaxIters {
		engine.Stats.MaxIters = iter
	}

	// Prepare output.
	output.PointA, output.PointB = s.getWitnessPoints()
	output.Distance = Vec2Distance(output.PointA, output.PointB)
	output.Iterations = iter

	// Cache the simplex.
	s.writeCache(cache)

	// Apply radii if requested.
	if input.UseRadii {
		rA := proxyA.Radius
		rB := proxyB.Radius

		if output.Distance > rA+rB && output.Distance > Epsilon {
			// Shapes are still no overlapped.
			// Move the witness points to the outer surface.
			output.Distance -= rA + rB
			normal := output.PointB.Sub(output.PointA)
			Vec2Normalize(&normal)
			output.PointA = output.PointA.Add(normal.Mul(rA))
			output.PointB = output.PointB.Sub(normal.Mul(rB))
		} else {
			// Shapes are overlapped when radii are considered.
			// Move the witness points to the middle.
			p := output.PointA.Add(output.PointB).Mul(0.5)
			output.PointA = p
			output.PointB = p
			output.Distance = 0.0
		}
	}
}

/// ComputeDistance runs a one-off query with the default iteration cap.
func ComputeDistance(output *DistanceOutput, cache *SimplexCache, input *DistanceInput) {
	var engine DistanceEngine
	engine.maxIters = DefaultMaxGJKIterations
	engine.Distance(output, cache, input)
}

/// Determine if two generic shapes overlap.
func (engine *DistanceEngine) TestOverlap(shapeA Shape, indexA int, shapeB Shape, indexB int, xfA, xfB Transform) bool {
	input := DistanceInput{
		ProxyA:     MakeDistanceProxy(shapeA, indexA),
		ProxyB:     MakeDistanceProxy(shapeB, indexB),
		TransformA: xfA,
		TransformB: xfB,
		UseRadii:   true,
	}

	var cache SimplexCache
	var output DistanceOutput
	engine.Distance(&output, &cache, &input)

	return output.Distance < 10.0*Epsilon
}

func TestOverlapShapes(shapeA Shape, indexA int, shapeB Shape, indexB int, xfA, xfB Transform) bool {
	return NewDistanceEngine(DefaultMaxGJKIterations).TestOverlap(shapeA, indexA, shapeB, indexB, xfA, xfB)
}
