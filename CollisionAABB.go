package broadphase

import (
	"math"
)

/// Ray-cast input data. The ray extends from p1 to p1 + maxFraction * (p2 - p1).
type RayCastInput struct {
	P1, P2      Vec2
	MaxFraction float64
}

/// Ray-cast output data. The ray hits at p1 + fraction * (p2 - p1), where p1 and p2
/// come from RayCastInput.
type RayCastOutput struct {
	Normal   Vec2
	Fraction float64
}

/// An axis aligned bounding box.
type AABB struct {
	LowerBound Vec2 ///< the lower vertex
	UpperBound Vec2 ///< the upper vertex
}

func MakeAABB(lower, upper Vec2) AABB {
	return AABB{LowerBound: lower, UpperBound: upper}
}

/// An AABB centered on center with the given half extents.
func MakeAABBFromCenter(center Vec2, hx, hy float64) AABB {
	return AABB{
		LowerBound: Vec2{center[0] - hx, center[1] - hy},
		UpperBound: Vec2{center[0] + hx, center[1] + hy},
	}
}

/// Get the center of the AABB.
func (bb AABB) GetCenter() Vec2 {
	return bb.LowerBound.Add(bb.UpperBound).Mul(0.5)
}

/// Get the extents of the AABB (half-widths).
func (bb AABB) GetExtents() Vec2 {
	return bb.UpperBound.Sub(bb.LowerBound).Mul(0.5)
}

/// Get the perimeter length
func (bb AABB) GetPerimeter() float64 {
	wx := bb.UpperBound[0] - bb.LowerBound[0]
	wy := bb.UpperBound[1] - bb.LowerBound[1]
	return 2.0 * (wx + wy)
}

/// Combine an AABB into this one.
func (bb *AABB) CombineInPlace(aabb AABB) {
	bb.LowerBound = Vec2Min(bb.LowerBound, aabb.LowerBound)
	bb.UpperBound = Vec2Max(bb.UpperBound, aabb.UpperBound)
}

/// Combine two AABBs into this one.
func (bb *AABB) CombineTwoInPlace(aabb1, aabb2 AABB) {
	bb.LowerBound = Vec2Min(aabb1.LowerBound, aabb2.LowerBound)
	bb.UpperBound = Vec2Max(aabb1.UpperBound, aabb2.UpperBound)
}

func (bb AABB) Union(aabb AABB) AABB {
	bb.CombineInPlace(aabb)
	return bb
}

/// Does this aabb contain the provided AABB.
func (bb AABB) Contains(aabb AABB) bool {
	return bb.LowerBound[0] <= aabb.LowerBound[0] &&
		bb.LowerBound[1] <= aabb.LowerBound[1] &&
		aabb.UpperBound[0] <= bb.UpperBound[0] &&
		aabb.UpperBound[1] <= bb.UpperBound[1]
}

func (bb AABB) IsValid() bool {
	d := bb.UpperBound.Sub(bb.LowerBound)
	return d[0] >= 0.0 && d[1] >= 0.0 && Vec2IsValid(bb.LowerBound) && Vec2IsValid(bb.UpperBound)
}

/// Grow the box by margin on every side.
func (bb AABB) Enlarged(margin float64) AABB {
	r := Vec2{margin, margin}
	return AABB{
		LowerBound: bb.LowerBound.Sub(r),
		UpperBound: bb.UpperBound.Add(r),
	}
}

/// The overlapping region of two boxes. The result is invalid (negative
/// extent) when they do not overlap.
func (bb AABB) Intersection(aabb AABB) AABB {
	return AABB{
		LowerBound: Vec2Max(bb.LowerBound, aabb.LowerBound),
		UpperBound: Vec2Min(bb.UpperBound, aabb.UpperBound),
	}
}

/// Touching boxes overlap.
func (bb AABB) Overlaps(aabb AABB) bool {
	return TestOverlapBoundingBoxes(bb, aabb)
}

func TestOverlapBoundingBoxes(a, b AABB) bool {
	d1 := b.LowerBound.Sub(a.UpperBound)
	d2 := a.LowerBound.Sub(b.UpperBound)

	if d1[0] > 0.0 || d1[1] > 0.0 {
		return false
	}

	if d2[0] > 0.0 || d2[1] > 0.0 {
		return false
	}

	return true
}

/// TransformAABB bounds the four corners of aabb after moving them from
/// the frame of xf into its parent frame. Under rotation the result is a
/// conservative superset of the original box.
func TransformAABB(xf Transform, aabb AABB) AABB {
	if xf.Q.S == 0.0 && xf.Q.C == 1.0 {
		return AABB{
			LowerBound: aabb.LowerBound.Add(xf.P),
			UpperBound: aabb.UpperBound.Add(xf.P),
		}
	}

	corners := [4]Vec2{
		aabb.LowerBound,
		{aabb.UpperBound[0], aabb.LowerBound[1]},
		aabb.UpperBound,
		{aabb.LowerBound[0], aabb.UpperBound[1]},
	}

	lower := TransformVec2Mul(xf, corners[0])
	upper := lower
	for i := 1; i < len(corners); i++ {
		v := TransformVec2Mul(xf, corners[i])
		lower = Vec2Min(lower, v)
		upper = Vec2Max(upper, v)
	}

	return AABB{LowerBound: lower, UpperBound: upper}
}

/// InvTransformAABB is TransformAABB with the inverse of xf: it moves a box
/// expressed in the parent frame into the frame of xf.
func InvTransformAABB(xf Transform, aabb AABB) AABB {
	return TransformAABB(InvertTransform(xf), aabb)
}

// From Real-time Collision Detection, p179.
func (bb AABB) RayCast(output *RayCastOutput, input RayCastInput) bool {
	tmin := -MaxFloat
	tmax := MaxFloat

	p := input.P1
	d := input.P2.Sub(input.P1)
	absD := Vec2Abs(d)

	normal := Vec2Zero

	for i := 0; i < 2; i++ {
		if absD[i] < Epsilon {
			// Parallel.
			if p[i] < bb.LowerBound[i] || bb.UpperBound[i] < p[i] {
				return false
			}
		} else {
			invD := 1.0 / d[i]
			t1 := (bb.LowerBound[i] - p[i]) * invD
			t2 := (bb.UpperBound[i] - p[i]) * invD

			// Sign of the normal vector.
			s := -1.0

			if t1 > t2 {
				t1, t2 = t2, t1
				s = 1.0
			}

			// Push the min up
			if t1 > tmin {
				normal = Vec2Zero
				normal[i] = s
				tmin = t1
			}

			// Pull the max down
			tmax = math.Min(tmax, t2)

			if tmin > tmax {
				return false
			}
		}
	}

	// Does the ray start inside the box?
	// Does the ray intersect beyond the max fraction?
	if tmin < 0.0 || input.MaxFraction < tmin {
		return false
	}

	output.Fraction = tmin
	output.Normal = normal
	return true
}
