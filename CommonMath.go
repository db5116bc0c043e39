package broadphase

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

///////////////////////////////////////////////////////////////////////////////
/// Vectors are mgl64 column vectors. The helpers below add the 2D-only
/// operations (scalar cross products, component min/max) that mgl64 leaves out.
///////////////////////////////////////////////////////////////////////////////

type Vec2 = mgl64.Vec2

var Vec2Zero = Vec2{0, 0}

/// This function is used to ensure that a floating point number is not a NaN or infinity.
func IsValid(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func Vec2IsValid(v Vec2) bool {
	return IsValid(v[0]) && IsValid(v[1])
}

/// Perform the cross product on two vectors. In 2D this produces a scalar.
func Vec2Cross(a, b Vec2) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

/// Perform the cross product on a vector and a scalar. In 2D this produces
/// a vector.
func Vec2CrossVectorScalar(a Vec2, s float64) Vec2 {
	return Vec2{s * a[1], -s * a[0]}
}

/// Perform the cross product on a scalar and a vector. In 2D this produces
/// a vector.
func Vec2CrossScalarVector(s float64, a Vec2) Vec2 {
	return Vec2{-s * a[1], s * a[0]}
}

func Vec2LengthSquared(v Vec2) float64 {
	return v.Dot(v)
}

func Vec2Distance(a, b Vec2) float64 {
	return b.Sub(a).Len()
}

func Vec2DistanceSquared(a, b Vec2) float64 {
	c := b.Sub(a)
	return c.Dot(c)
}

/// Normalize v in place and return its previous length. Vectors shorter than
/// Epsilon are left untouched and report a length of zero.
func Vec2Normalize(v *Vec2) float64 {
	length := v.Len()
	if length < Epsilon {
		return 0.0
	}
	invLength := 1.0 / length
	v[0] *= invLength
	v[1] *= invLength
	return length
}

func Vec2Abs(a Vec2) Vec2 {
	return Vec2{math.Abs(a[0]), math.Abs(a[1])}
}

func Vec2Min(a, b Vec2) Vec2 {
	return Vec2{math.Min(a[0], b[0]), math.Min(a[1], b[1])}
}

func Vec2Max(a, b Vec2) Vec2 {
	return Vec2{math.Max(a[0], b[0]), math.Max(a[1], b[1])}
}

///////////////////////////////////////////////////////////////////////////////
/// Rotation
///////////////////////////////////////////////////////////////////////////////

type Rot struct {
	/// Sine and cosine
	S, C float64
}

func MakeRot() Rot {
	return Rot{S: 0.0, C: 1.0}
}

/// Initialize from an angle in radians
func MakeRotFromAngle(anglerad float64) Rot {
	return Rot{
		S: math.Sin(anglerad),
		C: math.Cos(anglerad),
	}
}

/// Set using an angle in radians.
func (r *Rot) Set(anglerad float64) {
	r.S = math.Sin(anglerad)
	r.C = math.Cos(anglerad)
}

func (r *Rot) SetIdentity() {
	r.S = 0.0
	r.C = 1.0
}

/// Get the angle in radians
func (r Rot) GetAngle() float64 {
	return math.Atan2(r.S, r.C)
}

/// Multiply two rotations: q * r
func RotMul(q, r Rot) Rot {
	return Rot{
		S: q.S*r.C + q.C*r.S,
		C: q.C*r.C - q.S*r.S,
	}
}

/// Transpose multiply two rotations: qT * r
func RotMulT(q, r Rot) Rot {
	return Rot{
		S: q.C*r.S - q.S*r.C,
		C: q.C*r.C + q.S*r.S,
	}
}

/// Rotate a vector
func RotVec2Mul(q Rot, v Vec2) Vec2 {
	return Vec2{
		q.C*v[0] - q.S*v[1],
		q.S*v[0] + q.C*v[1],
	}
}

/// Inverse rotate a vector
func RotVec2MulT(q Rot, v Vec2) Vec2 {
	return Vec2{
		q.C*v[0] + q.S*v[1],
		-q.S*v[0] + q.C*v[1],
	}
}

///////////////////////////////////////////////////////////////////////////////
/// A transform contains translation and rotation. It is used to represent
/// the position and orientation of rigid frames: bodies, grids and maps.
///////////////////////////////////////////////////////////////////////////////

type Transform struct {
	P Vec2
	Q Rot
}

/// The identity transform.
func MakeTransform() Transform {
	return Transform{P: Vec2Zero, Q: MakeRot()}
}

/// Initialize using a position vector and an angle in radians.
func MakeTransformFromAngle(position Vec2, anglerad float64) Transform {
	return Transform{P: position, Q: MakeRotFromAngle(anglerad)}
}

func (t *Transform) SetIdentity() {
	t.P = Vec2Zero
	t.Q.SetIdentity()
}

func (t *Transform) Set(position Vec2, anglerad float64) {
	t.P = position
	t.Q.Set(anglerad)
}

func TransformVec2Mul(t Transform, v Vec2) Vec2 {
	return Vec2{
		(t.Q.C*v[0] - t.Q.S*v[1]) + t.P[0],
		(t.Q.S*v[0] + t.Q.C*v[1]) + t.P[1],
	}
}

func TransformVec2MulT(t Transform, v Vec2) Vec2 {
	px := v[0] - t.P[0]
	py := v[1] - t.P[1]
	return Vec2{
		t.Q.C*px + t.Q.S*py,
		-t.Q.S*px + t.Q.C*py,
	}
}

/// v2 = A.q.Rot(B.q.Rot(v1) + B.p) + A.p
///    = (A.q * B.q).Rot(v1) + A.q.Rot(B.p) + A.p
func TransformMul(a, b Transform) Transform {
	return Transform{
		P: RotVec2Mul(a.Q, b.P).Add(a.P),
		Q: RotMul(a.Q, b.Q),
	}
}

/// v2 = A.q' * (B.q * v1 + B.p - A.p)
///    = A.q' * B.q * v1 + A.q' * (B.p - A.p)
func TransformMulT(a, b Transform) Transform {
	return Transform{
		P: RotVec2MulT(a.Q, b.P.Sub(a.P)),
		Q: RotMulT(a.Q, b.Q),
	}
}

func InvertTransform(t Transform) Transform {
	return TransformMulT(t, MakeTransform())
}

// Absolute, component-wise comparison.
func Vec2ApproxEqual(a, b Vec2, tolerance float64) bool {
	return math.Abs(a[0]-b[0]) <= tolerance && math.Abs(a[1]-b[1]) <= tolerance
}

func TransformApproxEqual(a, b Transform, tolerance float64) bool {
	return Vec2ApproxEqual(a.P, b.P, tolerance) &&
		math.Abs(a.Q.S-b.Q.S) <= tolerance &&
		math.Abs(a.Q.C-b.Q.C) <= tolerance
}

func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func AbsInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
