package math

import "github.com/chewxy/math32"

/**
 * @brief Creates and returns an identity matrix.
 */
func NewMat4Identity() Mat4 {
	m := Mat4{}
	m.Data[0] = 1.0
	m.Data[5] = 1.0
	m.Data[10] = 1.0
	m.Data[15] = 1.0
	return m
}

/**
 * @brief Returns mt * other. With row vectors this applies mt first, then other.
 */
func (mt Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			sum := float32(0)
			for i := 0; i < 4; i++ {
				sum += mt.Data[row*4+i] * other.Data[i*4+col]
			}
			out.Data[row*4+col] = sum
		}
	}
	return out
}

func NewMat4Translation(position Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[12] = position.X
	m.Data[13] = position.Y
	m.Data[14] = position.Z
	return m
}

func NewMat4Scale(scale Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[0] = scale.X
	m.Data[5] = scale.Y
	m.Data[10] = scale.Z
	return m
}

func (mt Mat4) Translation() Vec3 {
	return Vec3{X: mt.Data[12], Y: mt.Data[13], Z: mt.Data[14]}
}

// Affine3x4 returns the upper 3x4 of the matrix in the row-major,
// column-vector layout used by acceleration-structure instance records.
func (mt Mat4) Affine3x4() [12]float32 {
	var out [12]float32
	for r := 0; r < 3; r++ {
		out[r*4+0] = mt.Data[r]
		out[r*4+1] = mt.Data[4+r]
		out[r*4+2] = mt.Data[8+r]
		out[r*4+3] = mt.Data[12+r]
	}
	return out
}

// NewMat4FromAffine3x4 is the inverse of Affine3x4.
func NewMat4FromAffine3x4(a [12]float32) Mat4 {
	m := NewMat4Identity()
	for r := 0; r < 3; r++ {
		m.Data[r] = a[r*4+0]
		m.Data[4+r] = a[r*4+1]
		m.Data[8+r] = a[r*4+2]
		m.Data[12+r] = a[r*4+3]
	}
	return m
}

func NewQuatIdentity() Quaternion {
	return Quaternion{W: 1}
}

func (q Quaternion) Normal() float32 {
	return math32.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

func (q Quaternion) Normalize() Quaternion {
	n := q.Normal()
	if n == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Mul returns the Hamilton product q * other.
func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

/**
 * @brief Creates a rotation matrix (row-vector convention) from the quaternion.
 */
func (q Quaternion) ToMat4() Mat4 {
	n := q.Normalize()
	m := NewMat4Identity()

	m.Data[0] = 1 - 2*n.Y*n.Y - 2*n.Z*n.Z
	m.Data[1] = 2*n.X*n.Y + 2*n.Z*n.W
	m.Data[2] = 2*n.X*n.Z - 2*n.Y*n.W

	m.Data[4] = 2*n.X*n.Y - 2*n.Z*n.W
	m.Data[5] = 1 - 2*n.X*n.X - 2*n.Z*n.Z
	m.Data[6] = 2*n.Y*n.Z + 2*n.X*n.W

	m.Data[8] = 2*n.X*n.Z + 2*n.Y*n.W
	m.Data[9] = 2*n.Y*n.Z - 2*n.X*n.W
	m.Data[10] = 1 - 2*n.X*n.X - 2*n.Y*n.Y
	return m
}

func NewQuatFromAxisAngle(axis Vec3, angle float32) Quaternion {
	half := 0.5 * angle
	s := math32.Sin(half)
	a := axis.Normalized()
	return Quaternion{X: s * a.X, Y: s * a.Y, Z: s * a.Z, W: math32.Cos(half)}
}

func DegToRad(degrees float32) float32 {
	return degrees * math32.Pi / 180.0
}

/**
 * @brief Inverts an affine matrix (last column 0, 0, 0, 1). Returns false
 * when the 3x3 part is singular.
 */
func (mt Mat4) InverseAffine() (Mat4, bool) {
	d := mt.Data
	// cofactors of the upper 3x3
	c00 := d[5]*d[10] - d[6]*d[9]
	c01 := d[6]*d[8] - d[4]*d[10]
	c02 := d[4]*d[9] - d[5]*d[8]
	det := d[0]*c00 + d[1]*c01 + d[2]*c02
	if math32.Abs(det) < FloatEpsilon {
		return NewMat4Identity(), false
	}
	inv := 1 / det

	out := NewMat4Identity()
	out.Data[0] = c00 * inv
	out.Data[1] = (d[2]*d[9] - d[1]*d[10]) * inv
	out.Data[2] = (d[1]*d[6] - d[2]*d[5]) * inv
	out.Data[4] = c01 * inv
	out.Data[5] = (d[0]*d[10] - d[2]*d[8]) * inv
	out.Data[6] = (d[2]*d[4] - d[0]*d[6]) * inv
	out.Data[8] = c02 * inv
	out.Data[9] = (d[1]*d[8] - d[0]*d[9]) * inv
	out.Data[10] = (d[0]*d[5] - d[1]*d[4]) * inv

	t := Vec3{X: d[12], Y: d[13], Z: d[14]}.TransformDirection(out)
	out.Data[12] = -t.X
	out.Data[13] = -t.Y
	out.Data[14] = -t.Z
	return out, true
}

/**
 * @brief Creates a rotation matrix from euler angles in radians. Pitch (x) is
 * applied first, then yaw (y), then roll (z).
 */
func NewMat4EulerXYZ(x, y, z float32) Mat4 {
	pitch := NewQuatFromAxisAngle(NewVec3(1, 0, 0), x).ToMat4()
	yaw := NewQuatFromAxisAngle(NewVec3(0, 1, 0), y).ToMat4()
	roll := NewQuatFromAxisAngle(NewVec3(0, 0, 1), z).ToMat4()
	return pitch.Mul(yaw).Mul(roll)
}

// Forward returns the world-space -Z axis of the matrix.
func (mt Mat4) Forward() Vec3 {
	return NewVec3(-mt.Data[8], -mt.Data[9], -mt.Data[10]).Normalized()
}

// Right returns the world-space +X axis of the matrix.
func (mt Mat4) Right() Vec3 {
	return NewVec3(mt.Data[0], mt.Data[1], mt.Data[2]).Normalized()
}

// Up returns the world-space +Y axis of the matrix.
func (mt Mat4) Up() Vec3 {
	return NewVec3(mt.Data[4], mt.Data[5], mt.Data[6]).Normalized()
}
