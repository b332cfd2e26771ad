package rotation

import "math"

// 3-D vector/matrix helpers for board-rotation and channel transforms.
//
// Conventions match common flight-controller usage: right-handed axes,
// roll/pitch/yaw in radians, row-major direction cosine matrices that map
// sensor-frame vectors into the body frame via m.Apply(v).

type Vec3 [3]float64

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

func Identity() Mat3 {
	return Mat3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// Apply returns m * v.
func (m Mat3) Apply(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Mul returns the matrix product m * b.
func (m Mat3) Mul(b Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*b[0][j] + m[i][1]*b[1][j] + m[i][2]*b[2][j]
		}
	}
	return out
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// quat is a unit quaternion {w, x, y, z}.
type quat [4]float64

func quatFromRPY(roll, pitch, yaw float64) quat {
	cr := math.Cos(roll / 2)
	sr := math.Sin(roll / 2)
	cp := math.Cos(pitch / 2)
	sp := math.Sin(pitch / 2)
	cy := math.Cos(yaw / 2)
	sy := math.Sin(yaw / 2)

	return quat{
		cr*cp*cy + sr*sp*sy,
		sr*cp*cy - cr*sp*sy,
		cr*sp*cy + sr*cp*sy,
		cr*cp*sy - sr*sp*cy,
	}
}

func (q quat) mul(r quat) quat {
	return quat{
		q[0]*r[0] - q[1]*r[1] - q[2]*r[2] - q[3]*r[3],
		q[0]*r[1] + q[1]*r[0] + q[2]*r[3] - q[3]*r[2],
		q[0]*r[2] - q[1]*r[3] + q[2]*r[0] + q[3]*r[1],
		q[0]*r[3] + q[1]*r[2] - q[2]*r[1] + q[3]*r[0],
	}
}

func (q quat) matrix() Mat3 {
	q0, q1, q2, q3 := q[0], q[1], q[2], q[3]
	return Mat3{
		{q0*q0 + q1*q1 - q2*q2 - q3*q3, 2 * (q1*q2 + q0*q3), 2 * (q1*q3 - q0*q2)},
		{2 * (q1*q2 - q0*q3), q0*q0 - q1*q1 + q2*q2 - q3*q3, 2 * (q2*q3 + q0*q1)},
		{2 * (q1*q3 + q0*q2), 2 * (q2*q3 - q0*q1), q0*q0 - q1*q1 - q2*q2 + q3*q3},
	}
}

// ZeroAngle is the threshold below which a trim angle is treated as zero.
const ZeroAngle = 1e-5

// Compose builds the board-rotation matrix from the board roll/pitch/yaw and
// an optional level trim (trim yaw is fixed at zero). The trim quaternion is
// only composed when either trim angle is meaningfully non-zero.
// All angles are radians.
func Compose(boardRoll, boardPitch, boardYaw, trimRoll, trimPitch float64) Mat3 {
	q := quatFromRPY(boardRoll, boardPitch, boardYaw)
	if math.Abs(trimRoll) > ZeroAngle || math.Abs(trimPitch) > ZeroAngle {
		q = q.mul(quatFromRPY(trimRoll, trimPitch, 0))
	}
	return q.matrix()
}
