package rotation

import (
	"math"
	"testing"
)

const eps = 1e-9

func matNear(t *testing.T, got, want Mat3) {
	t.Helper()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(got[i][j]-want[i][j]) > eps {
				t.Fatalf("m[%d][%d]=%v want %v (got=%v)", i, j, got[i][j], want[i][j], got)
			}
		}
	}
}

func vecNear(t *testing.T, got, want Vec3) {
	t.Helper()
	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-want[i]) > eps {
			t.Fatalf("v[%d]=%v want %v (got=%v)", i, got[i], want[i], got)
		}
	}
}

func TestCompose_ZeroIsIdentity(t *testing.T) {
	matNear(t, Compose(0, 0, 0, 0, 0), Identity())
}

func TestCompose_TinyTrimIgnored(t *testing.T) {
	// Trim below the threshold must not perturb the matrix.
	matNear(t, Compose(0, 0, 0, ZeroAngle/2, ZeroAngle/2), Identity())
}

func TestCompose_YawQuarterTurn(t *testing.T) {
	// 90 deg yaw maps body-frame x onto sensor-frame y.
	m := Compose(0, 0, math.Pi/2, 0, 0)
	vecNear(t, m.Apply(Vec3{0, 1, 0}), Vec3{1, 0, 0})
	vecNear(t, m.Apply(Vec3{1, 0, 0}), Vec3{0, -1, 0})
}

func TestCompose_RollQuarterTurn(t *testing.T) {
	m := Compose(math.Pi/2, 0, 0, 0, 0)
	vecNear(t, m.Apply(Vec3{0, 0, 1}), Vec3{0, 1, 0})
}

func TestCompose_TrimComposesWithBoardRotation(t *testing.T) {
	// Board yaw then trim roll must equal the two rotations applied in order.
	withTrim := Compose(0, 0, math.Pi/2, math.Pi/8, 0)
	manual := Compose(0, 0, math.Pi/2, 0, 0)
	trimOnly := Compose(math.Pi/8, 0, 0, 0, 0)
	matNear(t, withTrim, trimOnly.Mul(manual))
}

func TestMat3_MulIdentity(t *testing.T) {
	m := Compose(0.3, -0.2, 1.1, 0, 0)
	matNear(t, m.Mul(Identity()), m)
	matNear(t, Identity().Mul(m), m)
}

func TestMat3_ApplyIsOrthonormal(t *testing.T) {
	// Rotation must preserve vector length.
	m := Compose(0.5, 0.25, -0.75, 0.01, -0.02)
	v := Vec3{1.5, -2.5, 0.5}
	got := m.Apply(v)
	n0 := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	n1 := math.Sqrt(got[0]*got[0] + got[1]*got[1] + got[2]*got[2])
	if math.Abs(n0-n1) > 1e-9 {
		t.Fatalf("norm changed: %v -> %v", n0, n1)
	}
}

func TestVec3_Sub(t *testing.T) {
	got := Vec3{3, 2, 1}.Sub(Vec3{1, 1, 1})
	vecNear(t, got, Vec3{2, 1, 0})
}
