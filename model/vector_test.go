package model

import (
	"math"
	"testing"
)

func vecNear(a, b Vec3) bool {
	return a.Sub(b).Norm() < 1e-12
}

func TestVec3Ops(t *testing.T) {
	x, y := Vec3{X: 1}, Vec3{Y: 1}
	if got := x.Cross(y); got != (Vec3{Z: 1}) {
		t.Fatalf("x cross y = %+v, want z", got)
	}
	if got := x.Dot(y); got != 0 {
		t.Fatalf("x dot y = %v, want 0", got)
	}
	if got := (Vec3{X: 3, Y: 4}).Norm(); got != 5 {
		t.Fatalf("Norm = %v, want 5", got)
	}
	if got := y.Scale(2).Sub(x); got != (Vec3{X: -1, Y: 2}) {
		t.Fatalf("2y - x = %+v", got)
	}
}

func TestQuaternionRotate(t *testing.T) {
	q := ZRotation(math.Pi / 2)
	if got := q.Rotate(Vec3{X: 1}); !vecNear(got, Vec3{Y: 1}) {
		t.Fatalf("quarter turn about z moved x to %+v, want y", got)
	}
	// Mul applies the right operand first.
	q = ZRotation(math.Pi / 2).Mul(XRotation(math.Pi / 2))
	if got := q.Rotate(Vec3{Y: 1}); !vecNear(got, Vec3{Z: 1}) {
		t.Fatalf("composed rotation moved y to %+v, want z", got)
	}
	if got := Identity().Rotate(Vec3{X: 1, Y: 2, Z: 3}); got != (Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("identity rotation changed the vector: %+v", got)
	}
}

func TestQuaternionNormalize(t *testing.T) {
	if got := (Quaternion{}).Normalize(); got != Identity() {
		t.Fatalf("zero quaternion normalized to %+v, want identity", got)
	}
	q := Quaternion{W: 2, Z: 2}.Normalize()
	if math.Abs(q.Norm()-1) > 1e-12 {
		t.Fatalf("normalized norm = %v", q.Norm())
	}
	if got := AxisAngle(Vec3{}, 1); got != Identity() {
		t.Fatalf("zero axis gave %+v, want identity", got)
	}
	c := q.Mul(q.Conjugate())
	if math.Abs(c.W-1) > 1e-12 || math.Abs(c.Z) > 1e-12 {
		t.Fatalf("q * conj(q) = %+v, want identity", c)
	}
}

func TestUnbounded(t *testing.T) {
	if !Unbounded(0, 0) || Unbounded(0, 1) || Unbounded(-1, 0) {
		t.Fatalf("Unbounded misclassified ranges")
	}
}
